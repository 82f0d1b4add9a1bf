// Package gateway defines the boundary through which the conversation core
// obtains assistant replies and upload results. Implementations live in
// subpackages; credentials are their concern, not the caller's.
package gateway

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Gateway is the remote responder.
type Gateway interface {
	// Complete returns the assistant reply for a single prompt.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Upload sends a file to the remote side.
	Upload(ctx context.Context, file File) (UploadResult, error)
}

// CompletionRequest asks for a reply. Structured selects the response
// formatting contract that produces sectioned Markdown.
type CompletionRequest struct {
	Message    string `json:"message"`
	Structured bool   `json:"structured"`
}

// CompletionResponse carries the assistant reply.
type CompletionResponse struct {
	Reply string `json:"reply"`
}

// File is a named binary payload for upload.
type File struct {
	Name    string
	Size    int64
	Content io.Reader
}

// UploadResult mirrors the upload service's JSON reply.
type UploadResult struct {
	Success bool         `json:"success"`
	File    UploadedFile `json:"file"`
}

// UploadedFile is the record the upload service persists.
type UploadedFile struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	UploadedBy   string    `json:"uploadedBy"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Failure is the single error type every Gateway implementation returns.
type Failure struct {
	Op     string // "complete" or "upload"
	Status int    // HTTP status when the remote answered, otherwise 0
	Err    error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("gateway %s failed (status %d): %v", f.Op, f.Status, f.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err as a Failure for op. A nil err yields nil.
func Fail(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Op: op, Status: status, Err: err}
}
