package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/model"
	"github.com/jxucoder/smartbot/store/memory"
)

type stubGateway struct{ uploaded string }

func (g *stubGateway) Complete(_ context.Context, req gateway.CompletionRequest) (gateway.CompletionResponse, error) {
	return gateway.CompletionResponse{Reply: "reply to " + req.Message}, nil
}

func (g *stubGateway) Upload(_ context.Context, f gateway.File) (gateway.UploadResult, error) {
	data, _ := io.ReadAll(f.Content)
	g.uploaded = string(data)
	return gateway.UploadResult{Success: true}, nil
}

func testConversation(t *testing.T) (*conversation.Controller, *stubGateway) {
	t.Helper()
	gw := &stubGateway{}
	return conversation.New(gw, archive.New(memory.New(), archive.DefaultLimit)), gw
}

func TestChatLoop(t *testing.T) {
	conv, _ := testConversation(t)
	in := strings.NewReader("hello\n\n/new\n/history\n/quit\nnever read\n")
	var out bytes.Buffer

	if err := chatLoop(context.Background(), conv, in, &out); err != nil {
		t.Fatalf("chat loop: %v", err)
	}
	got := out.String()
	for _, want := range []string{conversation.WelcomeText, "reply to hello", `Saved "hello"`, "1. hello"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if conv.Pending() || len(conv.Messages()) != 1 {
		t.Fatal("expected a fresh idle conversation after /new")
	}
}

func TestChatLoopEOF(t *testing.T) {
	conv, _ := testConversation(t)
	if err := chatLoop(context.Background(), conv, strings.NewReader("hi"), io.Discard); err != nil {
		t.Fatalf("expected clean exit on EOF, got %v", err)
	}
	if len(conv.Messages()) != 3 {
		t.Fatalf("expected the final line to be sent, got %d messages", len(conv.Messages()))
	}
}

func TestChatLoopDictate(t *testing.T) {
	conv, _ := testConversation(t)
	var out bytes.Buffer
	in := strings.NewReader("/dictate\ny\n/dictate\nn\n")
	if err := chatLoop(context.Background(), conv, in, &out); err != nil {
		t.Fatalf("chat loop: %v", err)
	}
	if !strings.Contains(out.String(), conversation.SimulatedTranscript) {
		t.Fatalf("expected transcript in output:\n%s", out.String())
	}
	if n := len(conv.Messages()); n != 3 {
		t.Fatalf("expected exactly one dictated message sent, got %d messages", n)
	}
}

func TestAttachPath(t *testing.T) {
	conv, gw := testConversation(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer

	got := attachPath(context.Background(), conv, &out, path)
	if !strings.Contains(got, `"notes.txt" uploaded successfully`) {
		t.Fatalf("unexpected reply %q", got)
	}
	if gw.uploaded != "remember the milk" {
		t.Fatalf("gateway received %q", gw.uploaded)
	}
	if !strings.Contains(out.String(), "Uploading notes.txt (17 B)") {
		t.Fatalf("unexpected progress output %q", out.String())
	}

	if got := attachPath(context.Background(), conv, &out, ""); !strings.HasPrefix(got, "Usage") {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := attachPath(context.Background(), conv, &out, filepath.Join(t.TempDir(), "missing")); !strings.HasPrefix(got, "Cannot open") {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := attachPath(context.Background(), conv, &out, t.TempDir()); !strings.HasSuffix(got, "is a directory") {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestPrintSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions := []model.Session{
		{ID: "s1", Title: "Quarterly plan", CreatedAt: now.Add(-2 * time.Hour), Messages: make([]model.Message, 3)},
	}
	var out bytes.Buffer
	if err := printSessions(&out, sessions, now); err != nil {
		t.Fatalf("print: %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "ID") || !strings.Contains(got, "Quarterly plan") || !strings.Contains(got, "2 hours ago") {
		t.Fatalf("unexpected table:\n%s", got)
	}

	out.Reset()
	sessions = []model.Session{{ID: "s2", Title: "line one\nline two of a rather long title...", CreatedAt: now}}
	if err := printSessions(&out, sessions, now); err != nil {
		t.Fatalf("print: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out.String()), "\n"); len(lines) != 2 {
		t.Fatalf("expected header plus one row, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "line one line two of a r...") {
		t.Fatalf("expected a folded, shortened title:\n%s", out.String())
	}

	out.Reset()
	printSessions(&out, nil, now)
	if out.String() != "No conversation history.\n" {
		t.Fatalf("unexpected empty output %q", out.String())
	}
}

func TestFollowEvents(t *testing.T) {
	stream := strings.Join([]string{
		"id: 1",
		"event: message",
		`data: {"type":"message","message":{"id":"m1","text":"hi","sender":"user","timestamp":"2024-05-01T09:30:00Z"}}`,
		"",
		"id: 2",
		"event: typing",
		`data: {"type":"typing"}`,
		"",
		"data: not json",
		"",
	}, "\n")
	var out bytes.Buffer
	if err := followEvents(strings.NewReader(stream), &out); err != nil {
		t.Fatalf("follow: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "you: hi") || !strings.Contains(got, "assistant is typing") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}
