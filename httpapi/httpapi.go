// Package httpapi exposes a conversation controller over HTTP.
// It delegates all conversation logic to the controller.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/eventbus"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/model"
)

// maxUploadBytes bounds multipart uploads accepted from clients.
const maxUploadBytes = 32 << 20

// Handler provides the HTTP API for one conversation.
type Handler struct {
	conv   *conversation.Controller
	bus    eventbus.Bus
	router chi.Router
}

// New creates a new HTTP API handler. bus may be nil, in which case the
// event stream endpoint is not served.
func New(conv *conversation.Controller, bus eventbus.Bus) *Handler {
	h := &Handler{conv: conv, bus: bus}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/messages", h.handleGetMessages)
			r.Get("/history", h.handleListHistory)
			r.Post("/history/{id}/load", h.handleLoadSession)
			r.Delete("/history/{id}", h.handleDeleteSession)
			r.Delete("/history", h.handleClearHistory)
			r.Post("/conversations", h.handleNewConversation)
			r.Get("/prompts", h.handlePrompts)
		})
		// Gateway-bound calls wait for the reply and are not time-boxed here.
		r.Post("/messages", h.handleSendMessage)
		r.Put("/messages/{id}", h.handleEditMessage)
		r.Post("/messages/{id}/retry", h.handleRetryMessage)
		r.Post("/uploads", h.handleUpload)
		r.Get("/events", h.handleEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type sendMessageRequest struct {
	Text       string `json:"text"`
	Structured bool   `json:"structured,omitempty"`
}

type editMessageRequest struct {
	Text string `json:"text"`
}

type conversationResponse struct {
	Messages      []model.Message `json:"messages"`
	Pending       bool            `json:"pending"`
	ActiveSession string          `json:"active_session,omitempty"`
}

type newConversationResponse struct {
	ArchivedID string          `json:"archived_id,omitempty"`
	Messages   []model.Message `json:"messages"`
	Warning    string          `json:"warning,omitempty"`
}

type promptsResponse struct {
	QuickPrompts       []string `json:"quick_prompts"`
	StructuredTemplate string   `json:"structured_template"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	send := h.conv.Send
	if req.Structured {
		send = h.conv.SendStructured
	}
	if err := send(r.Context(), req.Text); err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.conv.Edit(r.Context(), id, req.Text); err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.conv.Retry(r.Context(), id); err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	err = h.conv.AttachFile(r.Context(), gateway.File{
		Name:    header.Filename,
		Size:    header.Size,
		Content: file,
	})
	if err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	id, err := h.conv.StartNewConversation(r.Context())
	resp := newConversationResponse{ArchivedID: id, Messages: h.conv.Messages()}
	if err != nil {
		// The reset already happened; only persistence failed.
		resp.Warning = "conversation archived but not saved"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	sessions := []model.Session{}
	for s := range h.conv.History() {
		sessions = append(sessions, s)
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.conv.LoadConversation(id); err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.conv.DeleteSession(r.Context(), id); err != nil {
		writeConversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.ClearHistory(r.Context()); err != nil {
		writeConversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, promptsResponse{
		QuickPrompts:       conversation.QuickPrompts,
		StructuredTemplate: conversation.StructuredTemplate,
	})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusNotFound, "event stream not enabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	name := h.conv.Name()
	ch := h.bus.Subscribe(name)
	defer h.bus.Unsubscribe(name, ch)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

func (h *Handler) snapshot() conversationResponse {
	return conversationResponse{
		Messages:      h.conv.Messages(),
		Pending:       h.conv.Pending(),
		ActiveSession: h.conv.ActiveSession(),
	}
}

func writeConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		writeError(w, http.StatusConflict, "a response is already pending")
	case errors.Is(err, conversation.ErrBlankText):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, conversation.ErrNoFile):
		writeError(w, http.StatusBadRequest, "file name is required")
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, conversation.ErrNotEditable):
		writeError(w, http.StatusUnprocessableEntity, "only user messages can be edited")
	case errors.Is(err, archive.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "history storage unavailable")
	default:
		log.Printf("httpapi: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *eventbus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("writeSSE marshal error: %v", err)
		return
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data)); err != nil {
		log.Printf("writeSSE write error: %v", err)
	}
}
