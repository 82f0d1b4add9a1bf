// End-to-end tests for the smartbot server stack.
//
// This test exercises the full server stack:
//   - Real HTTP router (chi)
//   - Real SQLite / bbolt store (temp dir)
//   - Real event bus (in-memory pub/sub)
//   - Real remote gateway client talking to a fake chat backend
//
// Does NOT require network access beyond loopback.
package smartbot_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	smartbot "github.com/jxucoder/smartbot"
	"github.com/jxucoder/smartbot/model"
)

// ---------------------------------------------------------------------------
// Fake chat backend
// ---------------------------------------------------------------------------

type fakeBackend struct {
	mu       sync.Mutex
	messages []string
	uploads  []string
	auth     []string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message    string `json:"message"`
			Structured bool   `json:"structured"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.messages = append(b.messages, req.Message)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()

		if req.Message == "explode" {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": "You said: " + req.Message})
	})
	mux.HandleFunc("POST /api/uploads", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.uploads = append(b.uploads, header.Filename)
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"file":    map[string]string{"originalName": header.Filename},
		})
	})
	return mux
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type e2eHarness struct {
	app     *smartbot.App
	backend *fakeBackend
}

func setupE2E(t *testing.T, store, dataDir string) *e2eHarness {
	t.Helper()

	backend := &fakeBackend{}
	backendSrv := httptest.NewServer(backend.handler())
	t.Cleanup(backendSrv.Close)

	app, err := smartbot.NewBuilder().WithConfig(smartbot.Config{
		DataDir:      dataDir,
		Store:        store,
		GatewayURL:   backendSrv.URL,
		GatewayToken: "secret-token",
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	return &e2eHarness{app: app, backend: backend}
}

// do executes an HTTP request against the handler and returns the response recorder.
func (h *e2eHarness) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.app.Handler().Router().ServeHTTP(w, req)
	return w
}

type conversationBody struct {
	Messages      []model.Message `json:"messages"`
	Pending       bool            `json:"pending"`
	ActiveSession string          `json:"active_session"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) conversationBody {
	t.Helper()
	var body conversationBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// E2E Tests
// ---------------------------------------------------------------------------

// TestE2E_ConversationLifecycle covers send, edit, retry, archive, restart
// and load against a SQLite-backed server.
func TestE2E_ConversationLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	h := setupE2E(t, "sqlite", dataDir)

	// 1. Send.
	conv := decode(t, h.do("POST", "/api/messages", `{"text":"hello"}`))
	if len(conv.Messages) != 3 || conv.Messages[2].Text != "You said: hello" {
		t.Fatalf("unexpected log after send: %+v", conv.Messages)
	}

	// 2. Edit the user turn.
	userID := conv.Messages[1].ID
	conv = decode(t, h.do("PUT", "/api/messages/"+userID, `{"text":"hi"}`))
	if conv.Messages[1].Text != "hi" || !conv.Messages[1].Edited || conv.Messages[2].Text != "You said: hi" {
		t.Fatalf("unexpected log after edit: %+v", conv.Messages)
	}

	// 3. Retry the reply.
	replyID := conv.Messages[2].ID
	conv = decode(t, h.do("POST", "/api/messages/"+replyID+"/retry", ""))
	if len(conv.Messages) != 3 || conv.Messages[2].ID == replyID {
		t.Fatalf("unexpected log after retry: %+v", conv.Messages)
	}

	h.backend.mu.Lock()
	sent := strings.Join(h.backend.messages, "|")
	auth := h.backend.auth[0]
	h.backend.mu.Unlock()
	if sent != "hello|hi|hi" {
		t.Fatalf("backend saw %q", sent)
	}
	if auth != "Bearer secret-token" {
		t.Fatalf("expected bearer token, got %q", auth)
	}

	// 4. Archive.
	w := h.do("POST", "/api/conversations", "")
	var created struct {
		ArchivedID string `json:"archived_id"`
	}
	json.NewDecoder(w.Body).Decode(&created)
	if created.ArchivedID == "" {
		t.Fatal("expected the conversation to be archived")
	}

	// 5. Restart on the same data dir; history survives.
	h.app.Close()
	h2 := setupE2E(t, "sqlite", dataDir)
	w = h2.do("GET", "/api/history", "")
	var sessions []model.Session
	json.NewDecoder(w.Body).Decode(&sessions)
	if len(sessions) != 1 || sessions[0].ID != created.ArchivedID || sessions[0].Title != "hi" {
		t.Fatalf("unexpected history after restart: %+v", sessions)
	}

	// 6. Load and continue.
	conv = decode(t, h2.do("POST", "/api/history/"+created.ArchivedID+"/load", ""))
	if conv.ActiveSession != created.ArchivedID || len(conv.Messages) != 3 {
		t.Fatalf("unexpected loaded conversation: %+v", conv)
	}
	conv = decode(t, h2.do("POST", "/api/messages", `{"text":"again"}`))
	if len(conv.Messages) != 5 {
		t.Fatalf("expected continued conversation, got %d messages", len(conv.Messages))
	}
}

// TestE2E_GatewayFailureBecomesFallbackTurn verifies that a backend error is
// recorded as a conversation turn and the server stays usable.
func TestE2E_GatewayFailureBecomesFallbackTurn(t *testing.T) {
	h := setupE2E(t, "memory", t.TempDir())

	conv := decode(t, h.do("POST", "/api/messages", `{"text":"explode"}`))
	if conv.Messages[2].Text != "❌ AI failed to respond" || conv.Pending {
		t.Fatalf("expected fallback turn, got %+v", conv)
	}
	conv = decode(t, h.do("POST", "/api/messages", `{"text":"fine"}`))
	if conv.Messages[4].Text != "You said: fine" {
		t.Fatalf("expected recovery, got %+v", conv.Messages)
	}
}

// TestE2E_UploadReachesBackend sends a multipart file through the API and
// the remote gateway.
func TestE2E_UploadReachesBackend(t *testing.T) {
	h := setupE2E(t, "bolt", t.TempDir())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "spec.pdf")
	fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.app.Handler().Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	conv := decode(t, w)
	if !strings.Contains(conv.Messages[2].Text, `"spec.pdf" uploaded successfully`) {
		t.Fatalf("unexpected confirmation: %q", conv.Messages[2].Text)
	}
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.uploads) != 1 || h.backend.uploads[0] != "spec.pdf" {
		t.Fatalf("backend uploads: %v", h.backend.uploads)
	}
}

// TestE2E_EventStream subscribes to the SSE endpoint over a real socket and
// checks the events produced by one exchange.
func TestE2E_EventStream(t *testing.T) {
	h := setupE2E(t, "memory", t.TempDir())
	srv := httptest.NewServer(h.app.Handler().Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	post, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(`{"text":"stream me"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	io.Copy(io.Discard, post.Body)
	post.Body.Close()

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == "idle" {
				break
			}
		}
	}
	got := strings.Join(events, ",")
	if got != "message,typing,message,idle" {
		t.Fatalf("unexpected event sequence %q", got)
	}
}

func TestE2E_HealthCheck(t *testing.T) {
	h := setupE2E(t, "memory", t.TempDir())
	w := h.do("GET", "/health", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", w.Code, w.Body.String())
	}
}

func TestBuildRequiresGateway(t *testing.T) {
	_, err := smartbot.NewBuilder().WithConfig(smartbot.Config{
		DataDir: t.TempDir(),
		Store:   "memory",
	}).Build()
	if err == nil {
		t.Fatal("expected error without a gateway URL")
	}
}

func TestBuildRejectsUnknownStore(t *testing.T) {
	_, err := smartbot.NewBuilder().WithConfig(smartbot.Config{
		DataDir:    t.TempDir(),
		Store:      "redis",
		GatewayURL: "http://localhost:1",
	}).Build()
	if err == nil || !strings.Contains(err.Error(), "unknown store") {
		t.Fatalf("expected unknown store error, got %v", err)
	}
}
