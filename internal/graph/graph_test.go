package graph_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	absauth "github.com/microsoft/kiota-abstractions-go/authentication"

	"github.com/JaimeStill/expedite/internal/graph"
)

const drivePath = "/v1.0/users/drive@example.com/drive"

type call struct {
	Method string
	Path   string
	Body   []byte
}

type fakeGraph struct {
	mu     sync.Mutex
	calls  []call
	handle func(w http.ResponseWriter, c call)
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c := call{Method: r.Method, Path: r.URL.Path, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if c.Method == http.MethodGet && c.Path == drivePath {
		writeJSON(w, http.StatusOK, map[string]string{"id": "d1"})
		return
	}
	f.handle(w, c)
}

func (f *fakeGraph) find(method, path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}

func newClient(t *testing.T, handle func(http.ResponseWriter, call)) (*graph.Client, *fakeGraph) {
	t.Helper()
	fake := &fakeGraph{handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &graph.Config{
		BaseURL:     srv.URL + "/v1.0",
		Sender:      "bot@example.com",
		DriveUser:   "drive@example.com",
		ChunkSize:   "320KB",
		SimpleLimit: "1KB",
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := graph.NewWithAuth(cfg, &absauth.AnonymousAuthenticationProvider{}, srv.Client(), logger)
	if err != nil {
		t.Fatalf("NewWithAuth() error = %v", err)
	}
	return c, fake
}

func TestPingResolvesDriveOnce(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, _ call) {
		w.WriteHeader(http.StatusTeapot)
	})

	for range 2 {
		if err := c.Ping(context.Background()); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
	}
	if got := len(fake.find(http.MethodGet, drivePath)); got != 1 {
		t.Errorf("drive lookups = %d, want 1", got)
	}
}

func TestUploadFileSimple(t *testing.T) {
	const target = "/v1.0/drives/d1/items/root:/Expedicion/TK 1/a.pdf:/content"
	c, fake := newClient(t, func(w http.ResponseWriter, cl call) {
		if cl.Method == http.MethodPut && cl.Path == target {
			writeJSON(w, http.StatusCreated, map[string]any{"id": "f1", "name": "a.pdf", "webUrl": "https://od/a.pdf", "size": 4})
			return
		}
		writeError(w, http.StatusNotFound, "itemNotFound", cl.Path)
	})

	src := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(src, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	it, err := c.UploadFile(context.Background(), src, "Expedicion/TK 1/a.pdf")
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if it.ID != "f1" || it.WebURL != "https://od/a.pdf" || it.Size != 4 {
		t.Errorf("UploadFile() = %+v", it)
	}

	puts := fake.find(http.MethodPut, target)
	if len(puts) != 1 {
		t.Fatalf("simple upload PUTs = %d, want 1", len(puts))
	}
	if string(puts[0].Body) != "%PDF" {
		t.Errorf("PUT body = %q, want %%PDF", puts[0].Body)
	}
}

func TestEnsureFolder(t *testing.T) {
	const (
		parent   = "/v1.0/drives/d1/items/root:/Expedicion:"
		child    = "/v1.0/drives/d1/items/root:/Expedicion/TK-1:"
		children = "/v1.0/drives/d1/items/exp/children"
	)

	tests := []struct {
		name   string
		create func(w http.ResponseWriter)
		wantID string
	}{
		{
			name: "creates missing segment",
			create: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusCreated, map[string]any{"id": "tk", "name": "TK-1", "folder": map[string]int{}})
			},
			wantID: "tk",
		},
		{
			name: "conflict reads the winner",
			create: func(w http.ResponseWriter) {
				writeError(w, http.StatusConflict, "nameAlreadyExists", "exists")
			},
			wantID: "tk-other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu      sync.Mutex
				created bool
			)
			c, fake := newClient(t, func(w http.ResponseWriter, cl call) {
				mu.Lock()
				defer mu.Unlock()
				switch {
				case cl.Method == http.MethodGet && cl.Path == parent:
					writeJSON(w, http.StatusOK, map[string]any{"id": "exp", "name": "Expedicion"})
				case cl.Method == http.MethodGet && cl.Path == child && created:
					writeJSON(w, http.StatusOK, map[string]any{"id": "tk-other", "name": "TK-1"})
				case cl.Method == http.MethodGet:
					writeError(w, http.StatusNotFound, "itemNotFound", "not found")
				case cl.Method == http.MethodPost && cl.Path == children:
					created = true
					tt.create(w)
				default:
					w.WriteHeader(http.StatusTeapot)
				}
			})

			it, err := c.EnsureFolder(context.Background(), "/Expedicion/TK-1/")
			if err != nil {
				t.Fatalf("EnsureFolder() error = %v", err)
			}
			if it.ID != tt.wantID {
				t.Errorf("EnsureFolder() = %+v, want id %s", it, tt.wantID)
			}

			posts := fake.find(http.MethodPost, children)
			if len(posts) != 1 {
				t.Fatalf("folder creations = %d, want 1", len(posts))
			}
			var body map[string]any
			if err := json.Unmarshal(posts[0].Body, &body); err != nil {
				t.Fatalf("decode create body: %v", err)
			}
			if body["name"] != "TK-1" || body["@microsoft.graph.conflictBehavior"] != "fail" {
				t.Errorf("create folder body = %v", body)
			}
		})
	}
}

func TestSharing(t *testing.T) {
	const (
		invite = "/v1.0/drives/d1/items/ok/invite"
		link   = "/v1.0/drives/d1/items/ok/createLink"
		item   = "/v1.0/drives/d1/items/ok"
	)
	c, fake := newClient(t, func(w http.ResponseWriter, cl call) {
		switch cl.Path {
		case invite:
			writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{{"link": map[string]string{"webUrl": "https://od/invite"}}}})
		case link:
			writeJSON(w, http.StatusOK, map[string]any{"link": map[string]string{"webUrl": "https://od/org"}})
		case item:
			writeJSON(w, http.StatusOK, map[string]string{"id": "ok", "webUrl": "https://od/web"})
		default:
			writeError(w, http.StatusForbidden, "accessDenied", "sharing disabled")
		}
	})
	ctx := context.Background()
	ok := graph.Item{ID: "ok", Name: "TK-1"}

	if got, err := c.ShareWithUser(ctx, ok, "user@example.com", "read"); err != nil || got != "https://od/invite" {
		t.Errorf("ShareWithUser() = %q, %v", got, err)
	}
	var inv struct {
		Recipients     []struct{ Email string }
		RequireSignIn  bool
		SendInvitation bool
		Roles          []string
	}
	if err := json.Unmarshal(fake.find(http.MethodPost, invite)[0].Body, &inv); err != nil {
		t.Fatalf("decode invite body: %v", err)
	}
	if len(inv.Recipients) != 1 || inv.Recipients[0].Email != "user@example.com" ||
		!inv.RequireSignIn || inv.SendInvitation || !slices.Equal(inv.Roles, []string{"read"}) {
		t.Errorf("invite body = %+v", inv)
	}

	if got, err := c.ShareOrganization(ctx, ok, "read"); err != nil || got != "https://od/org" {
		t.Errorf("ShareOrganization() = %q, %v", got, err)
	}
	var cl map[string]string
	if err := json.Unmarshal(fake.find(http.MethodPost, link)[0].Body, &cl); err != nil {
		t.Fatalf("decode createLink body: %v", err)
	}
	if cl["scope"] != "organization" || cl["type"] != "view" {
		t.Errorf("createLink body = %v", cl)
	}

	if got, err := c.WebURL(ctx, ok); err != nil || got != "https://od/web" {
		t.Errorf("WebURL() = %q, %v", got, err)
	}

	_, err := c.ShareOrganization(ctx, graph.Item{ID: "denied"}, "read")
	if !errors.Is(err, graph.ErrRequestFailed) {
		t.Errorf("ShareOrganization(denied) = %v, want ErrRequestFailed", err)
	}
	var re *graph.ResponseError
	if !errors.As(err, &re) || re.StatusCode != http.StatusForbidden || re.Code != "accessDenied" {
		t.Errorf("ShareOrganization(denied) = %v, want 403 accessDenied", err)
	}
}

func TestItemNotFound(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ call) {
		writeError(w, http.StatusNotFound, "itemNotFound", "not found")
	})

	_, err := c.Item(context.Background(), "Expedicion/missing")
	if !graph.IsNotFound(err) {
		t.Errorf("Item() = %v, want not found", err)
	}
}

func TestSendMailInline(t *testing.T) {
	const send = "/v1.0/users/bot@example.com/sendMail"
	c, fake := newClient(t, func(w http.ResponseWriter, _ call) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.SendMail(context.Background(), graph.Message{
		To:          []string{"user@example.com"},
		Subject:     "Copias TK-1",
		HTML:        "<p>adjunto</p>",
		Attachments: []graph.Attachment{{Name: "TK-1.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
	})
	if err != nil {
		t.Fatalf("SendMail() error = %v", err)
	}

	sends := fake.find(http.MethodPost, send)
	if len(sends) != 1 {
		t.Fatalf("sendMail calls = %d, want 1", len(sends))
	}
	var payload struct {
		Message struct {
			Subject      string
			Body         struct{ ContentType, Content string }
			ToRecipients []struct{ EmailAddress struct{ Address string } }
			Attachments  []struct {
				Name         string
				ContentBytes string
			}
		}
		SaveToSentItems bool
	}
	if err := json.Unmarshal(sends[0].Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	m := payload.Message
	if m.Subject != "Copias TK-1" || m.Body.ContentType != "html" || !payload.SaveToSentItems {
		t.Errorf("payload = %+v", payload)
	}
	if len(m.ToRecipients) != 1 || m.ToRecipients[0].EmailAddress.Address != "user@example.com" {
		t.Errorf("recipients = %+v", m.ToRecipients)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].ContentBytes != base64.StdEncoding.EncodeToString([]byte("%PDF")) {
		t.Errorf("attachments = %+v, want base64 of content", m.Attachments)
	}
}

func TestSendMailRequiresRecipient(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, _ call) {
		w.WriteHeader(http.StatusAccepted)
	})
	if err := c.SendMail(context.Background(), graph.Message{Subject: "x"}); !errors.Is(err, graph.ErrRequestFailed) {
		t.Errorf("SendMail() = %v, want ErrRequestFailed", err)
	}
	if got := len(fake.find(http.MethodPost, "/v1.0/users/bot@example.com/sendMail")); got != 0 {
		t.Errorf("sendMail calls = %d, want 0", got)
	}
}

func TestConfigChunkSize(t *testing.T) {
	cfg := &graph.Config{Sender: "bot@example.com", ChunkSize: "1MB"}
	if err := cfg.Finalize(nil); err == nil {
		t.Error("Finalize() with 1MB chunk = nil, want multiple-of-320KB error")
	}

	cfg = &graph.Config{Sender: "bot@example.com"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if cfg.DriveUser != "bot@example.com" || cfg.ChunkBytes() != 3200*1024 {
		t.Errorf("defaults = %+v", cfg)
	}
}
