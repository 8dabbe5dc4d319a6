package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(LocalConfig{Dir: t.TempDir(), PublicBaseURL: "http://olympiad.test/", SigningSecret: "test-secret"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key, err := s.Put(context.Background(), []byte("%PDF-1.3"), "application/pdf", "certificates")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(key, "certificates/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	data, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "%PDF-1.3" {
		t.Fatalf("data mismatch: %q", data)
	}
	if _, err := s.Get(context.Background(), "certificates/missing.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestPutSanitizesFolder(t *testing.T) {
	s := newTestStore(t)
	key, err := s.Put(context.Background(), []byte("x"), "image/png", "../../etc")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(key, "etc/") {
		t.Fatalf("folder escaped root: %q", key)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "../secret", "/abs/path", "a/../../b", "a\\b"} {
		if _, err := s.Get(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestSignAndVerify(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	link, err := s.Sign("media/a.png", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(link, "http://olympiad.test/files/media/a.png?token=") {
		t.Fatalf("unexpected link %q", link)
	}
	u, _ := url.Parse(link)
	token := u.Query().Get("token")

	if err := s.Verify("media/a.png", token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.Verify("media/b.png", token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("token must be bound to its key, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := s.Verify("media/a.png", token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestHandlerServesSignedObject(t *testing.T) {
	s := newTestStore(t)
	key, err := s.Put(context.Background(), []byte("hello"), "image/png", "media")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	link, err := s.Sign(key, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	u, _ := url.Parse(link)

	r := chi.NewRouter()
	r.Get("/files/*", NewHandler(s).ServeFile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/"+key, nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", w.Code)
	}
}
