package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockAuthService struct {
	registerFn     func(ctx context.Context, in RegisterInput) (*User, error)
	authenticateFn func(ctx context.Context, email, password string) (*User, error)
	tokens         *TokenIssuer
}

func (m *mockAuthService) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if m.registerFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.registerFn(ctx, in)
}

func (m *mockAuthService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if m.authenticateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.authenticateFn(ctx, email, password)
}

func (m *mockAuthService) IssueToken(user *User) (string, time.Time, error) {
	return m.tokens.Issue(user)
}

func (m *mockAuthService) ParseToken(token string) (*User, error) {
	return m.tokens.Parse(token)
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("0123456789abcdef-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	token, expiresAt, err := issuer.Issue(&User{ID: 42, Email: "a@b.c", FullName: "Ann", Role: RoleParticipant})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiry must be in the future")
	}
	u, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.ID != 42 || u.Email != "a@b.c" || u.FullName != "Ann" || u.Role != RoleParticipant {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestTokenRejectsExpiredAndForeign(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }
	token, _, err := issuer.Issue(&User{ID: 1, Role: RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := issuer.Parse(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	other, err := NewTokenIssuer("another-secret-of-length", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	fresh, _, _ := other.Issue(&User{ID: 1, Role: RoleAdmin})
	if _, err := newTestIssuer(t).Parse(fresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected foreign token to be rejected, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", time.Hour); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	h := NewHandler(&mockAuthService{
		tokens: newTestIssuer(t),
		authenticateFn: func(ctx context.Context, email, password string) (*User, error) {
			if email != "ann@example.com" || password != "secret123" {
				return nil, ErrInvalidCredentials
			}
			return &User{ID: 7, Email: email, FullName: "Ann", Role: RoleParticipant}, nil
		},
	}, false)

	body, _ := json.Marshal(loginRequest{Email: "ann@example.com", Password: "secret123"})
	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var found bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("session cookie not set")
	}

	body, _ = json.Marshal(loginRequest{Email: "ann@example.com", Password: "wrong"})
	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRegisterMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "validation", err: ErrInvalidInput, code: http.StatusBadRequest},
		{name: "duplicate", err: ErrEmailTaken, code: http.StatusConflict},
		{name: "internal", err: errors.New("db down"), code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockAuthService{
				tokens: newTestIssuer(t),
				registerFn: func(ctx context.Context, in RegisterInput) (*User, error) {
					return nil, tc.err
				},
			}, false)
			rr := httptest.NewRecorder()
			h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte(`{"email":"x@y.z"}`))))
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	issuer := newTestIssuer(t)
	h := NewHandler(&mockAuthService{tokens: issuer}, false)
	token, _, _ := issuer.Issue(&User{ID: 9, Role: RoleParticipant})

	var seen *User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || seen == nil || seen.ID != 9 {
		t.Fatalf("expected authenticated request, code=%d user=%v", rr.Code, seen)
	}

	rr = httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if decodeBody(t, rr)["ok"] != false {
		t.Fatalf("expected ok=false")
	}
}

func TestRequireRoles(t *testing.T) {
	h := NewHandler(&mockAuthService{tokens: newTestIssuer(t)}, false)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mw := h.RequireRoles(RoleAdmin)(next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/competitions", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 1, Role: RoleParticipant}))
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 1, Role: RoleAdmin}))
	rr = httptest.NewRecorder()
	mw.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected admin to pass, got %d", rr.Code)
	}
}
