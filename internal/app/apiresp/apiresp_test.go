package apiresp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestWriteOKCarriesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/competitions", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
	rr := httptest.NewRecorder()

	WriteOK(rr, req, http.StatusCreated, map[string]int{"id": 3})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	env := decode(t, rr)
	if !env.OK || env.Error != nil || env.Meta.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestWriteErrorCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		msg     string
		want    string
		wantMsg string
	}{
		{name: "derived", status: http.StatusNotFound, msg: "competition not found", want: "not_found", wantMsg: "competition not found"},
		{name: "explicit", status: http.StatusConflict, code: "time_expired", msg: "time expired", want: "time_expired", wantMsg: "time expired"},
		{name: "status text", status: http.StatusServiceUnavailable, want: "unavailable", wantMsg: "Service Unavailable"},
		{name: "unknown status", status: http.StatusTeapot, msg: "x", want: "error", wantMsg: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteErrorCode(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.status, tt.code, tt.msg)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			env := decode(t, rr)
			if env.OK || env.Error == nil {
				t.Fatalf("expected error envelope, got %+v", env)
			}
			if env.Error.Code != tt.want || env.Error.Message != tt.wantMsg {
				t.Fatalf("unexpected error payload %+v", env.Error)
			}
		})
	}
}
