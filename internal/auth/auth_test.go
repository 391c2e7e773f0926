package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"saldo/internal/core"
)

type stubSessions map[string]core.UserID

func (s stubSessions) SessionUser(_ context.Context, token string) (core.UserID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("not found")
}

func TestMiddleware(t *testing.T) {
	sessions := stubSessions{"good-token": "user-1"}

	var gotUser core.UserID
	handler := Middleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = CurrentUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUser   core.UserID
	}{
		{"valid token", "Bearer good-token", http.StatusOK, "user-1"},
		{"case-insensitive scheme", "bearer good-token", http.StatusOK, "user-1"},
		{"unknown token", "Bearer bad-token", http.StatusUnauthorized, ""},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc123", http.StatusUnauthorized, ""},
		{"scheme only", "Bearer", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestCurrentUser_NoMiddleware(t *testing.T) {
	if got := CurrentUser(context.Background()); got != "" {
		t.Errorf("CurrentUser on bare context = %q, want empty", got)
	}
}
