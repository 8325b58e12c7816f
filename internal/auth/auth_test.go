package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	s := NewService("secret", "quiz-attempt-service", time.Hour)
	raw, err := s.Issue("student-1", RoleStudent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "student-1" || claims.Role != RoleStudent {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	s := NewService("secret", "quiz-attempt-service", time.Hour)
	other := NewService("other", "quiz-attempt-service", time.Hour)
	foreign, _ := other.Issue("student-1", RoleStudent)
	if _, err := s.Parse(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := s.Issue("student-1", RoleStudent)
	s.now = time.Now
	if _, err := s.Parse(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	if _, err := s.Issue("student-1", "admin"); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	s := NewService("secret", "", time.Hour)
	var seen Identity
	handler := Middleware(s)(RequireRole(RoleLecturer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	student, _ := s.Issue("student-1", RoleStudent)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+student)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", rec.Code)
	}

	lecturer, _ := s.Issue("lecturer-1", RoleLecturer)
	req = httptest.NewRequest(http.MethodGet, "/?access_token="+lecturer, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for lecturer via query token, got %d", rec.Code)
	}
	if seen.Subject != "lecturer-1" {
		t.Fatalf("expected identity in context, got %+v", seen)
	}
}
