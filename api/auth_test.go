package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenManager_IssueAndVerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", "orchestrator-test", time.Minute)

	token, _, err := tm.IssueAccessToken("user-42")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	var gotUserID string
	handler := tm.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "user-42" {
		t.Fatalf("expected user-42 in context, got %q", gotUserID)
	}
}

func TestTokenManager_RequireAuth_RejectsMissingHeader(t *testing.T) {
	tm := NewTokenManager("test-secret", "orchestrator-test", time.Minute)
	handler := tm.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTokenManager_RequireAuth_RejectsTokenFromDifferentSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", "orchestrator-test", time.Minute)
	verifier := NewTokenManager("secret-b", "orchestrator-test", time.Minute)

	token, _, err := issuer.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	handler := verifier.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a token signed with a different secret")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
