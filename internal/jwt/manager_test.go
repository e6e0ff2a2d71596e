package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meditrack/internal/domain/user"
)

func TestIssueAndParseRoundtrip(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	token, issued, err := mgr.IssueUserToken("user-1", user.RoleResponder)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	if issued.Subject != "user-1" || issued.Role != user.RoleResponder {
		t.Fatalf("issued claims mismatch: %+v", issued)
	}

	_, parsed, err := mgr.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if parsed.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", parsed.Subject)
	}
	if parsed.Role != user.RoleResponder {
		t.Errorf("role = %q, want RESPONDER", parsed.Role)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("secret-a", time.Hour).IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	if _, _, err := NewManager("secret-b", time.Hour).ParseAndValidate(token); err == nil {
		t.Error("token signed with a different secret must be rejected")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, _, err := NewManager("test-secret", -time.Minute).IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	if _, _, err := NewManager("test-secret", time.Hour).ParseAndValidate(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestRoleAllowed(t *testing.T) {
	claims := NewUserClaims("user-1", user.RolePatient, time.Hour)

	if err := RoleAllowed(claims, user.RolePatient, user.RoleAdmin); err != nil {
		t.Errorf("patient should be allowed: %v", err)
	}
	if err := RoleAllowed(claims, user.RoleAdmin); err == nil {
		t.Error("patient must not pass an admin-only check")
	}
}

func TestAuthMiddlewareEnforcesTokenAndRole(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	token, _, err := mgr.IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	var gotSubject string
	protected := AuthMiddlewareFunc(mgr, user.RolePatient)(func(w http.ResponseWriter, r *http.Request) {
		if c := RequireClaims(r); c != nil {
			gotSubject = c.Subject
		}
		w.WriteHeader(http.StatusOK)
	})

	// no token
	rec := httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	// valid token, allowed role
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
	if gotSubject != "user-1" {
		t.Errorf("claims not injected: subject = %q", gotSubject)
	}

	// valid token, wrong role
	adminOnly := AuthMiddlewareFunc(mgr, user.RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/medical-facilities/f1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	adminOnly(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: status = %d, want 403", rec.Code)
	}
}
