package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"meditrack/internal/domain/contact"
	"meditrack/internal/domain/user"
	"meditrack/internal/jwt"
	"meditrack/internal/logger"
	"meditrack/internal/ports"
	"meditrack/internal/realtime/relay"
)

type fakeContacts struct {
	ports.ContactService

	added []*contact.Contact
}

func (f *fakeContacts) AddContact(ctx context.Context, userID string, in ports.ContactInput) (*contact.Contact, error) {
	cnt, err := contact.NewContact(userID, in.Name, in.Phone, in.Relationship)
	if err != nil {
		return nil, err
	}
	cnt.ID = "cnt-1"
	f.added = append(f.added, cnt)
	return cnt, nil
}

func (f *fakeContacts) ListContacts(ctx context.Context, userID string) ([]*contact.Contact, error) {
	return f.added, nil
}

func newContactTestHandler(t *testing.T, contacts ports.ContactService) (*http.ServeMux, *jwt.Manager) {
	t.Helper()
	log := logger.New("handler-test")
	mgr := jwt.NewManager("test-secret", time.Hour)

	h := &EmergencyHTTPHandler{
		auth:     &fakeAuth{},
		contacts: contacts,
		tokens:   mgr,
		relay:    relay.New(log),
		logger:   log,
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, mgr
}

func TestAddAndListContacts(t *testing.T) {
	contacts := &fakeContacts{}
	mux, mgr := newContactTestHandler(t, contacts)
	token, _, err := mgr.IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	rec := doJSON(t, mux, http.MethodPost, "/emergency-contacts", token, map[string]any{
		"name": "Grace", "phone": "+4930123456", "relationship": "sister",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created contactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	if created.ID != "cnt-1" || created.UserID != "user-1" || created.Name != "Grace" {
		t.Errorf("created = %+v", created)
	}
	if created.CreatedAt.IsZero() {
		t.Errorf("created_at not set: %+v", created)
	}

	// the wire shape mirrors the entity; a field the entity does not carry
	// must not leak into the payload
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode raw response: %v", err)
	}
	if _, ok := raw["updated_at"]; ok {
		t.Errorf("response carries updated_at: %v", raw)
	}

	rec = doJSON(t, mux, http.MethodGet, "/emergency-contacts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", rec.Code, rec.Body.String())
	}
	var listed []contactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 || listed[0].Phone != "+4930123456" {
		t.Errorf("listed = %+v", listed)
	}
}
