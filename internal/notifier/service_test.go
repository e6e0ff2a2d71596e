package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"meditrack/internal/contracts"
	"meditrack/internal/domain/user"
	"meditrack/internal/logger"
	"meditrack/internal/ports"
)

type passthroughUow struct{}

func (passthroughUow) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeUsers struct {
	ports.UserRepository
	byID map[string]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	usr, ok := f.byID[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return usr, nil
}

type fakeMail struct {
	to, subject, body string
	sends             int
	err               error
}

func (f *fakeMail) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sends++
	f.to, f.subject, f.body = to, subject, body
	return nil
}

func encode(t *testing.T, msg contracts.StatusChangedMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func newService(mail *fakeMail) *Service {
	users := &fakeUsers{byID: map[string]*user.User{
		"u-1": {ID: "u-1", Email: "pat@example.com", Name: "Pat"},
	}}
	return NewService(passthroughUow{}, users, mail, logger.New("notifier-test"))
}

func TestStatusChangeEmailsRequester(t *testing.T) {
	mail := &fakeMail{}
	svc := newService(mail)

	msg := contracts.StatusChangedMessage{
		RequestID:   "req-1",
		UserID:      "u-1",
		Status:      "processing",
		Description: "fall detected",
	}
	if err := svc.HandleStatusChange(context.Background(), encode(t, msg)); err != nil {
		t.Fatalf("HandleStatusChange: %v", err)
	}

	if mail.sends != 1 {
		t.Fatalf("sends = %d, want 1", mail.sends)
	}
	if mail.to != "pat@example.com" {
		t.Errorf("to = %q, want the requester's address", mail.to)
	}
	if !strings.Contains(mail.subject, "processing") {
		t.Errorf("subject %q does not mention the new status", mail.subject)
	}
	if !strings.Contains(mail.body, "Pat") || !strings.Contains(mail.body, "fall detected") {
		t.Errorf("body %q is missing the name or description", mail.body)
	}
}

func TestMalformedMessageIsRejected(t *testing.T) {
	mail := &fakeMail{}
	svc := newService(mail)

	if err := svc.HandleStatusChange(context.Background(), []byte("{broken")); err == nil {
		t.Fatal("malformed body should be rejected")
	}
	if err := svc.HandleStatusChange(context.Background(), []byte(`{"status":"pending"}`)); err == nil {
		t.Fatal("message without user_id should be rejected")
	}
	if mail.sends != 0 {
		t.Errorf("sends = %d, want 0", mail.sends)
	}
}

func TestUnknownUserIsRejected(t *testing.T) {
	mail := &fakeMail{}
	svc := newService(mail)

	msg := contracts.StatusChangedMessage{RequestID: "req-2", UserID: "ghost", Status: "completed"}
	if err := svc.HandleStatusChange(context.Background(), encode(t, msg)); err == nil {
		t.Fatal("unknown requester should be rejected")
	}
	if mail.sends != 0 {
		t.Errorf("sends = %d, want 0", mail.sends)
	}
}

func TestSendFailurePropagates(t *testing.T) {
	mail := &fakeMail{err: errors.New("relay down")}
	svc := newService(mail)

	msg := contracts.StatusChangedMessage{RequestID: "req-3", UserID: "u-1", Status: "completed"}
	if err := svc.HandleStatusChange(context.Background(), encode(t, msg)); err == nil {
		t.Fatal("send failure should propagate so the delivery is not acked")
	}
}
