package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"meditrack/internal/contracts"
	"meditrack/internal/logger"
	"meditrack/internal/mailer"
	"meditrack/internal/ports"
)

// Service turns status-change events into emails to the requester. A
// returned error means the delivery should be rejected (poison message or a
// transient lookup failure).
type Service struct {
	uow   ports.UnitOfWork
	users ports.UserRepository
	mail  mailer.Sender
	log   *logger.Logger
}

// NewService wires the notifier.
func NewService(uow ports.UnitOfWork, users ports.UserRepository, mail mailer.Sender, log *logger.Logger) *Service {
	return &Service{uow: uow, users: users, mail: mail, log: log}
}

// HandleStatusChange processes one message from the notification queue.
func (svc *Service) HandleStatusChange(ctx context.Context, body []byte) error {
	var msg contracts.StatusChangedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		svc.log.Error(ctx, "notification_decode_failed", "Dropping undecodable status message", err, nil)
		return fmt.Errorf("notifier: decode status message: %w", err)
	}
	if msg.UserID == "" || msg.Status == "" {
		return fmt.Errorf("notifier: status message missing user_id or status")
	}

	ctx = svc.log.WithEmergencyID(ctx, msg.RequestID)
	if msg.CorrelationID != "" {
		ctx = svc.log.WithRequestID(ctx, msg.CorrelationID)
	}

	var email, name string
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		usr, err := svc.users.GetByID(txCtx, msg.UserID)
		if err != nil {
			return err
		}
		email, name = usr.Email, usr.Name
		return nil
	})
	if err != nil {
		return fmt.Errorf("notifier: look up user %s: %w", msg.UserID, err)
	}

	subject, body2 := composeStatusEmail(name, msg)
	if err := svc.mail.Send(ctx, email, subject, body2); err != nil {
		return err
	}

	svc.log.Info(ctx, "status_notification_sent", "Requester notified about status change",
		map[string]any{"status": msg.Status, "user_id": msg.UserID})
	return nil
}

// composeStatusEmail renders the subject and plain-text body.
func composeStatusEmail(name string, msg contracts.StatusChangedMessage) (subject, body string) {
	subject = fmt.Sprintf("MediTrack: your emergency request is %s", msg.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "The status of your emergency request has changed to: %s.\n", msg.Status)
	if msg.Description != "" {
		fmt.Fprintf(&b, "\nRequest details: %s\n", msg.Description)
	}
	if msg.FacilityName != "" {
		fmt.Fprintf(&b, "Assigned facility: %s\n", msg.FacilityName)
	}
	b.WriteString("\nIf this was not you, please contact support immediately.\n\nMediTrack\n")
	return subject, b.String()
}
