package service

import (
	"context"
	"errors"

	"meditrack/internal/domain/contact"
	"meditrack/internal/ports"
	"meditrack/internal/postgres"
)

// AddContact creates an emergency contact owned by userID.
func (svc *Service) AddContact(ctx context.Context, userID string, in ports.ContactInput) (*contact.Contact, error) {
	cnt, err := contact.NewContact(userID, in.Name, in.Phone, in.Relationship)
	if err != nil {
		return nil, err
	}

	err = svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return svc.contacts.Create(txCtx, cnt)
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(ctx, "contact_added", "Emergency contact added",
		map[string]any{"user_id": userID, "contact_id": cnt.ID})
	return cnt, nil
}

// ListContacts returns the caller's emergency contacts.
func (svc *Service) ListContacts(ctx context.Context, userID string) ([]*contact.Contact, error) {
	var out []*contact.Contact
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = svc.contacts.ListForUser(txCtx, userID)
		return err
	})
	return out, err
}

// UpdateContact rewrites a contact the caller owns.
func (svc *Service) UpdateContact(ctx context.Context, userID, contactID string, in ports.ContactInput) (*contact.Contact, error) {
	var cnt *contact.Contact
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		cnt, err = svc.contacts.GetByID(txCtx, contactID)
		if err != nil {
			return err
		}
		if cnt.UserID != userID {
			return ErrForbidden
		}

		cnt.Name = in.Name
		cnt.Phone = in.Phone
		cnt.Relationship = in.Relationship
		if err := cnt.Validate(); err != nil {
			return err
		}
		return svc.contacts.Update(txCtx, cnt)
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return cnt, nil
}

// RemoveContact deletes a contact the caller owns.
func (svc *Service) RemoveContact(ctx context.Context, userID, contactID string) error {
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		cnt, err := svc.contacts.GetByID(txCtx, contactID)
		if err != nil {
			return err
		}
		if cnt.UserID != userID {
			return ErrForbidden
		}
		return svc.contacts.Delete(txCtx, contactID)
	})
	if errors.Is(err, postgres.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
