package service

import (
	"context"
	"errors"
	"strings"

	"meditrack/internal/domain/user"
	"meditrack/internal/postgres"
)

// GetProfile loads the caller's account including the medical profile.
func (svc *Service) GetProfile(ctx context.Context, userID string) (*user.User, error) {
	var usr *user.User
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		usr, err = svc.users.GetByID(txCtx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return usr, nil
}

// UpdateProfile replaces the caller's name, phone and medical profile.
func (svc *Service) UpdateProfile(ctx context.Context, userID, name, phone string, medical user.MedicalProfile) (*user.User, error) {
	var usr *user.User
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		usr, err = svc.users.GetByID(txCtx, userID)
		if err != nil {
			return err
		}

		if name = strings.TrimSpace(name); name != "" {
			usr.Name = name
		}
		if phone = strings.TrimSpace(phone); phone != "" {
			usr.Phone = phone
		}
		usr.UpdateMedical(medical)

		if err := usr.Validate(); err != nil {
			return err
		}
		return svc.users.UpdateProfile(txCtx, usr)
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	svc.logger.Info(ctx, "profile_updated", "Medical profile updated", map[string]any{"user_id": userID})
	return usr, nil
}
