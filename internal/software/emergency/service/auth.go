package service

import (
	"context"
	"errors"
	"fmt"

	"meditrack/internal/domain/user"
	"meditrack/internal/ports"
	"meditrack/internal/postgres"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// Register creates a user account and returns a fresh access token.
func (svc *Service) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	if len(in.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	usr, err := user.NewUser(in.Username, in.Email, in.Name, in.Role, string(hash))
	if err != nil {
		return nil, err
	}
	usr.Phone = in.Phone
	usr.Medical = in.Medical

	err = svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return svc.users.CreateUser(txCtx, usr)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	svc.logger.Info(ctx, "user_registered", "New user registered",
		map[string]any{"user_id": usr.ID, "role": usr.Role.String()})

	return svc.issueToken(usr)
}

// Login verifies credentials and returns an access token.
func (svc *Service) Login(ctx context.Context, username, password string) (*ports.AuthResult, error) {
	var usr *user.User
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		usr, err = svc.users.GetByUsername(txCtx, username)
		return err
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// same error as a wrong password, to avoid username probing
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)); err != nil {
		svc.logger.Info(ctx, "login_rejected", "Password mismatch", map[string]any{"username": username})
		return nil, ErrInvalidCredentials
	}
	if !usr.IsActive() {
		return nil, ErrInactiveAccount
	}

	svc.logger.Info(ctx, "user_logged_in", "User authenticated",
		map[string]any{"user_id": usr.ID, "role": usr.Role.String()})

	return svc.issueToken(usr)
}

func (svc *Service) issueToken(usr *user.User) (*ports.AuthResult, error) {
	token, claims, err := svc.tokens.IssueUserToken(usr.ID, usr.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &ports.AuthResult{
		UserID:    usr.ID,
		Username:  usr.Username,
		Role:      usr.Role.String(),
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
