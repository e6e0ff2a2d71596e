package postgres

import (
	"context"
	"errors"

	"meditrack/internal/domain/user"
	"meditrack/internal/ports"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("record not found")

// UserRepo persists users using pgx and plain SQL.
type UserRepo struct{}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo() ports.UserRepository {
	return &UserRepo{}
}

// CreateUser inserts a new user row and fills in generated fields.
func (repo *UserRepo) CreateUser(ctx context.Context, usr *user.User) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO users (
			username, email, name, phone, role, status, password_hash,
			blood_type, allergies, medical_conditions, weight, blood_pressure
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`,
		usr.Username,
		usr.Email,
		usr.Name,
		usr.Phone,
		usr.Role.String(),
		usr.Status.String(),
		usr.PasswordHash,
		usr.Medical.BloodType,
		usr.Medical.Allergies,
		usr.Medical.MedicalConditions,
		usr.Medical.Weight,
		usr.Medical.BloodPressure,
	).Scan(&usr.ID, &usr.CreatedAt, &usr.UpdatedAt)
}

// GetByID returns one user by id.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	return repo.getBy(ctx, `WHERE id = $1`, id)
}

// GetByUsername returns one user by username.
func (repo *UserRepo) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return repo.getBy(ctx, `WHERE username = $1`, username)
}

func (repo *UserRepo) getBy(ctx context.Context, where string, arg any) (*user.User, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out        user.User
		roleText   string
		statusText string
	)

	err = tx.QueryRow(ctx, `
		SELECT
			id, created_at, updated_at,
			username, email, name, phone, role, status, password_hash,
			blood_type, allergies, medical_conditions, weight, blood_pressure
		FROM users
		`+where,
		arg,
	).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
		&out.Username, &out.Email, &out.Name, &out.Phone, &roleText, &statusText, &out.PasswordHash,
		&out.Medical.BloodType, &out.Medical.Allergies, &out.Medical.MedicalConditions,
		&out.Medical.Weight, &out.Medical.BloodPressure,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if out.Role, err = user.ParseRole(roleText); err != nil {
		return nil, err
	}
	if out.Status, err = user.ParseStatus(statusText); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateProfile persists name, phone and the medical profile.
func (repo *UserRepo) UpdateProfile(ctx context.Context, usr *user.User) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET name = $2, phone = $3,
			blood_type = $4, allergies = $5, medical_conditions = $6,
			weight = $7, blood_pressure = $8,
			updated_at = now()
		WHERE id = $1
	`,
		usr.ID,
		usr.Name,
		usr.Phone,
		usr.Medical.BloodType,
		usr.Medical.Allergies,
		usr.Medical.MedicalConditions,
		usr.Medical.Weight,
		usr.Medical.BloodPressure,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
