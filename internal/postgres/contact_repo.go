package postgres

import (
	"context"
	"errors"

	"meditrack/internal/domain/contact"
	"meditrack/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ContactRepo persists emergency contacts using pgx and plain SQL.
type ContactRepo struct{}

// NewContactRepo constructs a new ContactRepo.
func NewContactRepo() ports.ContactRepository {
	return &ContactRepo{}
}

// Create inserts a new contact row.
func (repo *ContactRepo) Create(ctx context.Context, cnt *contact.Contact) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO emergency_contacts (user_id, name, phone, relationship)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`,
		cnt.UserID, cnt.Name, cnt.Phone, cnt.Relationship,
	).Scan(&cnt.ID, &cnt.CreatedAt)
}

// GetByID returns one contact by id.
func (repo *ContactRepo) GetByID(ctx context.Context, id string) (*contact.Contact, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out contact.Contact
	err = tx.QueryRow(ctx, `
		SELECT id, created_at, user_id, name, phone, relationship
		FROM emergency_contacts
		WHERE id = $1
	`, id).Scan(&out.ID, &out.CreatedAt, &out.UserID, &out.Name, &out.Phone, &out.Relationship)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// ListForUser returns all contacts owned by the given user.
func (repo *ContactRepo) ListForUser(ctx context.Context, userID string) ([]*contact.Contact, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, created_at, user_id, name, phone, relationship
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*contact.Contact
	for rows.Next() {
		var cnt contact.Contact
		if err := rows.Scan(&cnt.ID, &cnt.CreatedAt, &cnt.UserID, &cnt.Name, &cnt.Phone, &cnt.Relationship); err != nil {
			return nil, err
		}
		out = append(out, &cnt)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a contact.
func (repo *ContactRepo) Update(ctx context.Context, cnt *contact.Contact) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE emergency_contacts
		SET name = $2, phone = $3, relationship = $4
		WHERE id = $1
	`, cnt.ID, cnt.Name, cnt.Phone, cnt.Relationship)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a contact row.
func (repo *ContactRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM emergency_contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
