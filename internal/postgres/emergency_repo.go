package postgres

import (
	"context"
	"errors"

	"meditrack/internal/domain/emergency"
	"meditrack/internal/ports"

	"github.com/jackc/pgx/v5"
)

// EmergencyRepo persists emergency requests using pgx and plain SQL.
type EmergencyRepo struct{}

// NewEmergencyRepo constructs a new EmergencyRepo.
func NewEmergencyRepo() ports.EmergencyRepository {
	return &EmergencyRepo{}
}

const emergencyColumns = `
	id, created_at, updated_at,
	user_id, status, latitude, longitude, description, COALESCE(correlation_id, ''),
	COALESCE(medical_facility_id::text, ''), COALESCE(assigned_responder::text, '')`

// Create inserts a new emergency request row.
func (repo *EmergencyRepo) Create(ctx context.Context, req *emergency.Request) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO emergency_requests (user_id, status, latitude, longitude, description, correlation_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at, updated_at
	`,
		req.UserID, req.Status.String(), req.Latitude, req.Longitude,
		req.Description, req.CorrelationID,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

// GetByID returns one request by id.
func (repo *EmergencyRepo) GetByID(ctx context.Context, id string) (*emergency.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+emergencyColumns+` FROM emergency_requests WHERE id = $1`, id)
	req, err := scanEmergency(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListAll returns every request, newest first (response-team view).
func (repo *EmergencyRepo) ListAll(ctx context.Context) ([]*emergency.Request, error) {
	return repo.list(ctx, ``)
}

// ListForUser returns the given user's requests, newest first.
func (repo *EmergencyRepo) ListForUser(ctx context.Context, userID string) ([]*emergency.Request, error) {
	return repo.list(ctx, `WHERE user_id = $1`, userID)
}

func (repo *EmergencyRepo) list(ctx context.Context, where string, args ...any) ([]*emergency.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergency_requests
		`+where+`
		ORDER BY created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*emergency.Request
	for rows.Next() {
		req, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a request.
func (repo *EmergencyRepo) Update(ctx context.Context, req *emergency.Request) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE emergency_requests
		SET status = $2, description = $3,
			medical_facility_id = NULLIF($4, '')::uuid,
			assigned_responder = NULLIF($5, '')::uuid,
			updated_at = now()
		WHERE id = $1
	`,
		req.ID, req.Status.String(), req.Description,
		req.MedicalFacilityID, req.AssignedResponder,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a request row.
func (repo *EmergencyRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM emergency_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanEmergency maps one row onto a Request entity.
func scanEmergency(row pgx.Row) (*emergency.Request, error) {
	var (
		out        emergency.Request
		statusText string
	)
	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
		&out.UserID, &statusText, &out.Latitude, &out.Longitude,
		&out.Description, &out.CorrelationID,
		&out.MedicalFacilityID, &out.AssignedResponder,
	)
	if err != nil {
		return nil, err
	}
	if out.Status, err = emergency.ParseStatus(statusText); err != nil {
		return nil, err
	}
	return &out, nil
}
