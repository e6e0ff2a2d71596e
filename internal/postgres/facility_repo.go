package postgres

import (
	"context"
	"errors"

	"meditrack/internal/domain/facility"
	"meditrack/internal/ports"

	"github.com/jackc/pgx/v5"
)

// FacilityRepo persists medical facilities using pgx and plain SQL.
type FacilityRepo struct{}

// NewFacilityRepo constructs a new FacilityRepo.
func NewFacilityRepo() ports.FacilityRepository {
	return &FacilityRepo{}
}

const facilityColumns = `
	id, created_at, updated_at,
	name, type, address, phone, latitude, longitude, opening_hours`

// Create inserts a new facility row.
func (repo *FacilityRepo) Create(ctx context.Context, fac *facility.Facility) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO medical_facilities (name, type, address, phone, latitude, longitude, opening_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		fac.Name, fac.Type.String(), fac.Address, fac.Phone,
		fac.Latitude, fac.Longitude, fac.OpeningHours,
	).Scan(&fac.ID, &fac.CreatedAt, &fac.UpdatedAt)
}

// GetByID returns one facility by id.
func (repo *FacilityRepo) GetByID(ctx context.Context, id string) (*facility.Facility, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+facilityColumns+` FROM medical_facilities WHERE id = $1`, id)
	fac, err := scanFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fac, nil
}

// List returns all facilities ordered by name.
func (repo *FacilityRepo) List(ctx context.Context) ([]*facility.Facility, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+facilityColumns+` FROM medical_facilities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*facility.Facility
	for rows.Next() {
		fac, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fac)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a facility.
func (repo *FacilityRepo) Update(ctx context.Context, fac *facility.Facility) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE medical_facilities
		SET name = $2, type = $3, address = $4, phone = $5,
			latitude = $6, longitude = $7, opening_hours = $8,
			updated_at = now()
		WHERE id = $1
	`,
		fac.ID, fac.Name, fac.Type.String(), fac.Address, fac.Phone,
		fac.Latitude, fac.Longitude, fac.OpeningHours,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a facility row.
func (repo *FacilityRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM medical_facilities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanFacility maps one row onto a Facility entity.
func scanFacility(row pgx.Row) (*facility.Facility, error) {
	var (
		out      facility.Facility
		typeText string
	)
	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
		&out.Name, &typeText, &out.Address, &out.Phone,
		&out.Latitude, &out.Longitude, &out.OpeningHours,
	)
	if err != nil {
		return nil, err
	}
	if out.Type, err = facility.ParseType(typeText); err != nil {
		return nil, err
	}
	return &out, nil
}
