package service

import (
	"context"
	"errors"
	"sort"

	"meditrack/internal/domain/facility"
	"meditrack/internal/ports"
	"meditrack/internal/postgres"
)

// CreateFacility registers a medical facility (admin only, enforced at the
// HTTP boundary).
func (svc *Service) CreateFacility(ctx context.Context, in ports.FacilityInput) (*facility.Facility, error) {
	fac, err := facility.NewFacility(in.Name, in.Type, in.Address, in.Phone, in.Latitude, in.Longitude, in.OpeningHours)
	if err != nil {
		return nil, err
	}

	err = svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return svc.facilities.Create(txCtx, fac)
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(ctx, "facility_created", "Medical facility registered",
		map[string]any{"facility_id": fac.ID, "type": fac.Type.String()})
	return fac, nil
}

// GetFacility returns one facility by id.
func (svc *Service) GetFacility(ctx context.Context, id string) (*facility.Facility, error) {
	var fac *facility.Facility
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		fac, err = svc.facilities.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fac, nil
}

// ListFacilities returns every registered facility.
func (svc *Service) ListFacilities(ctx context.Context) ([]*facility.Facility, error) {
	var out []*facility.Facility
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = svc.facilities.List(txCtx)
		return err
	})
	return out, err
}

// FindNearby returns facilities within radiusKM of the point, closest first.
// The distance is the straight-line haversine distance in kilometers.
func (svc *Service) FindNearby(ctx context.Context, lat, lng, radiusKM float64) ([]ports.NearbyFacility, error) {
	all, err := svc.ListFacilities(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ports.NearbyFacility, 0, len(all))
	for _, fac := range all {
		if dist := fac.DistanceKM(lat, lng); dist <= radiusKM {
			out = append(out, ports.NearbyFacility{Facility: fac, DistanceKM: dist})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	return out, nil
}

// UpdateFacility rewrites a facility.
func (svc *Service) UpdateFacility(ctx context.Context, id string, in ports.FacilityInput) (*facility.Facility, error) {
	var fac *facility.Facility
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		fac, err = svc.facilities.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		fac.Name = in.Name
		fac.Type = in.Type
		fac.Address = in.Address
		fac.Phone = in.Phone
		fac.Latitude = in.Latitude
		fac.Longitude = in.Longitude
		fac.OpeningHours = in.OpeningHours
		if err := fac.Validate(); err != nil {
			return err
		}
		return svc.facilities.Update(txCtx, fac)
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fac, nil
}

// DeleteFacility removes a facility.
func (svc *Service) DeleteFacility(ctx context.Context, id string) error {
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return svc.facilities.Delete(txCtx, id)
	})
	if errors.Is(err, postgres.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
