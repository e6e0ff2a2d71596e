package handler

import (
	"net/http"
	"strconv"
	"time"

	"meditrack/internal/domain/facility"
	"meditrack/internal/ports"
)

type facilityRequest struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Address      string  `json:"address,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	OpeningHours string  `json:"opening_hours,omitempty"`
}

type facilityResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Address      string    `json:"address,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	OpeningHours string    `json:"opening_hours,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type nearbyFacilityResponse struct {
	facilityResponse
	DistanceKM float64 `json:"distance_km"`
}

func toFacilityResponse(fac *facility.Facility) facilityResponse {
	return facilityResponse{
		ID:           fac.ID,
		Name:         fac.Name,
		Type:         fac.Type.String(),
		Address:      fac.Address,
		Phone:        fac.Phone,
		Latitude:     fac.Latitude,
		Longitude:    fac.Longitude,
		OpeningHours: fac.OpeningHours,
		CreatedAt:    fac.CreatedAt,
		UpdatedAt:    fac.UpdatedAt,
	}
}

func (handler *EmergencyHTTPHandler) handleCreateFacility(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req facilityRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	typ, err := facility.ParseType(req.Type)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid facility type", err)
		return
	}

	fac, err := handler.facilities.CreateFacility(ctx, ports.FacilityInput{
		Name:         req.Name,
		Type:         typ,
		Address:      req.Address,
		Phone:        req.Phone,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		OpeningHours: req.OpeningHours,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, toFacilityResponse(fac))
}

func (handler *EmergencyHTTPHandler) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id := r.PathValue("facility_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing facility_id", nil)
		return
	}

	fac, err := handler.facilities.GetFacility(ctx, id)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toFacilityResponse(fac))
}

func (handler *EmergencyHTTPHandler) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	facilities, err := handler.facilities.ListFacilities(ctx)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	out := make([]facilityResponse, 0, len(facilities))
	for _, fac := range facilities {
		out = append(out, toFacilityResponse(fac))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, out)
}

// handleNearbyFacilities answers
// GET /medical-facilities/nearby?latitude=..&longitude=..&radius=..
// with facilities sorted by distance. Radius is in kilometers, default 10.
func (handler *EmergencyHTTPHandler) handleNearbyFacilities(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "latitude is required and must be a number", err)
		return
	}
	lng, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "longitude is required and must be a number", err)
		return
	}

	radius := 10.0
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			handler.httpError(ctx, w, http.StatusBadRequest, "radius must be a positive number", err)
			return
		}
	}

	nearby, err := handler.facilities.FindNearby(ctx, lat, lng, radius)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	out := make([]nearbyFacilityResponse, 0, len(nearby))
	for _, nf := range nearby {
		out = append(out, nearbyFacilityResponse{
			facilityResponse: toFacilityResponse(nf.Facility),
			DistanceKM:       nf.DistanceKM,
		})
	}
	handler.jsonResponse(ctx, w, http.StatusOK, out)
}

func (handler *EmergencyHTTPHandler) handleUpdateFacility(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id := r.PathValue("facility_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing facility_id", nil)
		return
	}

	var req facilityRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	typ, err := facility.ParseType(req.Type)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid facility type", err)
		return
	}

	fac, err := handler.facilities.UpdateFacility(ctx, id, ports.FacilityInput{
		Name:         req.Name,
		Type:         typ,
		Address:      req.Address,
		Phone:        req.Phone,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		OpeningHours: req.OpeningHours,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toFacilityResponse(fac))
}

func (handler *EmergencyHTTPHandler) handleDeleteFacility(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id := r.PathValue("facility_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing facility_id", nil)
		return
	}

	if err := handler.facilities.DeleteFacility(ctx, id); err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
