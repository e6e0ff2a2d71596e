package handler

import (
	"net/http"
	"strings"
	"time"

	"meditrack/internal/domain/emergency"
	"meditrack/internal/ports"
)

type createRequestBody struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Description   string  `json:"description,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

type updateRequestBody struct {
	Status            *string `json:"status,omitempty"`
	Description       *string `json:"description,omitempty"`
	MedicalFacilityID *string `json:"medical_facility_id,omitempty"`
	AssignedResponder *string `json:"assigned_responder,omitempty"`
}

type requestResponse struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Status            string    `json:"status"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Description       string    `json:"description,omitempty"`
	CorrelationID     string    `json:"correlation_id,omitempty"`
	MedicalFacilityID string    `json:"medical_facility_id,omitempty"`
	AssignedResponder string    `json:"assigned_responder,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toRequestResponse(req *emergency.Request) requestResponse {
	return requestResponse{
		ID:                req.ID,
		UserID:            req.UserID,
		Status:            req.Status.String(),
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		Description:       req.Description,
		CorrelationID:     req.CorrelationID,
		MedicalFacilityID: req.MedicalFacilityID,
		AssignedResponder: req.AssignedResponder,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

func (handler *EmergencyHTTPHandler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	var body createRequestBody
	if !handler.decodeJSON(ctx, w, r, &body) {
		return
	}

	req, err := handler.emergencies.CreateRequest(ctx, ports.CreateEmergencyInput{
		UserID:        claims.Subject,
		Latitude:      body.Latitude,
		Longitude:     body.Longitude,
		Description:   body.Description,
		CorrelationID: body.CorrelationID,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, toRequestResponse(req))
}

func (handler *EmergencyHTTPHandler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	requests, err := handler.emergencies.ListRequests(ctx, claims.Subject, claims.Role.IsAdmin())
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, out)
}

func (handler *EmergencyHTTPHandler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	id := r.PathValue("request_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing request_id", nil)
		return
	}

	req, err := handler.emergencies.GetRequest(ctx, claims.Subject, claims.Role.IsAdmin(), id)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toRequestResponse(req))
}

func (handler *EmergencyHTTPHandler) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	id := r.PathValue("request_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing request_id", nil)
		return
	}

	var body updateRequestBody
	if !handler.decodeJSON(ctx, w, r, &body) {
		return
	}

	in := ports.UpdateEmergencyInput{
		Description:       body.Description,
		MedicalFacilityID: body.MedicalFacilityID,
		AssignedResponder: body.AssignedResponder,
	}
	if body.Status != nil {
		status, err := emergency.ParseStatus(strings.TrimSpace(*body.Status))
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid status", err)
			return
		}
		in.Status = &status
	}

	req, err := handler.emergencies.UpdateRequest(ctx, claims.Subject, claims.Role.IsAdmin(), id, in)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toRequestResponse(req))
}

func (handler *EmergencyHTTPHandler) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	id := r.PathValue("request_id")
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing request_id", nil)
		return
	}

	if err := handler.emergencies.DeleteRequest(ctx, claims.Subject, claims.Role.IsAdmin(), id); err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
