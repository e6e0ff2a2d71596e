package handler

import (
	"net/http"
	"time"

	"meditrack/internal/domain/contact"
	"meditrack/internal/ports"
)

type contactRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

type contactResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Relationship string    `json:"relationship,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toContactResponse(cnt *contact.Contact) contactResponse {
	return contactResponse{
		ID:           cnt.ID,
		UserID:       cnt.UserID,
		Name:         cnt.Name,
		Phone:        cnt.Phone,
		Relationship: cnt.Relationship,
		CreatedAt:    cnt.CreatedAt,
	}
}

func (handler *EmergencyHTTPHandler) handleAddContact(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	var req contactRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	cnt, err := handler.contacts.AddContact(ctx, claims.Subject, ports.ContactInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, toContactResponse(cnt))
}

func (handler *EmergencyHTTPHandler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	contacts, err := handler.contacts.ListContacts(ctx, claims.Subject)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	out := make([]contactResponse, 0, len(contacts))
	for _, cnt := range contacts {
		out = append(out, toContactResponse(cnt))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, out)
}

func (handler *EmergencyHTTPHandler) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	contactID := r.PathValue("contact_id")
	if contactID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing contact_id", nil)
		return
	}

	var req contactRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	cnt, err := handler.contacts.UpdateContact(ctx, claims.Subject, contactID, ports.ContactInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toContactResponse(cnt))
}

func (handler *EmergencyHTTPHandler) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	contactID := r.PathValue("contact_id")
	if contactID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing contact_id", nil)
		return
	}

	if err := handler.contacts.RemoveContact(ctx, claims.Subject, contactID); err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
