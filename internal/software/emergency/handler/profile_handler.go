package handler

import (
	"net/http"
	"time"

	"meditrack/internal/domain/user"
)

type profileResponse struct {
	ID        string              `json:"id"`
	Username  string              `json:"username"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Phone     string              `json:"phone,omitempty"`
	Role      string              `json:"role"`
	Status    string              `json:"status"`
	Medical   user.MedicalProfile `json:"medical_profile"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toProfileResponse(usr *user.User) profileResponse {
	return profileResponse{
		ID:        usr.ID,
		Username:  usr.Username,
		Email:     usr.Email,
		Name:      usr.Name,
		Phone:     usr.Phone,
		Role:      usr.Role.String(),
		Status:    usr.Status.String(),
		Medical:   usr.Medical,
		CreatedAt: usr.CreatedAt,
		UpdatedAt: usr.UpdatedAt,
	}
}

type updateProfileRequest struct {
	Name    string              `json:"name,omitempty"`
	Phone   string              `json:"phone,omitempty"`
	Medical user.MedicalProfile `json:"medical_profile"`
}

func (handler *EmergencyHTTPHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	usr, err := handler.profiles.GetProfile(ctx, claims.Subject)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toProfileResponse(usr))
}

func (handler *EmergencyHTTPHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := handler.callerClaims(ctx, w, r)
	if claims == nil {
		return
	}

	var req updateProfileRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	usr, err := handler.profiles.UpdateProfile(ctx, claims.Subject, req.Name, req.Phone, req.Medical)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, toProfileResponse(usr))
}
