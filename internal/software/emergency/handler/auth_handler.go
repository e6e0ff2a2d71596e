package handler

import (
	"net/http"
	"strings"

	"meditrack/internal/domain/user"
	"meditrack/internal/ports"
)

type registerRequest struct {
	Username string              `json:"username"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Name     string              `json:"name"`
	Phone    string              `json:"phone,omitempty"`
	Role     string              `json:"role,omitempty"`
	Medical  user.MedicalProfile `json:"medical_profile,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (handler *EmergencyHTTPHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req registerRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	// default to patient; the role is part of the public signup surface so
	// admin self-registration is rejected here
	role := user.RolePatient
	if s := strings.TrimSpace(req.Role); s != "" {
		parsed, err := user.ParseRole(s)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid role", err)
			return
		}
		if parsed.IsAdmin() {
			handler.httpError(ctx, w, http.StatusForbidden, "cannot self-register as admin", nil)
			return
		}
		role = parsed
	}

	result, err := handler.auth.Register(ctx, ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     role,
		Medical:  req.Medical,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, result)
}

func (handler *EmergencyHTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req loginRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	result, err := handler.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, result)
}
