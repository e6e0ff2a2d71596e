package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"meditrack/internal/domain/emergency"
	"meditrack/internal/domain/user"
	"meditrack/internal/jwt"
	"meditrack/internal/logger"
	"meditrack/internal/ports"
	"meditrack/internal/realtime/relay"
	"meditrack/internal/software/emergency/service"

	"github.com/jackc/pgx/v5/pgconn"
)

// EmergencyHTTPHandler adapts HTTP requests to the emergency service and
// mounts the realtime relay.
type EmergencyHTTPHandler struct {
	auth        ports.AuthService
	profiles    ports.ProfileService
	contacts    ports.ContactService
	facilities  ports.FacilityService
	emergencies ports.EmergencyService
	tokens      *jwt.Manager
	relay       *relay.Relay
	logger      *logger.Logger
}

// New wires the HTTP handler around the service layer.
func New(
	svc *service.Service,
	tokens *jwt.Manager,
	rly *relay.Relay,
	log *logger.Logger,
) *EmergencyHTTPHandler {
	return &EmergencyHTTPHandler{
		auth:        svc,
		profiles:    svc,
		contacts:    svc,
		facilities:  svc,
		emergencies: svc,
		tokens:      tokens,
		relay:       rly,
		logger:      log,
	}
}

// RegisterRoutes mounts every endpoint on the provided mux.
func (handler *EmergencyHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	anyRole := jwt.AuthMiddlewareFunc(handler.tokens, user.RolePatient, user.RoleResponder, user.RoleAdmin)
	adminOnly := jwt.AuthMiddlewareFunc(handler.tokens, user.RoleAdmin)

	// auth
	mux.HandleFunc("POST /auth/register", handler.handleRegister)
	mux.HandleFunc("POST /auth/login", handler.handleLogin)

	// profile
	mux.HandleFunc("GET /users/me", anyRole(handler.handleGetProfile))
	mux.HandleFunc("PATCH /users/me", anyRole(handler.handleUpdateProfile))

	// emergency contacts
	mux.HandleFunc("POST /emergency-contacts", anyRole(handler.handleAddContact))
	mux.HandleFunc("GET /emergency-contacts", anyRole(handler.handleListContacts))
	mux.HandleFunc("PUT /emergency-contacts/{contact_id}", anyRole(handler.handleUpdateContact))
	mux.HandleFunc("DELETE /emergency-contacts/{contact_id}", anyRole(handler.handleRemoveContact))

	// medical facilities
	mux.HandleFunc("GET /medical-facilities", anyRole(handler.handleListFacilities))
	mux.HandleFunc("GET /medical-facilities/nearby", anyRole(handler.handleNearbyFacilities))
	mux.HandleFunc("GET /medical-facilities/{facility_id}", anyRole(handler.handleGetFacility))
	mux.HandleFunc("POST /medical-facilities", adminOnly(handler.handleCreateFacility))
	mux.HandleFunc("PUT /medical-facilities/{facility_id}", adminOnly(handler.handleUpdateFacility))
	mux.HandleFunc("DELETE /medical-facilities/{facility_id}", adminOnly(handler.handleDeleteFacility))

	// emergency requests
	mux.HandleFunc("POST /emergency-requests", anyRole(handler.handleCreateRequest))
	mux.HandleFunc("GET /emergency-requests", anyRole(handler.handleListRequests))
	mux.HandleFunc("GET /emergency-requests/{request_id}", anyRole(handler.handleGetRequest))
	mux.HandleFunc("PATCH /emergency-requests/{request_id}", anyRole(handler.handleUpdateRequest))
	mux.HandleFunc("DELETE /emergency-requests/{request_id}", anyRole(handler.handleDeleteRequest))

	// realtime relay: the channel itself carries no credentials
	mux.HandleFunc("GET /ws", handler.relay.Handle)

	mux.HandleFunc("GET /health", handler.handleHealth)
}

func (handler *EmergencyHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- general helpers -----

// decodeJSON applies the shared body rules: JSON content type, 1 MiB limit,
// strict field checking.
func (handler *EmergencyHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// svcError maps service-layer failures onto HTTP statuses.
func (handler *EmergencyHTTPHandler) svcError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "record not found", err)
	case errors.Is(err, service.ErrForbidden):
		handler.httpError(ctx, w, http.StatusForbidden, "operation not permitted", err)
	case errors.Is(err, service.ErrUsernameTaken):
		handler.httpError(ctx, w, http.StatusConflict, "username is already taken", err)
	case errors.Is(err, service.ErrInvalidCredentials):
		handler.httpError(ctx, w, http.StatusUnauthorized, "invalid username or password", err)
	case errors.Is(err, service.ErrInactiveAccount):
		handler.httpError(ctx, w, http.StatusForbidden, "account is not active", err)
	case errors.Is(err, service.ErrWeakPassword):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, emergency.ErrBadTransition), errors.Is(err, emergency.ErrTerminalRequest):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// callerClaims pulls the authenticated claims or fails the request.
func (handler *EmergencyHTTPHandler) callerClaims(ctx context.Context, w http.ResponseWriter, r *http.Request) *jwt.Claims {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return nil
	}
	return claims
}

func (handler *EmergencyHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *EmergencyHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *EmergencyHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
