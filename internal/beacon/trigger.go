package beacon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"meditrack/internal/domain/geo"
	"meditrack/internal/geolocate"
	"meditrack/internal/logger"
)

// TriggerHandler is the localhost "panic button": a tiny HTTP surface that
// fires the composer and reports beacon state.
type TriggerHandler struct {
	composer *Composer
	provider *geolocate.Provider
	logger   *logger.Logger
}

// NewTriggerHandler wires the trigger endpoints around a composer.
func NewTriggerHandler(composer *Composer, provider *geolocate.Provider, log *logger.Logger) *TriggerHandler {
	return &TriggerHandler{composer: composer, provider: provider, logger: log}
}

// RegisterRoutes mounts the trigger endpoints on the provided mux.
func (handler *TriggerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trigger", handler.handleTrigger)
	mux.HandleFunc("POST /reset", handler.handleReset)
	mux.HandleFunc("GET /status", handler.handleStatus)
	mux.HandleFunc("GET /health", handler.handleHealth)
}

type triggerRequest struct {
	Description string `json:"description"`
}

type triggerResponse struct {
	CorrelationID string `json:"correlation_id"`
	RequestID     string `json:"request_id,omitempty"`
	RealtimeError string `json:"realtime_error,omitempty"`
	DurableError  string `json:"durable_error,omitempty"`
}

// ----- Handler: POST /trigger -----

func (handler *TriggerHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	// body is optional; when present it may carry a description
	var req triggerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	// tolerate an empty body, reject malformed JSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	res, err := handler.composer.SendEmergencyAlert(ctx, strings.TrimSpace(req.Description))
	if err != nil {
		switch {
		case errors.Is(err, ErrNoIdentity):
			handler.httpError(ctx, w, http.StatusServiceUnavailable, "beacon is not authenticated yet", err)
		case errors.Is(err, ErrNoFix):
			handler.httpError(ctx, w, http.StatusConflict, "no location fix available", err)
		case errors.Is(err, ErrAlreadySent):
			handler.httpError(ctx, w, http.StatusConflict, "alert already sent this session", err)
		default:
			handler.httpError(ctx, w, http.StatusInternalServerError, "failed to dispatch alert", err)
		}
		return
	}

	resp := triggerResponse{CorrelationID: res.CorrelationID, RequestID: res.RequestID}
	if res.RealtimeErr != nil {
		resp.RealtimeError = res.RealtimeErr.Error()
	}
	if res.DurableErr != nil {
		resp.DurableError = res.DurableErr.Error()
	}

	status := http.StatusOK
	if res.RealtimeErr != nil && res.DurableErr != nil {
		status = http.StatusBadGateway // alert went nowhere
	}
	handler.jsonResponse(ctx, w, status, resp)
}

// ----- Handler: POST /reset -----

func (handler *TriggerHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	handler.composer.Reset()
	handler.logger.Info(ctx, "alert_guard_reset", "Alert sent guard cleared", nil)
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "reset"})
}

// ----- Handler: GET /status -----

type statusResponse struct {
	AlertSent  bool     `json:"alert_sent"`
	Permission string   `json:"permission"`
	HasFix     bool     `json:"has_fix"`
	Fix        *geo.Fix `json:"fix,omitempty"`
}

func (handler *TriggerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	resp := statusResponse{
		AlertSent:  handler.composer.AlertSent(),
		Permission: string(handler.provider.Permission()),
	}
	if fix, ok := handler.provider.Current(); ok {
		resp.HasFix = true
		resp.Fix = &fix
	}
	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}

func (handler *TriggerHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- general helpers -----

func (handler *TriggerHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (handler *TriggerHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	handler.logger.Error(ctx, "request_failed", msg, err, nil)
	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

func (handler *TriggerHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
