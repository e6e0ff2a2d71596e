package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"meditrack/internal/logger"
	"meditrack/internal/ports"
)

// ErrNotAuthenticated is returned for protected calls before a Login.
var ErrNotAuthenticated = errors.New("apiclient: not authenticated")

// Client talks to the emergency-service HTTP API on behalf of the field
// services (beacon, responder).
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *logger.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

// New builds a client against a base URL like "http://localhost:3000".
func New(baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.New("apiclient")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// EmergencyRecord is the wire shape of a durable emergency request.
type EmergencyRecord struct {
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

// CreateEmergencyInput is the payload for POST /emergency-requests. Status is
// assigned server-side (always pending on create).
type CreateEmergencyInput struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Description   string  `json:"description,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

// Login authenticates and stores the bearer token for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}

	var res ports.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &res, http.StatusOK); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = res.Token
	c.userID = res.UserID
	c.mu.Unlock()

	c.log.Info(ctx, "api_login", "Authenticated against emergency service",
		map[string]any{"user_id": res.UserID, "role": res.Role})
	return nil
}

// UserID returns the authenticated user id, empty before Login.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// CreateEmergencyRequest submits a durable emergency request.
func (c *Client) CreateEmergencyRequest(ctx context.Context, in CreateEmergencyInput) (*EmergencyRecord, error) {
	if c.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	var rec EmergencyRecord
	if err := c.do(ctx, http.MethodPost, "/emergency-requests", in, &rec, http.StatusCreated); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEmergencyRequests fetches the caller-visible request list.
func (c *Client) ListEmergencyRequests(ctx context.Context) ([]EmergencyRecord, error) {
	if c.UserID() == "" {
		return nil, ErrNotAuthenticated
	}
	var recs []EmergencyRecord
	if err := c.do(ctx, http.MethodGet, "/emergency-requests", nil, &recs, http.StatusOK); err != nil {
		return nil, err
	}
	return recs, nil
}

// do sends one JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("apiclient: %s %s: %s", method, path, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s response: %w", method, path, err)
	}
	return nil
}
