package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meditrack/internal/domain/emergency"
	"meditrack/internal/domain/facility"
	"meditrack/internal/domain/user"
	"meditrack/internal/jwt"
	"meditrack/internal/logger"
	"meditrack/internal/ports"
	"meditrack/internal/realtime/relay"
	"meditrack/internal/software/emergency/service"
)

type fakeAuth struct {
	registerErr error
	loginErr    error
}

func (f *fakeAuth) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &ports.AuthResult{UserID: "user-1", Username: in.Username, Role: in.Role.String(), Token: "tok"}, nil
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*ports.AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &ports.AuthResult{UserID: "user-1", Username: username, Token: "tok"}, nil
}

type fakeEmergencies struct {
	ports.EmergencyService // panic on untested methods

	created *emergency.Request
	getErr  error
	request *emergency.Request
}

func (f *fakeEmergencies) CreateRequest(ctx context.Context, in ports.CreateEmergencyInput) (*emergency.Request, error) {
	req, err := emergency.NewRequest(in.UserID, in.Latitude, in.Longitude, in.Description, in.CorrelationID)
	if err != nil {
		return nil, err
	}
	req.ID = "req-1"
	f.created = req
	return req, nil
}

func (f *fakeEmergencies) GetRequest(ctx context.Context, callerID string, isAdmin bool, id string) (*emergency.Request, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.request, nil
}

type fakeFacilities struct {
	ports.FacilityService

	nearby []ports.NearbyFacility
}

func (f *fakeFacilities) FindNearby(ctx context.Context, lat, lng, radiusKM float64) ([]ports.NearbyFacility, error) {
	return f.nearby, nil
}

func newTestHandler(t *testing.T, auth ports.AuthService, emergencies ports.EmergencyService, facilities ports.FacilityService) (*http.ServeMux, *jwt.Manager) {
	t.Helper()
	log := logger.New("handler-test")
	mgr := jwt.NewManager("test-secret", time.Hour)

	h := &EmergencyHTTPHandler{
		auth:        auth,
		facilities:  facilities,
		emergencies: emergencies,
		tokens:      mgr,
		relay:       relay.New(log),
		logger:      log,
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, mgr
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRegisterHappyPathAndConflict(t *testing.T) {
	auth := &fakeAuth{}
	mux, _ := newTestHandler(t, auth, &fakeEmergencies{}, &fakeFacilities{})

	body := map[string]any{
		"username": "ada",
		"email":    "ada@example.org",
		"password": "long-enough",
		"name":     "Ada",
	}
	rec := doJSON(t, mux, http.MethodPost, "/auth/register", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	auth.registerErr = service.ErrUsernameTaken
	rec = doJSON(t, mux, http.MethodPost, "/auth/register", "", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	mux, _ := newTestHandler(t, &fakeAuth{}, &fakeEmergencies{}, &fakeFacilities{})

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "eve",
		"email":    "eve@example.org",
		"password": "long-enough",
		"name":     "Eve",
		"role":     "ADMIN",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("admin self-registration status = %d, want 403", rec.Code)
	}
}

func TestLoginMapsInvalidCredentials(t *testing.T) {
	mux, _ := newTestHandler(t, &fakeAuth{loginErr: service.ErrInvalidCredentials}, &fakeEmergencies{}, &fakeFacilities{})

	rec := doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "ada", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateRequestRequiresToken(t *testing.T) {
	emergencies := &fakeEmergencies{}
	mux, mgr := newTestHandler(t, &fakeAuth{}, emergencies, &fakeFacilities{})

	body := map[string]any{"latitude": 52.52, "longitude": 13.405, "description": "chest pain"}

	rec := doJSON(t, mux, http.MethodPost, "/emergency-requests", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	token, _, err := mgr.IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	rec = doJSON(t, mux, http.MethodPost, "/emergency-requests", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("with token: status = %d, body %s", rec.Code, rec.Body.String())
	}

	if emergencies.created == nil || emergencies.created.UserID != "user-1" {
		t.Errorf("request not created for the token subject: %+v", emergencies.created)
	}

	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "req-1" || resp.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetRequestMapsServiceErrors(t *testing.T) {
	emergencies := &fakeEmergencies{getErr: service.ErrNotFound}
	mux, mgr := newTestHandler(t, &fakeAuth{}, emergencies, &fakeFacilities{})
	token, _, err := mgr.IssueUserToken("user-1", user.RolePatient)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	rec := doJSON(t, mux, http.MethodGet, "/emergency-requests/req-404", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("not found: status = %d, want 404", rec.Code)
	}

	emergencies.getErr = service.ErrForbidden
	rec = doJSON(t, mux, http.MethodGet, "/emergency-requests/req-1", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("forbidden: status = %d, want 403", rec.Code)
	}
}

func TestNearbyRequiresCoordinates(t *testing.T) {
	fac, err := facility.NewFacility("City Hospital", facility.TypeHospital, "Main St 1", "", 52.52, 13.405, "24/7")
	if err != nil {
		t.Fatalf("NewFacility: %v", err)
	}
	facilities := &fakeFacilities{nearby: []ports.NearbyFacility{{Facility: fac, DistanceKM: 1.2}}}
	mux, mgr := newTestHandler(t, &fakeAuth{}, &fakeEmergencies{}, facilities)
	token, _, err := mgr.IssueUserToken("user-1", user.RoleResponder)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	rec := doJSON(t, mux, http.MethodGet, "/medical-facilities/nearby", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing coords: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/medical-facilities/nearby?latitude=52.52&longitude=13.405&radius=5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []nearbyFacilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "City Hospital" || got[0].DistanceKM != 1.2 {
		t.Errorf("nearby = %+v", got)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	mux, _ := newTestHandler(t, &fakeAuth{}, &fakeEmergencies{}, &fakeFacilities{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"username":"a","password":"b","extra":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d, want 400", rec.Code)
	}
}
