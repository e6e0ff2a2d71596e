package geolocate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meditrack/internal/domain/geo"
)

// fakeSource scripts Current responses and records the options it saw.
type fakeSource struct {
	mu        sync.Mutex
	calls     int
	seenOpts  []RequestOptions
	responses []func() (geo.Fix, error)
}

func (f *fakeSource) Current(_ context.Context, opts RequestOptions) (geo.Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seenOpts = append(f.seenOpts, opts)
	if len(f.responses) == 0 {
		return geo.NewFix(48.0, 16.0, 10, time.Now())
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next()
}

func (f *fakeSource) Watch(context.Context, RequestOptions) (<-chan geo.Fix, func(), error) {
	return nil, nil, ErrPositionUnavailable
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePermissions lets tests drive permission transitions by hand.
type fakePermissions struct {
	mu    sync.Mutex
	state Permission
	fns   []func(Permission)
}

func (f *fakePermissions) Query(context.Context) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakePermissions) OnChange(fn func(Permission)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
	return func() {}
}

func (f *fakePermissions) set(state Permission) {
	f.mu.Lock()
	f.state = state
	fns := append([]func(Permission){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func cacheWithFix(t *testing.T, age time.Duration) *Cache {
	t.Helper()
	cache := NewCache(filepath.Join(t.TempDir(), "position.json"))
	fix, err := geo.NewFix(48.2, 16.37, 15, time.Now().Add(-age))
	if err != nil {
		t.Fatalf("build fix: %v", err)
	}
	if err := cache.Store(fix); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	return cache
}

func TestGetLocationHydratesFromFreshCache(t *testing.T) {
	src := &fakeSource{}
	p := NewProvider(src, nil, cacheWithFix(t, 55*time.Second), Options{MaximumAge: time.Minute}, nil)

	fix, err := p.GetLocation(context.Background())
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if src.callCount() != 0 {
		t.Errorf("a 55s-old fix within a 60s window should not hit the source (calls=%d)", src.callCount())
	}
	if fix.Latitude != 48.2 || fix.Longitude != 16.37 {
		t.Errorf("returned fix %+v does not match cached position", fix)
	}

	if current, ok := p.Current(); !ok || current != fix {
		t.Error("provider state was not hydrated from cache")
	}
}

func TestGetLocationSkipsStaleCache(t *testing.T) {
	src := &fakeSource{}
	p := NewProvider(src, nil, cacheWithFix(t, 65*time.Second), Options{MaximumAge: time.Minute}, nil)

	if _, err := p.GetLocation(context.Background()); err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("a 65s-old fix must trigger a live request (calls=%d)", src.callCount())
	}
}

func TestRefreshLocationBypassesCache(t *testing.T) {
	src := &fakeSource{}
	p := NewProvider(src, nil, cacheWithFix(t, time.Second), Options{MaximumAge: time.Minute}, nil)

	if _, err := p.RefreshLocation(context.Background()); err != nil {
		t.Fatalf("RefreshLocation: %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("refresh must bypass even a fresh cache (calls=%d)", src.callCount())
	}
}

func TestTimeoutRetriesOnceWithReducedAccuracy(t *testing.T) {
	src := &fakeSource{
		responses: []func() (geo.Fix, error){
			func() (geo.Fix, error) { return geo.Fix{}, ErrTimeout },
			func() (geo.Fix, error) { return geo.NewFix(40.0, -74.0, 80, time.Now()) },
		},
	}
	cache := NewCache(filepath.Join(t.TempDir(), "position.json"))
	p := NewProvider(src, nil, cache, Options{HighAccuracy: true, Timeout: time.Second}, nil)

	fix, err := p.GetLocation(context.Background())
	if err != nil {
		t.Fatalf("GetLocation after retry: %v", err)
	}
	if src.callCount() != 2 {
		t.Fatalf("source calls = %d, want 2 (original + relaxed retry)", src.callCount())
	}

	src.mu.Lock()
	firstOpts, retryOpts := src.seenOpts[0], src.seenOpts[1]
	src.mu.Unlock()
	if !firstOpts.HighAccuracy {
		t.Error("first attempt should use high accuracy")
	}
	if retryOpts.HighAccuracy {
		t.Error("retry should drop to reduced accuracy")
	}
	if retryOpts.Timeout <= firstOpts.Timeout {
		t.Errorf("retry timeout %v should be relaxed beyond %v", retryOpts.Timeout, firstOpts.Timeout)
	}

	// successful retry persists the fix
	if cached, ok := cache.Load(); !ok || cached.Latitude != fix.Latitude {
		t.Error("retried fix was not cached")
	}
}

func TestTimeoutGivesUpAfterOneRetry(t *testing.T) {
	src := &fakeSource{
		responses: []func() (geo.Fix, error){
			func() (geo.Fix, error) { return geo.Fix{}, ErrTimeout },
			func() (geo.Fix, error) { return geo.Fix{}, ErrTimeout },
		},
	}
	p := NewProvider(src, nil, nil, Options{Timeout: time.Second}, nil)

	_, err := p.GetLocation(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if src.callCount() != 2 {
		t.Errorf("source calls = %d, want exactly 2", src.callCount())
	}

	// provider stays usable after the failure
	if _, err := p.GetLocation(context.Background()); err != nil {
		t.Fatalf("provider unusable after timeout: %v", err)
	}
}

func TestNilSourceIsUnsupported(t *testing.T) {
	p := NewProvider(nil, nil, nil, Options{}, nil)
	if _, err := p.GetLocation(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestPermissionGrantTriggersLocationRequest(t *testing.T) {
	src := &fakeSource{}
	perms := &fakePermissions{state: PermissionPrompt}
	p := NewProvider(src, perms, nil, Options{}, nil)
	defer p.Close()

	state, err := p.CheckPermission(context.Background())
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if state != PermissionPrompt {
		t.Fatalf("state = %s, want %s", state, PermissionPrompt)
	}
	if src.callCount() != 0 {
		t.Fatal("no request should fire before the grant")
	}

	perms.set(PermissionGranted)

	deadline := time.Now().Add(time.Second)
	for src.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.callCount() != 1 {
		t.Fatalf("grant should trigger exactly one location request (calls=%d)", src.callCount())
	}
	if p.Permission() != PermissionGranted {
		t.Errorf("tracked permission = %s, want granted", p.Permission())
	}
}

func TestCacheRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "position.json")
	cache := NewCache(path)

	if _, ok := cache.Load(); ok {
		t.Error("missing cache file should not load")
	}

	writeFile(t, path, "{not json")
	if _, ok := cache.Load(); ok {
		t.Error("corrupt cache file should not load")
	}

	// out-of-range coordinates are rejected too
	writeFile(t, path, `{"latitude": 200, "longitude": 0, "timestamp": "2026-01-01T00:00:00Z"}`)
	if _, ok := cache.Load(); ok {
		t.Error("invalid cached fix should not load")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
