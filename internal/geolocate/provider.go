package geolocate

import (
	"context"
	"errors"
	"sync"
	"time"

	"meditrack/internal/domain/geo"
	"meditrack/internal/logger"
)

// Options tune how the provider acquires fixes.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration // default 5s
	MaximumAge   time.Duration // extra cache tolerance on top of the 60s floor
	UseWatch     bool          // prefer a continuous subscription over one-shot requests
}

// minCacheWindow is the freshness floor: a cached fix younger than this is
// always acceptable, even when MaximumAge asks for less.
const minCacheWindow = time.Minute

// Provider tracks the best-known device position with explicit permission
// handling, durable caching and bounded retries.
type Provider struct {
	source Source
	perms  PermissionAPI
	cache  *Cache
	log    *logger.Logger
	opts   Options
	now    func() time.Time

	mu         sync.Mutex
	current    *geo.Fix
	lastErr    error
	permission Permission
	permCancel func()
	watchStop  func()
}

// NewProvider wires a provider. source may be nil (no receiver at all), in
// which case every acquisition fails with ErrUnsupported. perms may be nil;
// the no-op API reporting unknown is substituted.
func NewProvider(source Source, perms PermissionAPI, cache *Cache, opts Options, log *logger.Logger) *Provider {
	if perms == nil {
		perms = NoPermissions{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.New("geolocate")
	}

	return &Provider{
		source:     source,
		perms:      perms,
		cache:      cache,
		log:        log,
		opts:       opts,
		now:        time.Now,
		permission: PermissionUnknown,
	}
}

// Current returns the best-known fix, if any has been acquired or hydrated.
func (p *Provider) Current() (geo.Fix, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return geo.Fix{}, false
	}
	return *p.current, true
}

// LastError returns the most recent acquisition failure.
func (p *Provider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Permission returns the last observed permission state.
func (p *Provider) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// CheckPermission queries the permission subsystem and registers a change
// listener. A transition to granted automatically triggers GetLocation.
func (p *Provider) CheckPermission(ctx context.Context) (Permission, error) {
	state, err := p.perms.Query(ctx)
	if err != nil {
		p.log.Error(ctx, "permission_query_failed", "Failed to query location permission", err, nil)
		return PermissionUnknown, err
	}

	p.mu.Lock()
	p.permission = state
	alreadyWatching := p.permCancel != nil
	p.mu.Unlock()

	if !alreadyWatching {
		cancel := p.perms.OnChange(func(next Permission) {
			p.mu.Lock()
			prev := p.permission
			p.permission = next
			p.mu.Unlock()

			if next == PermissionGranted && prev != PermissionGranted {
				go func() {
					if _, err := p.GetLocation(context.Background()); err != nil {
						p.log.Error(context.Background(), "post_grant_fix_failed",
							"Location request after permission grant failed", err, nil)
					}
				}()
			}
		})
		p.mu.Lock()
		p.permCancel = cancel
		p.mu.Unlock()
	}

	return state, nil
}

// GetLocation resolves a fix: from the durable cache when fresh enough,
// otherwise from a live request. Timeouts get one relaxed retry.
func (p *Provider) GetLocation(ctx context.Context) (geo.Fix, error) {
	return p.getLocation(ctx, false)
}

// RefreshLocation forces a fresh one-shot fix, bypassing the cache.
func (p *Provider) RefreshLocation(ctx context.Context) (geo.Fix, error) {
	return p.getLocation(ctx, true)
}

// RequestPermission re-issues GetLocation; sources that gate on consent
// surface their native prompt as a side effect of the request.
func (p *Provider) RequestPermission(ctx context.Context) {
	if _, err := p.GetLocation(ctx); err != nil {
		p.log.Error(ctx, "permission_request_failed", "Location request for permission prompt failed", err, nil)
	}
}

// Close deregisters the permission listener and stops any active watch.
func (p *Provider) Close() {
	p.mu.Lock()
	permCancel := p.permCancel
	watchStop := p.watchStop
	p.permCancel = nil
	p.watchStop = nil
	p.mu.Unlock()

	if permCancel != nil {
		permCancel()
	}
	if watchStop != nil {
		watchStop()
	}
}

func (p *Provider) getLocation(ctx context.Context, bypassCache bool) (geo.Fix, error) {
	if p.source == nil {
		p.recordFailure(ErrUnsupported)
		p.log.Info(ctx, "geolocation_unsupported", "No position source configured on this device", nil)
		return geo.Fix{}, ErrUnsupported
	}

	if !bypassCache && p.cache != nil {
		window := p.opts.MaximumAge
		if window < minCacheWindow {
			window = minCacheWindow
		}
		if fix, ok := p.cache.Load(); ok && fix.FresherThan(p.now(), window) {
			p.setCurrent(fix)
			p.log.Debug(ctx, "fix_hydrated_from_cache", "Using cached position fix",
				map[string]any{"age_ms": fix.Age(p.now()).Milliseconds()})
			return fix, nil
		}
	}

	fix, err := p.acquire(ctx, RequestOptions{HighAccuracy: p.opts.HighAccuracy, Timeout: p.opts.Timeout}, !bypassCache)
	if errors.Is(err, ErrTimeout) {
		// relaxed retry: drop accuracy, double the deadline
		p.log.Info(ctx, "fix_timeout_retry", "Position request timed out, retrying with reduced accuracy", nil)
		fix, err = p.acquire(ctx, RequestOptions{HighAccuracy: false, Timeout: 2 * p.opts.Timeout}, false)
	}
	if err != nil {
		p.recordFailure(err)
		p.log.Error(ctx, "fix_acquisition_failed", "Failed to acquire position fix", err, nil)
		return geo.Fix{}, err
	}

	p.setCurrent(fix)
	if p.cache != nil {
		if err := p.cache.Store(fix); err != nil {
			p.log.Error(ctx, "fix_cache_write_failed", "Failed to persist position fix", err, nil)
		}
	}
	return fix, nil
}

// acquire performs one live request. With allowWatch and UseWatch set it
// starts the continuous subscription and resolves on its first fix; later
// fixes keep updating state in the background.
func (p *Provider) acquire(ctx context.Context, opts RequestOptions, allowWatch bool) (geo.Fix, error) {
	if allowWatch && p.opts.UseWatch {
		p.mu.Lock()
		watching := p.watchStop != nil
		p.mu.Unlock()
		if !watching {
			return p.startWatch(ctx, opts)
		}
	}
	return p.source.Current(ctx, opts)
}

func (p *Provider) startWatch(ctx context.Context, opts RequestOptions) (geo.Fix, error) {
	fixes, stop, err := p.source.Watch(ctx, opts)
	if err != nil {
		return geo.Fix{}, err
	}

	var first geo.Fix
	select {
	case fix, ok := <-fixes:
		if !ok {
			stop()
			return geo.Fix{}, ErrPositionUnavailable
		}
		first = fix
	case <-time.After(opts.Timeout):
		stop()
		return geo.Fix{}, ErrTimeout
	case <-ctx.Done():
		stop()
		return geo.Fix{}, ErrTimeout
	}

	p.mu.Lock()
	p.watchStop = stop
	p.mu.Unlock()

	go func() {
		for fix := range fixes {
			p.setCurrent(fix)
			if p.cache != nil {
				_ = p.cache.Store(fix)
			}
		}
		p.mu.Lock()
		if p.watchStop != nil {
			p.watchStop = nil
		}
		p.mu.Unlock()
	}()

	return first, nil
}

func (p *Provider) setCurrent(fix geo.Fix) {
	p.mu.Lock()
	p.current = &fix
	p.lastErr = nil
	p.mu.Unlock()
}

func (p *Provider) recordFailure(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}
