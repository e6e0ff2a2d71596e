package geolocate

import (
	"context"
	"errors"
	"time"

	"meditrack/internal/domain/geo"
)

// Permission is the provider's view of the platform permission state.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionPrompt  Permission = "prompt"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var (
	// ErrUnsupported means no position source is configured at all.
	ErrUnsupported = errors.New("geolocate: no position source available")

	// ErrPermissionDenied means the source refused to share a position.
	ErrPermissionDenied = errors.New("geolocate: permission denied")

	// ErrPositionUnavailable means the source was reachable but produced no fix.
	ErrPositionUnavailable = errors.New("geolocate: position unavailable")

	// ErrTimeout means the request deadline passed without a fix.
	ErrTimeout = errors.New("geolocate: position request timed out")
)

// RequestOptions are the acquisition knobs passed through to a Source.
type RequestOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Source produces position fixes, either one at a time or as a stream.
// Implementations map their failures onto the package sentinel errors.
type Source interface {
	// Current blocks for at most opts.Timeout and returns one fix.
	Current(ctx context.Context, opts RequestOptions) (geo.Fix, error)

	// Watch starts a continuous subscription. The returned stop function
	// ends the stream and releases the underlying resources.
	Watch(ctx context.Context, opts RequestOptions) (<-chan geo.Fix, func(), error)
}

// PermissionAPI exposes the platform permission subsystem where one exists.
type PermissionAPI interface {
	Query(ctx context.Context) (Permission, error)

	// OnChange registers fn for permission transitions and returns a
	// deregistration function.
	OnChange(fn func(Permission)) (cancel func())
}

// NoPermissions is the PermissionAPI for environments without a permission
// subsystem: every query answers unknown and no change ever fires.
type NoPermissions struct{}

func (NoPermissions) Query(context.Context) (Permission, error) { return PermissionUnknown, nil }
func (NoPermissions) OnChange(func(Permission)) func()          { return func() {} }
