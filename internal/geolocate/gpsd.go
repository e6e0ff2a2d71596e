package geolocate

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"meditrack/internal/domain/geo"
	"meditrack/internal/logger"
)

// watchCommand switches a gpsd session into streaming JSON mode.
const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// GPSDSource reads position fixes from a gpsd daemon over its JSON/TCP
// protocol (default port 2947).
type GPSDSource struct {
	addr string
	log  *logger.Logger
}

// NewGPSDSource points the source at a gpsd address like "localhost:2947".
func NewGPSDSource(addr string, log *logger.Logger) *GPSDSource {
	if log == nil {
		log = logger.New("geolocate")
	}
	return &GPSDSource{addr: addr, log: log}
}

// tpvReport is the subset of gpsd's TPV (time-position-velocity) class the
// source cares about. Lat/Lon are pointers: gpsd omits them without a fix.
type tpvReport struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"` // 0/1 no fix, 2 = 2D, 3 = 3D
	Time  time.Time `json:"time"`
	Lat   *float64  `json:"lat"`
	Lon   *float64  `json:"lon"`
	EPH   float64   `json:"eph"` // horizontal position error, meters
	EPX   float64   `json:"epx"`
	EPY   float64   `json:"epy"`
}

func (r tpvReport) usable() bool {
	return r.Class == "TPV" && r.Mode >= 2 && r.Lat != nil && r.Lon != nil
}

func (r tpvReport) toFix(now time.Time) (geo.Fix, error) {
	capturedAt := r.Time
	if capturedAt.IsZero() {
		capturedAt = now
	}

	accuracy := r.EPH
	if accuracy == 0 {
		// some receivers report only the per-axis errors
		if r.EPX > r.EPY {
			accuracy = r.EPX
		} else {
			accuracy = r.EPY
		}
	}
	return geo.NewFix(*r.Lat, *r.Lon, accuracy, capturedAt)
}

// Current dials gpsd and blocks until the first usable TPV report or the
// request deadline.
func (s *GPSDSource) Current(ctx context.Context, opts RequestOptions) (geo.Fix, error) {
	deadline := time.Now().Add(opts.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	conn, err := net.DialTimeout("tcp", s.addr, time.Until(deadline))
	if err != nil {
		s.log.Error(ctx, "gpsd_dial_failed", "Failed to reach gpsd", err, map[string]any{"addr": s.addr})
		return geo.Fix{}, ErrPositionUnavailable
	}
	defer conn.Close()

	_ = conn.SetDeadline(deadline)
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return geo.Fix{}, ErrPositionUnavailable
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue // gpsd interleaves VERSION/SKY/etc lines
		}
		if !report.usable() {
			continue
		}
		return report.toFix(time.Now())
	}

	if err := scanner.Err(); err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return geo.Fix{}, ErrTimeout
		}
		return geo.Fix{}, ErrPositionUnavailable
	}
	return geo.Fix{}, ErrPositionUnavailable
}

// Watch keeps a gpsd session open and streams every usable fix. The stop
// function closes the session, which also closes the returned channel.
func (s *GPSDSource) Watch(ctx context.Context, opts RequestOptions) (<-chan geo.Fix, func(), error) {
	conn, err := net.DialTimeout("tcp", s.addr, opts.Timeout)
	if err != nil {
		s.log.Error(ctx, "gpsd_dial_failed", "Failed to reach gpsd", err, map[string]any{"addr": s.addr})
		return nil, nil, ErrPositionUnavailable
	}

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		conn.Close()
		return nil, nil, ErrPositionUnavailable
	}

	fixes := make(chan geo.Fix, 1)
	go func() {
		defer close(fixes)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var report tpvReport
			if err := json.Unmarshal(scanner.Bytes(), &report); err != nil || !report.usable() {
				continue
			}
			fix, err := report.toFix(time.Now())
			if err != nil {
				continue
			}
			select {
			case fixes <- fix:
			default:
				// receiver is behind, drop the oldest reading
				select {
				case <-fixes:
				default:
				}
				fixes <- fix
			}
		}
	}()

	stop := func() { _ = conn.Close() }
	return fixes, stop, nil
}
