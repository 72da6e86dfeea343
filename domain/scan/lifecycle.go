package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soocke/codescan-go/devices"
	"github.com/soocke/codescan-go/domain/source"
)

// Readiness wait defaults, applied when the config leaves them zero.
const (
	DefaultReadyTimeout  = 5 * time.Second
	DefaultReadyInterval = 50 * time.Millisecond
)

// ErrReadyTimeout is returned when a source produced no frame within the
// readiness window.
var ErrReadyTimeout = errors.New("scan: source not ready within timeout")

// AcquireStream opens a stream from the provider. When ctx is canceled
// before acquisition completes, a stream that the provider nevertheless
// hands out later is stopped immediately so nothing leaks.
func AcquireStream(ctx context.Context, p devices.Provider, cons devices.Constraints) (devices.Stream, error) {
	type opened struct {
		stream devices.Stream
		err    error
	}
	ch := make(chan opened, 1)
	go func() {
		s, err := p.Open(cons)
		ch <- opened{s, err}
	}()
	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("scan: acquire stream: %w", o.err)
		}
		if ctx.Err() != nil {
			StopTracks(o.stream)
			return nil, ctx.Err()
		}
		return o.stream, nil
	case <-ctx.Done():
		go func() {
			if o := <-ch; o.stream != nil {
				StopTracks(o.stream)
			}
		}()
		return nil, ctx.Err()
	}
}

// AwaitReady polls the source until it reports it can produce frames,
// retrying every interval, bounded by timeout. Live sources are advanced on
// each poll, the analog of re-issuing a play attempt. Returns
// ErrReadyTimeout when the window elapses first.
func AwaitReady(ctx context.Context, src source.VisualSource, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	live, _ := src.(*source.LiveStream)
	attempt := func() bool {
		if live != nil {
			if err := live.Advance(); err != nil {
				return false
			}
		}
		return src.Ready()
	}
	if attempt() {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrReadyTimeout
		case <-ticker.C:
			if attempt() {
				return nil
			}
		}
	}
}
