// Package codescan drives continuous and one-shot scan sessions over visual
// frame sources. It owns frame capture, luminance extraction and resource
// lifecycle; the symbol decoding itself is delegated to a decode.Decoder.
package codescan

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/codescan-go/config"
	"github.com/soocke/codescan-go/debug"
	"github.com/soocke/codescan-go/decode"
	"github.com/soocke/codescan-go/devices"
	"github.com/soocke/codescan-go/domain/scan"
	"github.com/soocke/codescan-go/domain/source"
)

var (
	// ErrNilSource is returned when a scan is started without a source.
	ErrNilSource = errors.New("codescan: nil visual source")

	// ErrNilDecoder is returned when the reader has no decoder.
	ErrNilDecoder = errors.New("codescan: nil decoder")

	// ErrNilCallback is returned when a continuous scan is started without
	// a callback.
	ErrNilCallback = errors.New("codescan: nil callback")
)

// Reader is the host-facing entry point. One Reader can run many sessions,
// but at most one active session per visual source: starting a new session
// on a source implicitly tears down the previous one.
type Reader struct {
	dec      decode.Decoder
	cfg      *config.Config
	provider devices.Provider
	logger   *slog.Logger
	hints    decode.Hints
	registry *source.Registry

	mu     sync.Mutex
	active map[source.VisualSource]*scan.Session
}

// NewReader builds a Reader around the given decoder. A nil cfg gets
// defaults; a nil logger disables logging. The default device provider is
// the local screen; swap it with SetProvider.
func NewReader(dec decode.Decoder, cfg *config.Config, logger *slog.Logger) *Reader {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	_ = cfg.Validate()
	if cfg.Debug && logger != nil {
		debug.StartGoroutineLogger(2*time.Second, logger)
	}
	return &Reader{
		dec:      dec,
		cfg:      cfg,
		logger:   logger,
		provider: &devices.ScreenProvider{},
		registry: source.NewRegistry(),
		active:   make(map[source.VisualSource]*scan.Session),
	}
}

// SetProvider replaces the device provider used for stream acquisition and
// enumeration.
func (r *Reader) SetProvider(p devices.Provider) { r.provider = p }

// SetHints sets the decode hints passed to the decoder on every tick.
func (r *Reader) SetHints(h decode.Hints) { r.hints = h }

// Registry returns the reader's named-source registry.
func (r *Reader) Registry() *source.Registry { return r.registry }

// ListVideoInputDevices enumerates the provider's devices, filtered to
// video inputs, with kinds and labels normalized.
func (r *Reader) ListVideoInputDevices() ([]devices.DeviceInfo, error) {
	raw, err := r.provider.Enumerate()
	if err != nil {
		return nil, err
	}
	return devices.Normalize(raw), nil
}

// DecodeContinuously starts a continuous scan over src. Every tick outcome
// arrives via cb; the scan never terminates on its own except for a fatal
// error. The returned controls stop or adjust the session.
func (r *Reader) DecodeContinuously(ctx context.Context, src source.VisualSource, cb scan.Callback) (*scan.Controls, error) {
	return r.start(ctx, src, nil, false, cb, nil)
}

// DecodeFromStream scans a caller-owned stream continuously. The stream's
// tracks are left running on teardown; the caller keeps ownership.
func (r *Reader) DecodeFromStream(ctx context.Context, stream devices.Stream, cb scan.Callback) (*scan.Controls, error) {
	if stream == nil {
		return nil, ErrNilSource
	}
	return r.start(ctx, source.NewLiveStream(stream), stream, false, cb, nil)
}

// DecodeFromConstraints acquires a stream matching the constraints and
// scans it continuously. The session owns the stream and releases it on
// teardown.
func (r *Reader) DecodeFromConstraints(ctx context.Context, cons devices.Constraints, cb scan.Callback) (*scan.Controls, error) {
	stream, err := scan.AcquireStream(ctx, r.provider, cons)
	if err != nil {
		return nil, err
	}
	controls, err := r.start(ctx, source.NewOwnedLiveStream(stream), stream, true, cb, nil)
	if err != nil {
		scan.StopTracks(stream)
		return nil, err
	}
	return controls, nil
}

// DecodeFromDefaultDevice scans the device selected by the reader's config.
func (r *Reader) DecodeFromDefaultDevice(ctx context.Context, cb scan.Callback) (*scan.Controls, error) {
	return r.DecodeFromConstraints(ctx, devices.Constraints{
		DeviceID:   r.cfg.DeviceID,
		FacingMode: r.cfg.FacingMode,
	}, cb)
}

// DecodeFromRegistered scans a source previously registered under name.
// For the raw-surface kind an empty name synthesizes a blank default
// surface instead of failing.
func (r *Reader) DecodeFromRegistered(ctx context.Context, name string, kind source.Kind, cb scan.Callback) (*scan.Controls, error) {
	src, err := r.resolve(name, kind)
	if err != nil {
		return nil, err
	}
	return r.start(ctx, src, nil, false, cb, nil)
}

// DecodeOnce scans src until the first success or the first non-retried
// error. Which retryable failures are retried is governed by the config's
// RetryIf* toggles.
func (r *Reader) DecodeOnce(ctx context.Context, src source.VisualSource) (*decode.Result, error) {
	return r.once(ctx, src, nil, false)
}

// DecodeOnceFromConstraints is DecodeOnce over a freshly acquired,
// session-owned stream.
func (r *Reader) DecodeOnceFromConstraints(ctx context.Context, cons devices.Constraints) (*decode.Result, error) {
	stream, err := scan.AcquireStream(ctx, r.provider, cons)
	if err != nil {
		return nil, err
	}
	res, err := r.once(ctx, source.NewOwnedLiveStream(stream), stream, true)
	if err != nil {
		scan.StopTracks(stream)
		return nil, err
	}
	return res, nil
}

// DecodeOnceFromImage scans a still image.
func (r *Reader) DecodeOnceFromImage(ctx context.Context, img image.Image) (*decode.Result, error) {
	if img == nil {
		return nil, ErrNilSource
	}
	return r.DecodeOnce(ctx, source.NewStaticImage(img))
}

// DecodeOnceFromImageFile loads an image file and scans it.
func (r *Reader) DecodeOnceFromImageFile(ctx context.Context, path string) (*decode.Result, error) {
	src, err := source.NewStaticImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return r.DecodeOnce(ctx, src)
}

func (r *Reader) resolve(name string, kind source.Kind) (source.VisualSource, error) {
	if name == "" {
		if kind == source.KindRawSurface {
			return source.NewDefaultRawSurface(), nil
		}
		return nil, ErrNilSource
	}
	return r.registry.Resolve(name, kind)
}

// once wraps a continuous session: the first success resolves, the first
// non-retried failure rejects, and either way the session is torn down.
func (r *Reader) once(ctx context.Context, src source.VisualSource, stream devices.Stream, owns bool) (*decode.Result, error) {
	type outcome struct {
		res *decode.Result
		err error
	}
	ch := make(chan outcome, 1)
	deliver := func(o outcome) {
		select {
		case ch <- o:
		default:
		}
	}
	cb := func(res *decode.Result, err error, c *scan.Controls) {
		if err == nil {
			deliver(outcome{res: res})
			c.Stop()
			return
		}
		if r.retryAllowed(err) {
			return
		}
		deliver(outcome{err: err})
		c.Stop()
	}
	controls, err := r.start(ctx, src, stream, owns, cb, func(cause error) {
		if cause == nil {
			cause = scan.ErrSessionStopped
		}
		deliver(outcome{err: cause})
	})
	if err != nil {
		return nil, err
	}
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		controls.Stop()
		select {
		case o := <-ch:
			// An outcome that raced the cancellation still counts, but the
			// stop we just issued does not.
			if o.err != nil && errors.Is(o.err, scan.ErrSessionStopped) {
				return nil, ctx.Err()
			}
			return o.res, o.err
		default:
			return nil, ctx.Err()
		}
	}
}

func (r *Reader) retryAllowed(err error) bool {
	switch {
	case errors.Is(err, decode.ErrNotFound):
		return r.cfg.RetryIfNotFound
	case errors.Is(err, decode.ErrChecksum):
		return r.cfg.RetryIfChecksum
	case errors.Is(err, decode.ErrFormat):
		return r.cfg.RetryIfFormat
	default:
		return false
	}
}

// start validates arguments, waits for the source to become ready, tears
// down any previous session on the same source, and launches the loop.
// Setup failures reject with no resources held.
func (r *Reader) start(ctx context.Context, src source.VisualSource, stream devices.Stream, owns bool, cb scan.Callback, onFinalize func(error)) (*scan.Controls, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if r.dec == nil {
		return nil, ErrNilDecoder
	}
	if cb == nil {
		return nil, ErrNilCallback
	}
	if err := scan.AwaitReady(ctx, src, r.cfg.ReadyInterval(), r.cfg.ReadyTimeout()); err != nil {
		return nil, err
	}

	var sess *scan.Session
	sess, err := scan.New(scan.Config{
		Source:       src,
		Decoder:      r.dec,
		Callback:     cb,
		Hints:        r.hints,
		AttemptDelay: r.cfg.AttemptDelay(),
		SuccessDelay: r.cfg.SuccessDelay(),
		Stream:       stream,
		OwnsStream:   owns,
		Logger:       r.logger,
		OnFinalize: func(cause error) {
			r.mu.Lock()
			if r.active[src] == sess {
				delete(r.active, src)
			}
			r.mu.Unlock()
			if onFinalize != nil {
				onFinalize(cause)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	prev := r.active[src]
	r.active[src] = sess
	r.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	sess.Start()
	return sess.Controls(), nil
}
