// Package scan implements the session control loop: on each tick a frame is
// captured, handed to the decoder, and the outcome decides whether the loop
// reschedules or tears the session down. Resource release is guaranteed on
// every exit path.
package scan

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/codescan-go/decode"
	"github.com/soocke/codescan-go/devices"
	"github.com/soocke/codescan-go/domain/source"
)

// State is the session lifecycle state.
type State int

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Default tick delays, applied when the config leaves them zero.
const (
	DefaultAttemptDelay = 500 * time.Millisecond
	DefaultSuccessDelay = 500 * time.Millisecond
)

var (
	// ErrSessionStopped is returned by controls accessors used after the
	// session reached its terminal state.
	ErrSessionStopped = errors.New("scan: session stopped")

	// ErrNoStream is returned by stream accessors of a session whose
	// source is not stream-backed.
	ErrNoStream = errors.New("scan: session has no stream")
)

// Callback receives every tick outcome: a result on success, a decode or
// capture error otherwise. Exactly one of result and err is set. The
// controls argument lets the callback stop or adjust the session in-flight.
type Callback func(result *decode.Result, err error, controls *Controls)

// Config assembles a session. Source, Decoder and Callback are required.
type Config struct {
	Source   source.VisualSource
	Decoder  decode.Decoder
	Callback Callback
	Hints    decode.Hints

	// AttemptDelay is the pause after a retryable decode failure,
	// SuccessDelay the pause after a successful decode in continuous mode.
	AttemptDelay time.Duration
	SuccessDelay time.Duration

	// Stream optionally backs a live Source. When OwnsStream is set the
	// session acquired it and will stop its tracks on teardown; a
	// caller-supplied stream is never stopped.
	Stream     devices.Stream
	OwnsStream bool

	// OnFinalize runs exactly once when the session reaches Stopped, with
	// the fatal error if one terminated the loop.
	OnFinalize func(err error)

	Logger *slog.Logger
}

// Session is one scan run over one visual source. All ticks of a session
// execute sequentially; at most one tick is pending at any instant.
type Session struct {
	id       uuid.UUID
	src      source.VisualSource
	surf     *source.Surface
	dec      decode.Decoder
	cb       Callback
	hints    decode.Hints
	attempt  time.Duration
	success  time.Duration
	stream   devices.Stream
	owns     bool
	finalize func(error)
	logger   *slog.Logger
	stats    sessionStats

	mu       sync.Mutex
	state    State
	started  bool
	timer    *time.Timer
	ticking  bool
	released bool
	controls *Controls
}

// New validates cfg and builds a session. The loop does not run until Start.
func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("scan: config needs a visual source")
	}
	if cfg.Decoder == nil {
		return nil, errors.New("scan: config needs a decoder")
	}
	if cfg.Callback == nil {
		return nil, errors.New("scan: config needs a callback")
	}
	if cfg.AttemptDelay <= 0 {
		cfg.AttemptDelay = DefaultAttemptDelay
	}
	if cfg.SuccessDelay <= 0 {
		cfg.SuccessDelay = DefaultSuccessDelay
	}
	s := &Session{
		id:       uuid.New(),
		src:      cfg.Source,
		surf:     source.NewSurface(),
		dec:      cfg.Decoder,
		cb:       cfg.Callback,
		hints:    cfg.Hints,
		attempt:  cfg.AttemptDelay,
		success:  cfg.SuccessDelay,
		stream:   cfg.Stream,
		owns:     cfg.OwnsStream,
		finalize: cfg.OnFinalize,
		logger:   cfg.Logger,
	}
	s.controls = &Controls{session: s}
	return s, nil
}

// ID returns the session's correlation id.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Controls returns the caller-facing handle. One instance per session; it
// stays valid (but inert) after the session stops.
func (s *Session) Controls() *Controls { return s.controls }

// Start schedules the first tick. Idempotent; only the first call arms the
// loop.
func (s *Session) Start() *Controls {
	s.mu.Lock()
	if s.started || s.state != StateRunning {
		s.mu.Unlock()
		return s.controls
	}
	s.started = true
	s.stats.started.Store(time.Now().UnixNano())
	s.timer = time.AfterFunc(0, s.tick)
	s.mu.Unlock()
	activeSessions.Inc()
	return s.controls
}

// tick runs one capture/decode/classify cycle. Ticks never overlap: the
// next one is scheduled only after this one finished.
func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.ticking = true
	s.mu.Unlock()
	defer s.finishTick()

	s.stats.ticks.Add(1)
	grid, err := source.Capture(s.src, s.surf)
	var result *decode.Result
	if err == nil {
		result, err = s.dec.Decode(grid, s.hints)
	}

	// A stop that landed during capture or decode wins: the outcome is
	// discarded, the callback not invoked.
	if s.State() != StateRunning {
		return
	}

	switch {
	case err == nil:
		s.stats.successes.Add(1)
		tickOutcomes.WithLabelValues("success").Inc()
		s.cb(result, nil, s.controls)
		s.scheduleAfter(s.success)
	case decode.Retryable(err):
		s.stats.retries.Add(1)
		tickOutcomes.WithLabelValues("retry").Inc()
		s.cb(nil, err, s.controls)
		s.scheduleAfter(s.attempt)
	default:
		s.stats.fatal.Add(1)
		tickOutcomes.WithLabelValues("fatal").Inc()
		if s.logger != nil {
			s.logger.Error("scan tick failed", "session", s.id, "error", err)
		}
		s.cb(nil, err, s.controls)
		s.stop(err)
	}
}

// scheduleAfter arms the single pending-tick timer. No-op unless Running
// and no timer is already pending.
func (s *Session) scheduleAfter(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(d, s.tick)
}

// Stop terminates the session. Idempotent: any number of calls, from the
// callback or outside, produce at most one transition to Stopped and
// exactly one finalize invocation.
func (s *Session) Stop() { s.stop(nil) }

func (s *Session) stop(cause error) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	fin := s.finalize
	s.finalize = nil
	// The surface may be mid-capture; in that case the finishing tick
	// recycles it.
	release := !s.ticking && !s.released
	if release {
		s.released = true
	}
	started := s.started
	s.state = StateStopped
	s.mu.Unlock()

	s.teardown()
	if release {
		s.surf.Release()
	}
	if started {
		activeSessions.Dec()
	}
	if s.logger != nil {
		s.logger.Debug("scan session stopped", "session", s.id, "cause", cause)
	}
	if fin != nil {
		fin(cause)
	}
}

// finishTick clears the in-tick flag and, when a stop raced the tick,
// performs the surface release the stop deferred.
func (s *Session) finishTick() {
	s.mu.Lock()
	s.ticking = false
	release := s.state == StateStopped && !s.released
	if release {
		s.released = true
	}
	s.mu.Unlock()
	if release {
		s.surf.Release()
	}
}

// teardown releases the stream side of the session: owned streams have
// their video tracks stopped, a live source is detached. Caller-supplied
// streams are left running; the session did not acquire them.
func (s *Session) teardown() {
	if s.stream != nil && s.owns {
		StopTracks(s.stream)
	}
	if live, ok := s.src.(*source.LiveStream); ok {
		live.Detach()
	}
}

// StopTracks stops every video track of a stream.
func StopTracks(s devices.Stream) {
	for _, tr := range devices.VideoTracks(s) {
		tr.Stop()
	}
}
