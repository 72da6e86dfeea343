package devices

import (
	"image"
	"sync"
	"sync/atomic"
)

// FakeProvider is an in-memory Provider for tests and wiring demos. Frames
// come from the configured FrameFunc; Open behavior can be overridden
// entirely with OpenFunc (for example to block until released, or to fail).
type FakeProvider struct {
	Devices   []DeviceInfo
	FrameFunc func() (*image.RGBA, error)
	Torch     bool

	// OpenFunc, when set, replaces the default Open behavior.
	OpenFunc func(Constraints) (Stream, error)

	mu     sync.Mutex
	opened []*FakeStream
}

// Enumerate returns the configured device descriptors verbatim.
func (p *FakeProvider) Enumerate() ([]DeviceInfo, error) {
	return append([]DeviceInfo(nil), p.Devices...), nil
}

// Open returns a FakeStream over the provider's FrameFunc.
func (p *FakeProvider) Open(c Constraints) (Stream, error) {
	if p.OpenFunc != nil {
		return p.OpenFunc(c)
	}
	if _, err := SelectDevice(Normalize(p.Devices), c); err != nil {
		return nil, err
	}
	s := NewFakeStream(p.FrameFunc, p.Torch)
	p.mu.Lock()
	p.opened = append(p.opened, s)
	p.mu.Unlock()
	return s, nil
}

// Opened returns every stream handed out so far.
func (p *FakeProvider) Opened() []*FakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeStream(nil), p.opened...)
}

// FakeStream is a Stream whose frames come from a function.
type FakeStream struct {
	frameFn func() (*image.RGBA, error)
	track   *FakeTrack
}

// NewFakeStream builds a stream with a single video track. frameFn may be
// nil, in which case Frame returns a small blank raster.
func NewFakeStream(frameFn func() (*image.RGBA, error), torch bool) *FakeStream {
	return &FakeStream{
		frameFn: frameFn,
		track:   &FakeTrack{torch: torch, applied: ConstraintSet{}},
	}
}

// Tracks implements Stream.
func (s *FakeStream) Tracks() []Track { return []Track{s.track} }

// Frame implements Stream.
func (s *FakeStream) Frame() (*image.RGBA, error) {
	if s.track.Stopped() {
		return nil, ErrTrackStopped
	}
	if s.frameFn == nil {
		return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
	}
	return s.frameFn()
}

// Track returns the stream's single track for assertions.
func (s *FakeStream) Track() *FakeTrack { return s.track }

// Stopped reports whether the stream's track has been stopped.
func (s *FakeStream) Stopped() bool { return s.track.Stopped() }

// FakeTrack records Stop and ApplyConstraints calls.
type FakeTrack struct {
	torch     bool
	stopCount atomic.Int64

	mu      sync.Mutex
	applied ConstraintSet
}

func (t *FakeTrack) Kind() string { return "video" }

func (t *FakeTrack) Stop() { t.stopCount.Add(1) }

// StopCount returns how many times Stop was invoked.
func (t *FakeTrack) StopCount() int64 { return t.stopCount.Load() }

// Stopped reports whether Stop was called at least once.
func (t *FakeTrack) Stopped() bool { return t.stopCount.Load() > 0 }

func (t *FakeTrack) Constraints() ConstraintSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneSet(t.applied)
}

func (t *FakeTrack) ApplyConstraints(c ConstraintSet) error {
	if t.Stopped() {
		return ErrTrackStopped
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range c {
		t.applied[k] = v
	}
	return nil
}

func (t *FakeTrack) Capabilities() ConstraintSet {
	return ConstraintSet{"torch": t.torch}
}

func (t *FakeTrack) Settings() ConstraintSet {
	return t.Constraints()
}
