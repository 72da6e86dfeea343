package source

import (
	"image"
	"image/draw"
	"sync"

	"github.com/soocke/codescan-go/devices"
)

// LiveStream adapts a device stream to the VisualSource contract. Each Draw
// pulls the stream's current frame; the last good frame is retained so the
// native size stays stable once known.
type LiveStream struct {
	mu         sync.Mutex
	stream     devices.Stream
	owned      bool
	last       *image.RGBA
	detachedFn func()
}

// NewLiveStream wraps a caller-supplied stream. The session will not stop
// the stream's tracks on teardown; the caller keeps ownership.
func NewLiveStream(s devices.Stream) *LiveStream {
	return &LiveStream{stream: s}
}

// NewOwnedLiveStream wraps a stream the session acquired itself. Teardown
// stops its tracks.
func NewOwnedLiveStream(s devices.Stream) *LiveStream {
	return &LiveStream{stream: s, owned: true}
}

// Kind implements VisualSource.
func (s *LiveStream) Kind() Kind { return KindLiveStream }

// Owned reports whether the session acquired (and so must release) the
// underlying stream.
func (s *LiveStream) Owned() bool { return s.owned }

// Stream returns the underlying device stream, or nil after Detach.
func (s *LiveStream) Stream() devices.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Advance pulls the next frame from the stream. Used both by the readiness
// wait (priming the first frame) and by Draw.
func (s *LiveStream) Advance() error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrNotReady
	}
	frame, err := stream.Frame()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = frame
	s.mu.Unlock()
	return nil
}

// Ready reports whether at least one frame has been observed.
func (s *LiveStream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last != nil
}

// NativeSize reports the dimensions of the current decoded frame.
func (s *LiveStream) NativeSize() (image.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return image.Point{}, ErrSizeUnknown
	}
	return s.last.Bounds().Size(), nil
}

// Draw fetches the stream's current frame and renders it onto dst.
func (s *LiveStream) Draw(dst *image.RGBA) error {
	if err := s.Advance(); err != nil {
		return err
	}
	s.mu.Lock()
	frame := s.last
	s.mu.Unlock()
	draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
	return nil
}

// Detach disconnects the source from its stream. The retained last frame is
// dropped; subsequent captures fail.
func (s *LiveStream) Detach() {
	s.mu.Lock()
	s.stream = nil
	s.last = nil
	s.mu.Unlock()
}
