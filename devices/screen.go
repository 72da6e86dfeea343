package devices

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/vova616/screenshot"
)

// ScreenProvider exposes the local display as a single video input device.
// It is the built-in live-frame backend; camera SDK providers plug in the
// same way.
type ScreenProvider struct{}

// Enumerate lists the primary display. Platforms where the screen cannot be
// queried report enumeration as unsupported.
func (p *ScreenProvider) Enumerate() ([]DeviceInfo, error) {
	if _, err := screenshot.ScreenRect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationUnsupported, err)
	}
	return []DeviceInfo{
		{ID: "screen:0", Label: "Primary display", Kind: KindVideoInput, GroupID: "screen"},
	}, nil
}

// Open acquires a stream that captures the display on every Frame call.
func (p *ScreenProvider) Open(c Constraints) (Stream, error) {
	list, err := p.Enumerate()
	if err != nil {
		return nil, err
	}
	if _, err := SelectDevice(Normalize(list), c); err != nil {
		return nil, err
	}
	rect, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("devices: screen size unavailable: %w", err)
	}
	tr := &screenTrack{rect: rect, applied: ConstraintSet{}}
	if c.Width > 0 && c.Height > 0 {
		tr.applied["width"] = c.Width
		tr.applied["height"] = c.Height
	}
	return &screenStream{track: tr}, nil
}

type screenStream struct {
	track *screenTrack
}

func (s *screenStream) Tracks() []Track { return []Track{s.track} }

func (s *screenStream) Frame() (*image.RGBA, error) {
	if s.track.stopped.Load() {
		return nil, ErrTrackStopped
	}
	// A width/height constraint narrows the grab to a top-left region;
	// otherwise the whole display is captured.
	s.track.mu.Lock()
	w, _ := s.track.applied["width"].(int)
	h, _ := s.track.applied["height"].(int)
	s.track.mu.Unlock()
	if w > 0 && h > 0 {
		sel := image.Rect(0, 0, w, h).Intersect(s.track.rect)
		if !sel.Empty() {
			return screenshot.CaptureRect(sel)
		}
	}
	return screenshot.CaptureScreen()
}

type screenTrack struct {
	rect    image.Rectangle
	stopped atomic.Bool
	mu      sync.Mutex
	applied ConstraintSet
}

func (t *screenTrack) Kind() string { return "video" }

func (t *screenTrack) Stop() { t.stopped.Store(true) }

func (t *screenTrack) Constraints() ConstraintSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneSet(t.applied)
}

func (t *screenTrack) ApplyConstraints(c ConstraintSet) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if on, ok := c["torch"].(bool); ok && on {
		return fmt.Errorf("devices: screen track has no torch")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range c {
		t.applied[k] = v
	}
	return nil
}

func (t *screenTrack) Capabilities() ConstraintSet {
	return ConstraintSet{
		"torch":  false,
		"width":  t.rect.Dx(),
		"height": t.rect.Dy(),
	}
}

func (t *screenTrack) Settings() ConstraintSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := cloneSet(t.applied)
	if _, ok := set["width"]; !ok {
		set["width"] = t.rect.Dx()
	}
	if _, ok := set["height"]; !ok {
		set["height"] = t.rect.Dy()
	}
	return set
}

func cloneSet(c ConstraintSet) ConstraintSet {
	out := make(ConstraintSet, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
