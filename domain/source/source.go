// Package source models the visual inputs a scan session can read frames
// from, the capture surface those frames are rendered onto, and the capture
// step that turns a rendered frame into a luminance grid.
package source

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

// Kind discriminates the supported visual source variants.
type Kind int

const (
	KindLiveStream Kind = iota
	KindStaticVideo
	KindStaticImage
	KindRawSurface
)

func (k Kind) String() string {
	switch k {
	case KindLiveStream:
		return "livestream"
	case KindStaticVideo:
		return "video"
	case KindStaticImage:
		return "image"
	case KindRawSurface:
		return "surface"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned when a source cannot produce a frame yet.
	ErrNotReady = errors.New("source: not ready to capture")

	// ErrSizeUnknown is returned when a source's native dimensions cannot
	// be determined.
	ErrSizeUnknown = errors.New("source: native size unknown")

	// ErrNotRegistered is returned by Registry lookups for unknown names.
	ErrNotRegistered = errors.New("source: no source registered under name")
)

// VisualSource is any frame-producing input. Implementations report their
// native dimensions and render their current frame onto a caller-owned
// raster.
type VisualSource interface {
	Kind() Kind

	// NativeSize reports the source's native pixel dimensions.
	NativeSize() (image.Point, error)

	// Ready reports whether Draw can be expected to succeed right now.
	Ready() bool

	// Draw renders the current frame onto dst at the origin, overwriting
	// previous contents.
	Draw(dst *image.RGBA) error
}

// Registry maps caller-chosen names to sources, standing in for a document
// the platform would otherwise look elements up in. At most one source per
// name; registering again replaces and returns the previous entry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]VisualSource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]VisualSource)}
}

// Register binds name to src and returns the source previously bound, if
// any.
func (r *Registry) Register(name string, src VisualSource) VisualSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.entries[name]
	r.entries[name] = src
	return prev
}

// Resolve looks up name and checks the found source is of the wanted kind.
func (r *Registry) Resolve(name string, want Kind) (VisualSource, error) {
	r.mu.Lock()
	src, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	if src.Kind() != want {
		return nil, fmt.Errorf("source: %q is a %s source, want %s", name, src.Kind(), want)
	}
	return src, nil
}

// Remove unbinds name, returning the removed source if one was bound.
func (r *Registry) Remove(name string) VisualSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.entries[name]
	delete(r.entries, name)
	return prev
}
