package source

import (
	"image"
	"sync"
)

// Reusable raster pool so per-session capture surfaces do not churn large
// backing slices. The pool hands back whatever capacity it has; buffers too
// small for the requested size are replaced.

var rasterPool sync.Pool // stores *image.RGBA

func acquireRaster(size image.Point) *image.RGBA {
	w, h := size.X, size.Y
	rect := image.Rect(0, 0, w, h)
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := rasterPool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		return &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	}
	img.Stride = w * 4
	img.Rect = rect
	img.Pix = img.Pix[:needed]
	return img
}

func recycleRaster(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	rasterPool.Put(img)
}

// Surface is the session-owned raster a source's frames are rendered onto.
// It is sized lazily from the first known native size and never resized for
// the rest of the session, even if the source later reports different
// dimensions.
type Surface struct {
	mu     sync.Mutex
	raster *image.RGBA
	sized  bool
}

// NewSurface returns an unsized surface.
func NewSurface() *Surface { return &Surface{} }

// Ensure returns the surface raster, sizing it on first use. Later calls
// ignore the size argument and return the raster created first.
func (s *Surface) Ensure(size image.Point) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sized {
		s.raster = acquireRaster(size)
		s.sized = true
	}
	return s.raster
}

// Sized reports whether the surface raster has been created.
func (s *Surface) Sized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sized
}

// Release recycles the raster. The surface must not be used afterwards.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raster != nil {
		recycleRaster(s.raster)
		s.raster = nil
	}
	s.sized = false
}
