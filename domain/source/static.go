package source

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	// Extra still-image formats beyond the stdlib defaults.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// defaultWidth/defaultHeight size synthesized sources when the caller gave
// no dimensions.
const (
	defaultWidth  = 640
	defaultHeight = 480
)

// StaticImage is a VisualSource over a single still image.
type StaticImage struct {
	img      image.Image
	declared image.Point
}

// NewStaticImage wraps a decoded still image.
func NewStaticImage(img image.Image) *StaticImage {
	return &StaticImage{img: img}
}

// NewStaticImageSized wraps an image with declared dimensions to fall back
// to when the natural size is zero.
func NewStaticImageSized(img image.Image, width, height int) *StaticImage {
	return &StaticImage{img: img, declared: image.Pt(width, height)}
}

// NewStaticImageFromFile decodes path into a StaticImage. PNG, JPEG, GIF,
// BMP, TIFF and WebP are recognized.
func NewStaticImageFromFile(path string) (*StaticImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode image %q: %w", path, err)
	}
	return &StaticImage{img: img}, nil
}

func (s *StaticImage) Kind() Kind  { return KindStaticImage }
func (s *StaticImage) Ready() bool { return s.img != nil }

// NativeSize reports the image's natural size, falling back to the declared
// size when natural dimensions are zero.
func (s *StaticImage) NativeSize() (image.Point, error) {
	if s.img != nil {
		if sz := s.img.Bounds().Size(); sz.X > 0 && sz.Y > 0 {
			return sz, nil
		}
	}
	if s.declared.X > 0 && s.declared.Y > 0 {
		return s.declared, nil
	}
	return image.Point{}, ErrSizeUnknown
}

func (s *StaticImage) Draw(dst *image.RGBA) error {
	if s.img == nil {
		return ErrNotReady
	}
	draw.Draw(dst, dst.Bounds(), s.img, s.img.Bounds().Min, draw.Src)
	return nil
}

// FrameSeq yields successive frames of a prerecorded clip, io.EOF after the
// last one.
type FrameSeq interface {
	Size() image.Point
	Next() (image.Image, error)
}

// StaticVideo is a VisualSource over a frame sequence. Each Draw advances
// one frame; once the sequence is exhausted the final frame keeps being
// drawn, like a video paused on its last frame.
type StaticVideo struct {
	mu   sync.Mutex
	seq  FrameSeq
	last image.Image
	done bool
}

// NewStaticVideo wraps a frame sequence.
func NewStaticVideo(seq FrameSeq) *StaticVideo {
	return &StaticVideo{seq: seq}
}

func (v *StaticVideo) Kind() Kind  { return KindStaticVideo }
func (v *StaticVideo) Ready() bool { return v.seq != nil }

// NativeSize reports the clip's frame dimensions.
func (v *StaticVideo) NativeSize() (image.Point, error) {
	if v.seq == nil {
		return image.Point{}, ErrSizeUnknown
	}
	sz := v.seq.Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return image.Point{}, ErrSizeUnknown
	}
	return sz, nil
}

func (v *StaticVideo) Draw(dst *image.RGBA) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seq == nil {
		return ErrNotReady
	}
	if !v.done {
		frame, err := v.seq.Next()
		switch {
		case err == nil:
			v.last = frame
		case errors.Is(err, io.EOF):
			v.done = true
		default:
			return fmt.Errorf("source: advance video: %w", err)
		}
	}
	if v.last == nil {
		return ErrNotReady
	}
	draw.Draw(dst, dst.Bounds(), v.last, v.last.Bounds().Min, draw.Src)
	return nil
}

// RawSurface is a VisualSource over a raw RGBA raster the caller mutates in
// place between ticks.
type RawSurface struct {
	pix *image.RGBA
}

// NewRawSurface wraps an existing raster.
func NewRawSurface(pix *image.RGBA) *RawSurface {
	return &RawSurface{pix: pix}
}

// NewDefaultRawSurface synthesizes a blank raster with default dimensions,
// the fallback when a session is started without an existing surface.
func NewDefaultRawSurface() *RawSurface {
	return &RawSurface{pix: image.NewRGBA(image.Rect(0, 0, defaultWidth, defaultHeight))}
}

func (s *RawSurface) Kind() Kind  { return KindRawSurface }
func (s *RawSurface) Ready() bool { return s.pix != nil }

// Raster returns the underlying raster for in-place mutation.
func (s *RawSurface) Raster() *image.RGBA { return s.pix }

func (s *RawSurface) NativeSize() (image.Point, error) {
	if s.pix == nil {
		return image.Point{}, ErrSizeUnknown
	}
	return s.pix.Bounds().Size(), nil
}

func (s *RawSurface) Draw(dst *image.RGBA) error {
	if s.pix == nil {
		return ErrNotReady
	}
	draw.Draw(dst, dst.Bounds(), s.pix, s.pix.Bounds().Min, draw.Src)
	return nil
}
