package source

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
)

// gifSeq plays a decoded GIF as a frame sequence, compositing each frame
// over the previous canvas the way an animation renderer would.
type gifSeq struct {
	frames []*image.Paletted
	size   image.Point
	canvas *image.RGBA
	next   int
}

// NewGIFSeq wraps a decoded GIF as a FrameSeq.
func NewGIFSeq(g *gif.GIF) (FrameSeq, error) {
	if g == nil || len(g.Image) == 0 {
		return nil, fmt.Errorf("source: gif has no frames")
	}
	size := image.Pt(g.Config.Width, g.Config.Height)
	if size.X <= 0 || size.Y <= 0 {
		size = g.Image[0].Bounds().Size()
	}
	return &gifSeq{frames: g.Image, size: size}, nil
}

// NewVideoFromGIFFile decodes path and wraps it as a StaticVideo source.
func NewVideoFromGIFFile(path string) (*StaticVideo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open gif: %w", err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode gif %q: %w", path, err)
	}
	seq, err := NewGIFSeq(g)
	if err != nil {
		return nil, err
	}
	return NewStaticVideo(seq), nil
}

func (s *gifSeq) Size() image.Point { return s.size }

func (s *gifSeq) Next() (image.Image, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	if s.canvas == nil {
		s.canvas = image.NewRGBA(image.Rect(0, 0, s.size.X, s.size.Y))
	}
	frame := s.frames[s.next]
	s.next++
	draw.Draw(s.canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

	out := image.NewRGBA(s.canvas.Rect)
	copy(out.Pix, s.canvas.Pix)
	return out, nil
}
