package luminance

import (
	"fmt"
	"image"
)

// Grid is an 8-bit grayscale raster extracted from a captured frame. It is
// what gets handed to a decoder. A Grid may be a cropped view over a larger
// extraction; rotation re-renders the retained source raster.
type Grid struct {
	lum    []byte
	stride int
	left   int
	top    int
	width  int
	height int

	// source raster retained for Rotate; nil when the grid was built from
	// bare luminance data, in which case Rotate reconstructs a gray image.
	src image.Image
}

// FromImage extracts a Grid from any image.Image using the integer luma
// approximation (306*R + 601*G + 117*B + 0x200) >> 10 on 8-bit components.
// Fully-transparent pixels become white (0xFF): transparency marks the light
// areas of a symbol.
func FromImage(img image.Image) *Grid {
	if rgba, ok := img.(*image.RGBA); ok {
		return FromRGBA(rgba)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b, a := c.RGBA()
			if a == 0 {
				lum[y*w+x] = 0xFF
				continue
			}
			// 16-bit components down to 8 bit before applying the weights.
			lum[y*w+x] = byte((306*(r>>8) + 601*(g>>8) + 117*(b>>8) + 0x200) >> 10)
		}
	}
	return &Grid{lum: lum, stride: w, width: w, height: h, src: img}
}

// FromRGBA extracts a Grid straight from an RGBA pixel buffer. Same
// conversion as FromImage but walking Pix directly.
func FromRGBA(img *image.RGBA) *Grid {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4 : x*4+4]
			if p[3] == 0 {
				lum[y*w+x] = 0xFF
				continue
			}
			lum[y*w+x] = byte((306*uint32(p[0]) + 601*uint32(p[1]) + 117*uint32(p[2]) + 0x200) >> 10)
		}
	}
	return &Grid{lum: lum, stride: w, width: w, height: h, src: img}
}

// FromLuminance wraps precomputed grayscale values. The slice is used
// directly and must hold width*height bytes.
func FromLuminance(lum []byte, width, height int) (*Grid, error) {
	if len(lum) != width*height {
		return nil, fmt.Errorf("luminance: buffer length %d does not match %dx%d", len(lum), width, height)
	}
	return &Grid{lum: lum, stride: width, width: width, height: height}, nil
}

// Width returns the grid width in pixels.
func (g *Grid) Width() int { return g.width }

// Height returns the grid height in pixels.
func (g *Grid) Height() int { return g.height }

// At returns the intensity at linear index i within the grid's own
// coordinate space.
func (g *Grid) At(i int) byte {
	y := i / g.width
	x := i % g.width
	return g.lum[(g.top+y)*g.stride+g.left+x]
}

// Row copies row y into buf, allocating when buf is too small, and returns
// the populated slice. y outside [0, height) is an error.
func (g *Grid) Row(y int, buf []byte) ([]byte, error) {
	if y < 0 || y >= g.height {
		return nil, fmt.Errorf("luminance: row %d outside [0, %d)", y, g.height)
	}
	if len(buf) < g.width {
		buf = make([]byte, g.width)
	}
	off := (g.top+y)*g.stride + g.left
	copy(buf, g.lum[off:off+g.width])
	return buf[:g.width], nil
}

// Matrix returns the grid contents as a freshly allocated row-major slice.
func (g *Grid) Matrix() []byte {
	out := make([]byte, g.width*g.height)
	for y := 0; y < g.height; y++ {
		off := (g.top+y)*g.stride + g.left
		copy(out[y*g.width:], g.lum[off:off+g.width])
	}
	return out
}

// CropSupported reports whether Crop is available. Always true.
func (g *Grid) CropSupported() bool { return true }

// RotateSupported reports whether Rotate is available. Always true.
func (g *Grid) RotateSupported() bool { return true }

// Crop returns a view restricted to the given sub-rectangle. The view shares
// the underlying luminance buffer.
func (g *Grid) Crop(left, top, width, height int) (*Grid, error) {
	if left < 0 || top < 0 || width <= 0 || height <= 0 ||
		left+width > g.width || top+height > g.height {
		return nil, fmt.Errorf("luminance: crop %dx%d+%d+%d outside %dx%d grid",
			width, height, left, top, g.width, g.height)
	}
	return &Grid{
		lum:    g.lum,
		stride: g.stride,
		left:   g.left + left,
		top:    g.top + top,
		width:  width,
		height: height,
		src:    g.src,
	}, nil
}
