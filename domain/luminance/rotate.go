package luminance

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Rotate re-renders the grid's source raster rotated by the given angle in
// degrees and extracts a new Grid from the result. The output raster is
// sized to the rotated bounding box (ceil(|cos|*W + |sin|*H) by
// ceil(|sin|*W + |cos|*H)) with the draw centered, so no source content is
// clipped; uncovered corners are filled white, same as transparent input.
func (g *Grid) Rotate(angleDegrees float64) (*Grid, error) {
	src := g.src
	if src == nil {
		src = g.Gray()
	}
	rotated := imaging.Rotate(src, angleDegrees, color.White)
	return FromImage(rotated), nil
}

// Gray renders the grid as an image.Gray, one byte per pixel. Decoder
// adapters that want an image.Image use this.
func (g *Grid) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		off := (g.top+y)*g.stride + g.left
		copy(img.Pix[y*img.Stride:y*img.Stride+g.width], g.lum[off:off+g.width])
	}
	return img
}
