package source

import (
	"fmt"
	"image"

	"github.com/soocke/codescan-go/domain/luminance"
)

// Capture renders src's current frame onto the session surface and extracts
// a luminance grid from it. The surface is sized from the first successful
// NativeSize and reused for every later tick.
func Capture(src VisualSource, surf *Surface) (*luminance.Grid, error) {
	if src == nil {
		return nil, fmt.Errorf("source: nil visual source")
	}
	if !src.Ready() {
		return nil, ErrNotReady
	}
	var size image.Point
	if !surf.Sized() {
		var err error
		size, err = src.NativeSize()
		if err != nil {
			return nil, fmt.Errorf("source: capture %s: %w", src.Kind(), err)
		}
	}
	dst := surf.Ensure(size)
	if dst.Bounds().Empty() {
		return nil, fmt.Errorf("source: capture %s: surface is empty", src.Kind())
	}
	if err := src.Draw(dst); err != nil {
		return nil, fmt.Errorf("source: draw %s frame: %w", src.Kind(), err)
	}
	return luminance.FromRGBA(dst), nil
}
