// Package decode defines the contract between the scan loop and an external
// symbol decoder, together with the error taxonomy the loop classifies
// decode failures by.
package decode

import (
	"errors"
	"time"

	"github.com/soocke/codescan-go/domain/luminance"
)

var (
	// ErrNotFound is returned when no symbol is present in the frame. The
	// expected outcome for most frames of a live scan.
	ErrNotFound = errors.New("symbol not found")

	// ErrChecksum is returned when a symbol was located but its checksum
	// does not match.
	ErrChecksum = errors.New("checksum error")

	// ErrFormat is returned when a symbol was located but its structure is
	// invalid.
	ErrFormat = errors.New("format error")
)

// Retryable reports whether err is one of the decode failures expected
// during normal scanning. Anything else is fatal to a scan session.
func Retryable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrChecksum) || errors.Is(err, ErrFormat)
}

// Hints carries caller-supplied guidance for the decoder.
type Hints struct {
	// TryHarder trades speed for detection rate.
	TryHarder bool

	// Formats restricts decoding to the named symbol formats. Empty means
	// decoder default.
	Formats []string

	// CharacterSet overrides the decoder's default text encoding.
	CharacterSet string
}

// Point is a position of interest in the decoded frame, such as a finder
// pattern center.
type Point struct {
	X, Y float64
}

// Result is a successfully decoded symbol.
type Result struct {
	Text      string
	RawBytes  []byte
	Points    []Point
	Format    string
	Timestamp time.Time
}

// Decoder turns a luminance grid into a Result or an error. Implementations
// signal "keep scanning" failures with ErrNotFound, ErrChecksum or ErrFormat
// (possibly wrapped); any other error terminates the session.
type Decoder interface {
	Decode(grid *luminance.Grid, hints Hints) (*Result, error)
}

// Func adapts a plain function to the Decoder interface.
type Func func(grid *luminance.Grid, hints Hints) (*Result, error)

// Decode implements Decoder.
func (f Func) Decode(grid *luminance.Grid, hints Hints) (*Result, error) {
	return f(grid, hints)
}
