package decode

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/liyue201/goqr"

	"github.com/soocke/codescan-go/domain/luminance"
)

// QRDecoder decodes QR symbols with the goqr recognizer. It is the reference
// Decoder implementation; callers with other symbologies plug in their own.
type QRDecoder struct{}

// NewQRDecoder returns a ready-to-use QR decoder.
func NewQRDecoder() *QRDecoder { return &QRDecoder{} }

// Decode implements Decoder. goqr failures are translated into the loop's
// taxonomy: "nothing recognizable in frame" maps to ErrNotFound, ECC
// failures to ErrChecksum and structural failures to ErrFormat.
func (d *QRDecoder) Decode(grid *luminance.Grid, hints Hints) (*Result, error) {
	if len(hints.Formats) > 0 && !slices.Contains(hints.Formats, "QR_CODE") {
		return nil, fmt.Errorf("qr decoder cannot handle formats %v", hints.Formats)
	}
	codes, err := goqr.Recognize(grid.Gray())
	if err != nil {
		return nil, translateQRError(err)
	}
	if len(codes) == 0 {
		return nil, ErrNotFound
	}
	code := codes[0]
	payload := make([]byte, len(code.Payload))
	copy(payload, code.Payload)
	return &Result{
		Text:      string(payload),
		RawBytes:  payload,
		Format:    "QR_CODE",
		Timestamp: time.Now(),
	}, nil
}

func translateQRError(err error) error {
	switch {
	case errors.Is(err, goqr.ErrNoQRCode):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, goqr.ErrFormatEcc), errors.Is(err, goqr.ErrDataEcc):
		return fmt.Errorf("%w: %v", ErrChecksum, err)
	case errors.Is(err, goqr.ErrInvalidGridSize),
		errors.Is(err, goqr.ErrInvalidVersion),
		errors.Is(err, goqr.ErrUnknownDataType),
		errors.Is(err, goqr.ErrDataOverflow),
		errors.Is(err, goqr.ErrDataUnderflow):
		return fmt.Errorf("%w: %v", ErrFormat, err)
	default:
		return err
	}
}
