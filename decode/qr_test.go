package decode

import (
	"errors"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/codescan-go/domain/luminance"
)

func qrGrid(t *testing.T, content string) *luminance.Grid {
	t.Helper()
	qr, err := qrcode.New(content, qrcode.Medium)
	require.NoError(t, err)
	return luminance.FromImage(qr.Image(256))
}

func TestQRDecoder_RoundTrip(t *testing.T) {
	grid := qrGrid(t, "otpauth://totp/demo")

	res, err := NewQRDecoder().Decode(grid, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "otpauth://totp/demo", res.Text)
	assert.Equal(t, "QR_CODE", res.Format)
	assert.Equal(t, []byte("otpauth://totp/demo"), res.RawBytes)
}

func TestQRDecoder_EmptyFrameIsNotFound(t *testing.T) {
	blank := make([]byte, 64*64)
	for i := range blank {
		blank[i] = 0xFF
	}
	grid, err := luminance.FromLuminance(blank, 64, 64)
	require.NoError(t, err)

	_, err = NewQRDecoder().Decode(grid, Hints{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, Retryable(err))
}

func TestQRDecoder_RejectsForeignFormats(t *testing.T) {
	grid := qrGrid(t, "x")

	_, err := NewQRDecoder().Decode(grid, Hints{Formats: []string{"PDF_417"}})
	require.Error(t, err)
	assert.False(t, Retryable(err))

	_, err = NewQRDecoder().Decode(grid, Hints{Formats: []string{"PDF_417", "QR_CODE"}})
	assert.NoError(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrNotFound))
	assert.True(t, Retryable(ErrChecksum))
	assert.True(t, Retryable(ErrFormat))
	assert.False(t, Retryable(errors.New("camera unplugged")))
	assert.False(t, Retryable(nil))
}
