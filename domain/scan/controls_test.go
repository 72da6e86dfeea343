package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soocke/codescan-go/decode"
	"github.com/soocke/codescan-go/devices"
	"github.com/soocke/codescan-go/domain/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStreamSession(t *testing.T, torch bool) (*Session, *devices.FakeStream) {
	t.Helper()
	stream := devices.NewFakeStream(nil, torch)
	live := source.NewOwnedLiveStream(stream)
	require.NoError(t, live.Advance())
	s, err := New(Config{
		Source:     live,
		Decoder:    &scriptDecoder{script: []error{decode.ErrNotFound}},
		Callback:   func(*decode.Result, error, *Controls) {},
		Stream:     stream,
		OwnsStream: true,
	})
	require.NoError(t, err)
	return s, stream
}

func TestControls_SwitchTorch(t *testing.T) {
	s, stream := newStreamSession(t, true)
	defer s.Stop()
	c := s.Controls()

	require.NoError(t, c.SwitchTorch(true))
	assert.Equal(t, devices.ConstraintSet{"torch": true}, stream.Track().Constraints())

	require.NoError(t, c.SwitchTorch(false))
	assert.Equal(t, devices.ConstraintSet{"torch": false}, stream.Track().Constraints())
}

func TestControls_SwitchTorchNoCapability(t *testing.T) {
	s, stream := newStreamSession(t, false)
	defer s.Stop()

	require.NoError(t, s.Controls().SwitchTorch(true))
	assert.Empty(t, stream.Track().Constraints(), "torch toggle without capability must be a no-op")
}

func TestControls_SwitchTorchWithoutStream(t *testing.T) {
	s, err := New(Config{
		Source:   whiteSurface(),
		Decoder:  &scriptDecoder{script: []error{decode.ErrNotFound}},
		Callback: func(*decode.Result, error, *Controls) {},
	})
	require.NoError(t, err)
	defer s.Stop()

	assert.NoError(t, s.Controls().SwitchTorch(true))
}

func TestControls_StreamAccessors(t *testing.T) {
	s, _ := newStreamSession(t, true)
	defer s.Stop()
	c := s.Controls()

	require.NoError(t, c.ApplyStreamConstraints(nil, devices.ConstraintSet{"width": 320}))

	got, err := c.StreamConstraints(nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 320, got[0]["width"])

	caps, err := c.StreamCapabilities(nil)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, true, caps[0]["torch"])

	settings, err := c.StreamSettings(nil)
	require.NoError(t, err)
	assert.Len(t, settings, 1)
}

func TestControls_TrackFilter(t *testing.T) {
	s, _ := newStreamSession(t, true)
	defer s.Stop()

	none := func(devices.Track) bool { return false }
	got, err := s.Controls().StreamConstraints(none)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestControls_InertAfterStop(t *testing.T) {
	s, _ := newStreamSession(t, true)
	c := s.Controls()
	c.Stop()

	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.SwitchTorch(true), ErrSessionStopped)
	_, err := c.StreamConstraints(nil)
	assert.ErrorIs(t, err, ErrSessionStopped)
	_, err = c.StreamCapabilities(nil)
	assert.ErrorIs(t, err, ErrSessionStopped)
	_, err = c.StreamSettings(nil)
	assert.ErrorIs(t, err, ErrSessionStopped)
	assert.ErrorIs(t, c.ApplyStreamConstraints(nil, nil), ErrSessionStopped)

	// Stop stays safe.
	c.Stop()
}
