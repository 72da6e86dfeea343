package scan

import (
	"errors"

	"github.com/soocke/codescan-go/devices"
)

// TrackFilter selects the subset of stream tracks a controls accessor
// operates on. A nil filter means every video track.
type TrackFilter func(devices.Track) bool

// Controls is the caller-held handle for a running session. One instance
// exists per session; after the session stops it stays safe to use but the
// stream accessors report ErrSessionStopped.
type Controls struct {
	session *Session
}

// Stop terminates the session. Idempotent from any state.
func (c *Controls) Stop() { c.session.Stop() }

// State reports the session state.
func (c *Controls) State() State { return c.session.State() }

// SwitchTorch turns the stream's torch on or off. A no-op when the session
// has no stream or no track of the stream reports torch capability.
func (c *Controls) SwitchTorch(on bool) error {
	s, err := c.stream()
	if err != nil {
		if errors.Is(err, ErrNoStream) {
			return nil
		}
		return err
	}
	tr := devices.TorchCapable(s)
	if tr == nil {
		return nil
	}
	return tr.ApplyConstraints(devices.ConstraintSet{"torch": on})
}

// StreamConstraints returns the applied constraints of each selected track.
func (c *Controls) StreamConstraints(filter TrackFilter) ([]devices.ConstraintSet, error) {
	return c.collect(filter, devices.Track.Constraints)
}

// StreamCapabilities returns the capabilities of each selected track.
func (c *Controls) StreamCapabilities(filter TrackFilter) ([]devices.ConstraintSet, error) {
	return c.collect(filter, devices.Track.Capabilities)
}

// StreamSettings returns the effective settings of each selected track.
func (c *Controls) StreamSettings(filter TrackFilter) ([]devices.ConstraintSet, error) {
	return c.collect(filter, devices.Track.Settings)
}

// ApplyStreamConstraints applies cs to each selected track, stopping at the
// first track that rejects it.
func (c *Controls) ApplyStreamConstraints(filter TrackFilter, cs devices.ConstraintSet) error {
	s, err := c.stream()
	if err != nil {
		return err
	}
	for _, tr := range selectTracks(s, filter) {
		if err := tr.ApplyConstraints(cs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controls) collect(filter TrackFilter, get func(devices.Track) devices.ConstraintSet) ([]devices.ConstraintSet, error) {
	s, err := c.stream()
	if err != nil {
		return nil, err
	}
	tracks := selectTracks(s, filter)
	out := make([]devices.ConstraintSet, 0, len(tracks))
	for _, tr := range tracks {
		out = append(out, get(tr))
	}
	return out, nil
}

// stream returns the session's stream, or a scoped error when the session
// has stopped or never had one.
func (c *Controls) stream() (devices.Stream, error) {
	if c.session.State() == StateStopped {
		return nil, ErrSessionStopped
	}
	if c.session.stream == nil {
		return nil, ErrNoStream
	}
	return c.session.stream, nil
}

func selectTracks(s devices.Stream, filter TrackFilter) []devices.Track {
	tracks := devices.VideoTracks(s)
	if filter == nil {
		return tracks
	}
	out := tracks[:0]
	for _, tr := range tracks {
		if filter(tr) {
			out = append(out, tr)
		}
	}
	return out
}
