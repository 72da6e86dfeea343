// Package devices models the platform media layer: enumerable video input
// devices, streams acquired from them, and per-track constraint plumbing.
// The scan loop only sees the interfaces; providers adapt a concrete
// platform (screen capture, a camera SDK, or a test fake) behind them.
package devices

import (
	"errors"
	"fmt"
	"image"
)

// KindVideoInput is the normalized device kind the scan loop cares about.
const KindVideoInput = "videoinput"

var (
	// ErrNoDevice is returned when no device satisfies the constraints.
	ErrNoDevice = errors.New("devices: no matching video input device")

	// ErrEnumerationUnsupported is returned by providers that cannot list
	// devices on the current platform.
	ErrEnumerationUnsupported = errors.New("devices: enumeration unsupported")

	// ErrTrackStopped is returned by operations on a stopped track.
	ErrTrackStopped = errors.New("devices: track stopped")
)

// DeviceInfo describes one enumerable media device.
type DeviceInfo struct {
	ID      string
	Label   string
	Kind    string
	GroupID string
}

// Constraints select a device and initial stream settings. DeviceID wins
// over FacingMode when both are set.
type Constraints struct {
	DeviceID   string
	FacingMode string
	Width      int
	Height     int
}

// ConstraintSet is an open key/value bag, mirroring the free-form constraint
// dictionaries of platform media APIs. Well-known keys: "torch" (bool),
// "width"/"height" (int).
type ConstraintSet map[string]any

// Track is one media track of a stream.
type Track interface {
	// Kind is "video" for every track this package produces.
	Kind() string

	// Stop releases the track's underlying platform resource. Idempotent.
	Stop()

	// Constraints returns the constraints applied so far.
	Constraints() ConstraintSet

	// ApplyConstraints merges the given constraints into the track.
	ApplyConstraints(ConstraintSet) error

	// Capabilities reports what the track can do, e.g. whether "torch" is
	// available.
	Capabilities() ConstraintSet

	// Settings reports the track's current effective settings.
	Settings() ConstraintSet
}

// Stream is an acquired live video stream. Frame returns the current frame;
// successive calls observe successive frames.
type Stream interface {
	Tracks() []Track
	Frame() (*image.RGBA, error)
}

// Provider acquires streams from some platform backend.
type Provider interface {
	// Enumerate lists raw device descriptors. Callers normally want
	// Normalize(Enumerate()) instead.
	Enumerate() ([]DeviceInfo, error)

	// Open acquires a stream for the given constraints.
	Open(Constraints) (Stream, error)
}

// VideoTracks filters a stream's tracks down to the video ones.
func VideoTracks(s Stream) []Track {
	var out []Track
	for _, tr := range s.Tracks() {
		if tr.Kind() == "video" {
			out = append(out, tr)
		}
	}
	return out
}

// Normalize filters and cleans raw enumeration output: non-video-input kinds
// are dropped, the legacy kind "video" is rewritten to "videoinput", and
// devices reported without a label get a stable placeholder numbered by
// position among the video inputs.
func Normalize(raw []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, 0, len(raw))
	for _, d := range raw {
		if d.Kind == "video" {
			d.Kind = KindVideoInput
		}
		if d.Kind != KindVideoInput {
			continue
		}
		if d.Label == "" {
			d.Label = fmt.Sprintf("Video device %d", len(out)+1)
		}
		out = append(out, d)
	}
	return out
}

// SelectDevice picks a device from the normalized list: an exact ID match
// when requested, otherwise the first device. ErrNoDevice when nothing fits.
func SelectDevice(list []DeviceInfo, c Constraints) (DeviceInfo, error) {
	if c.DeviceID != "" {
		for _, d := range list {
			if d.ID == c.DeviceID {
				return d, nil
			}
		}
		return DeviceInfo{}, fmt.Errorf("%w: id %q", ErrNoDevice, c.DeviceID)
	}
	if len(list) == 0 {
		return DeviceInfo{}, ErrNoDevice
	}
	return list[0], nil
}

// TorchCapable returns the first track of the stream that reports torch
// capability, or nil.
func TorchCapable(s Stream) Track {
	for _, tr := range VideoTracks(s) {
		caps := tr.Capabilities()
		if on, ok := caps["torch"].(bool); ok && on {
			return tr
		}
	}
	return nil
}
