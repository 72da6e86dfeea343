package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/soocke/codescan-go/decode"
	"github.com/soocke/codescan-go/devices"
	"github.com/soocke/codescan-go/domain/luminance"
	"github.com/soocke/codescan-go/domain/source"
)

func whiteSurface() *source.RawSurface {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return source.NewRawSurface(img)
}

// scriptDecoder returns the scripted outcomes in order, repeating the last
// one forever. It also asserts ticks never overlap.
type scriptDecoder struct {
	mu       sync.Mutex
	script   []error
	result   *decode.Result
	calls    atomic.Int64
	inFlight atomic.Int64
	overlap  atomic.Bool
	block    chan struct{} // when non-nil, every decode waits on it
}

func (d *scriptDecoder) Decode(_ *luminance.Grid, _ decode.Hints) (*decode.Result, error) {
	if d.inFlight.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer d.inFlight.Add(-1)
	if d.block != nil {
		<-d.block
	}
	n := int(d.calls.Add(1)) - 1
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if len(d.script) > 0 {
		if n >= len(d.script) {
			n = len(d.script) - 1
		}
		err = d.script[n]
	}
	if err != nil {
		return nil, err
	}
	res := d.result
	if res == nil {
		res = &decode.Result{Text: "ok"}
	}
	return res, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestSession_RetryableKeepsTicking(t *testing.T) {
	dec := &scriptDecoder{script: []error{decode.ErrNotFound}}
	var cbErrs atomic.Int64
	s, err := New(Config{
		Source:  whiteSurface(),
		Decoder: dec,
		Callback: func(res *decode.Result, err error, _ *Controls) {
			require.Nil(t, res)
			require.ErrorIs(t, err, decode.ErrNotFound)
			cbErrs.Add(1)
		},
		AttemptDelay: time.Millisecond,
		SuccessDelay: time.Millisecond,
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return cbErrs.Load() >= 3 })
	assert.False(t, dec.overlap.Load(), "ticks must never overlap")
	assert.Equal(t, StateRunning, s.State())

	st := s.Stats()
	assert.GreaterOrEqual(t, st.Retries, uint64(3))
	assert.Zero(t, st.Successes)
}

func TestSession_SuccessContinuesInContinuousMode(t *testing.T) {
	dec := &scriptDecoder{}
	var got atomic.Int64
	s, err := New(Config{
		Source:  whiteSurface(),
		Decoder: dec,
		Callback: func(res *decode.Result, err error, _ *Controls) {
			require.NoError(t, err)
			require.Equal(t, "ok", res.Text)
			got.Add(1)
		},
		AttemptDelay: time.Millisecond,
		SuccessDelay: time.Millisecond,
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return got.Load() >= 2 })
	assert.Equal(t, StateRunning, s.State())
}

func TestSession_FatalErrorStopsAndFinalizes(t *testing.T) {
	boom := errors.New("camera unplugged")
	dec := &scriptDecoder{script: []error{decode.ErrNotFound, boom}}
	var finalizeCause error
	var finalized atomic.Int64
	s, err := New(Config{
		Source:       whiteSurface(),
		Decoder:      dec,
		Callback:     func(*decode.Result, error, *Controls) {},
		AttemptDelay: time.Millisecond,
		OnFinalize: func(cause error) {
			finalizeCause = cause
			finalized.Add(1)
		},
	})
	require.NoError(t, err)
	s.Start()

	waitFor(t, time.Second, func() bool { return finalized.Load() == 1 })
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, finalizeCause, boom)

	// Later stops change nothing.
	s.Stop()
	assert.EqualValues(t, 1, finalized.Load())
}

func TestSession_CaptureFailureIsFatal(t *testing.T) {
	var finalized atomic.Int64
	s, err := New(Config{
		Source:  source.NewStaticImage(nil), // never ready
		Decoder: &scriptDecoder{},
		Callback: func(res *decode.Result, err error, _ *Controls) {
			require.Error(t, err)
		},
		OnFinalize: func(error) { finalized.Add(1) },
	})
	require.NoError(t, err)
	s.Start()

	waitFor(t, time.Second, func() bool { return finalized.Load() == 1 })
	assert.Equal(t, StateStopped, s.State())
	assert.EqualValues(t, 1, s.Stats().Fatal)
}

func TestSession_StopIsIdempotent(t *testing.T) {
	var finalized atomic.Int64
	s, err := New(Config{
		Source:       whiteSurface(),
		Decoder:      &scriptDecoder{script: []error{decode.ErrNotFound}},
		Callback:     func(*decode.Result, error, *Controls) {},
		AttemptDelay: time.Millisecond,
		OnFinalize:   func(error) { finalized.Add(1) },
	})
	require.NoError(t, err)
	s.Start()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			s.Stop()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	s.Stop()

	assert.Equal(t, StateStopped, s.State())
	assert.EqualValues(t, 1, finalized.Load())
}

func TestSession_StopFromCallback(t *testing.T) {
	var finalized atomic.Int64
	var calls atomic.Int64
	s, err := New(Config{
		Source:  whiteSurface(),
		Decoder: &scriptDecoder{script: []error{decode.ErrNotFound}},
		Callback: func(_ *decode.Result, _ error, c *Controls) {
			calls.Add(1)
			c.Stop()
			c.Stop()
		},
		AttemptDelay: time.Millisecond,
		OnFinalize:   func(error) { finalized.Add(1) },
	})
	require.NoError(t, err)
	s.Start()

	waitFor(t, time.Second, func() bool { return finalized.Load() == 1 })
	time.Sleep(20 * time.Millisecond) // a rescheduled tick would land here
	assert.EqualValues(t, 1, calls.Load(), "no tick may run after an in-callback stop")
	assert.EqualValues(t, 1, finalized.Load())
}

func TestSession_OutcomeDiscardedWhenStoppedMidDecode(t *testing.T) {
	block := make(chan struct{})
	dec := &scriptDecoder{block: block}
	var calls atomic.Int64
	s, err := New(Config{
		Source:   whiteSurface(),
		Decoder:  dec,
		Callback: func(*decode.Result, error, *Controls) { calls.Add(1) },
	})
	require.NoError(t, err)
	s.Start()

	waitFor(t, time.Second, func() bool { return dec.inFlight.Load() == 1 })
	s.Stop()
	close(block)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load(), "outcome of an in-flight tick must be discarded after stop")
	assert.Equal(t, StateStopped, s.State())
}

func TestSession_OwnedStreamStoppedOnTeardown(t *testing.T) {
	stream := devices.NewFakeStream(nil, false)
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
	s.Start()
	s.Stop()

	assert.True(t, stream.Stopped())
	assert.False(t, live.Ready(), "source must be detached")
}

func TestSession_CallerStreamNotStopped(t *testing.T) {
	stream := devices.NewFakeStream(nil, false)
	live := source.NewLiveStream(stream)
	require.NoError(t, live.Advance())

	s, err := New(Config{
		Source:   live,
		Decoder:  &scriptDecoder{script: []error{decode.ErrNotFound}},
		Callback: func(*decode.Result, error, *Controls) {},
		Stream:   stream,
	})
	require.NoError(t, err)
	s.Start()
	s.Stop()

	assert.False(t, stream.Stopped(), "a caller-owned stream must survive teardown")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Decoder: &scriptDecoder{}, Callback: func(*decode.Result, error, *Controls) {}})
	assert.Error(t, err)
	_, err = New(Config{Source: whiteSurface(), Callback: func(*decode.Result, error, *Controls) {}})
	assert.Error(t, err)
	_, err = New(Config{Source: whiteSurface(), Decoder: &scriptDecoder{}})
	assert.Error(t, err)
}

func TestAwaitReady(t *testing.T) {
	// Immediately ready source.
	require.NoError(t, AwaitReady(context.Background(), whiteSurface(), time.Millisecond, 50*time.Millisecond))

	// Live stream becomes ready once frames flow.
	var fail atomic.Bool
	fail.Store(true)
	stream := devices.NewFakeStream(func() (*image.RGBA, error) {
		if fail.Load() {
			return nil, errors.New("warming up")
		}
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		return img, nil
	}, false)
	live := source.NewOwnedLiveStream(stream)

	go func() {
		time.Sleep(10 * time.Millisecond)
		fail.Store(false)
	}()
	require.NoError(t, AwaitReady(context.Background(), live, time.Millisecond, time.Second))
	assert.True(t, live.Ready())
}

func TestAwaitReady_Timeout(t *testing.T) {
	stream := devices.NewFakeStream(func() (*image.RGBA, error) {
		return nil, errors.New("no signal")
	}, false)
	live := source.NewOwnedLiveStream(stream)

	err := AwaitReady(context.Background(), live, time.Millisecond, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadyTimeout)
}

func TestAwaitReady_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := devices.NewFakeStream(func() (*image.RGBA, error) {
		return nil, errors.New("no signal")
	}, false)
	err := AwaitReady(ctx, source.NewOwnedLiveStream(stream), time.Millisecond, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquireStream_CancelBeforeOpenCompletes(t *testing.T) {
	release := make(chan struct{})
	stream := devices.NewFakeStream(nil, false)
	p := &devices.FakeProvider{
		OpenFunc: func(devices.Constraints) (devices.Stream, error) {
			<-release
			return stream, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AcquireStream(ctx, p, devices.Constraints{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, stream.Stopped())

	// Acquisition completing after the cancel must release the stream.
	close(release)
	waitFor(t, time.Second, func() bool { return stream.Stopped() })
}

func TestAcquireStream_OpenError(t *testing.T) {
	p := &devices.FakeProvider{} // no devices configured
	_, err := AcquireStream(context.Background(), p, devices.Constraints{DeviceID: "nope"})
	assert.ErrorIs(t, err, devices.ErrNoDevice)
}
