package playback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, backend *fakeBackend) *Engine {
	t.Helper()
	e := NewEngine(Options{SampleRate: 16000, Backend: backend})
	t.Cleanup(func() { _ = e.Cleanup() })
	return e
}

func TestLoadAudioRejectsEmpty(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	assert.ErrorIs(t, e.LoadAudio(nil), ErrEmptyAudio)
	assert.ErrorIs(t, e.LoadAudio([]byte{}), ErrEmptyAudio)
	assert.ErrorIs(t, e.LoadAudio([]byte{0x01}), ErrEmptyAudio)
}

func TestLoadAudioTrimsOddLength(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio([]byte{1, 2, 3}))
	assert.Equal(t, 2, e.Len())
	assert.Equal(t, 0, e.Position())
	assert.Equal(t, StateIdle, e.State())
}

func TestPlayWithoutAudio(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	assert.ErrorIs(t, e.Play(0), ErrEmptyAudio)
}

func TestPlayOpenFailure(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{openErr: errUnplugged})
	require.NoError(t, e.LoadAudio(pcm(64)))

	err := e.Play(0)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "open", devErr.Op)
	assert.False(t, e.Playing())
}

func TestBasicPlaybackRunsToCompletion(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend)

	var ends atomic.Int32
	e.SetOnEnd(func() { ends.Add(1) })

	audio := pcm(16000) // 0.5s at 16 kHz
	require.NoError(t, e.LoadAudio(audio))
	require.NoError(t, e.Play(0))
	assert.True(t, e.Playing())

	require.Eventually(t, func() bool {
		return !e.Playing() && ends.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, len(audio), e.Position())
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, int64(len(audio)), backend.last().written.Load())
	assert.Equal(t, int32(1), backend.last().closes.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ends.Load())
}

func TestPlayAgainRestartsFromBeginning(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(1024)))

	require.NoError(t, e.Play(0))
	require.NoError(t, e.Wait(context.Background()))
	require.Eventually(t, func() bool { return !e.Playing() }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Play(0))
	assert.True(t, e.Playing())
	require.NoError(t, e.Stop())
}

func TestPlayWithDurationBlocks(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(64000))) // 2s

	start := time.Now()
	require.NoError(t, e.Play(150*time.Millisecond))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.True(t, e.Playing())
}

func TestPlayWhilePlayingIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend)
	require.NoError(t, e.LoadAudio(pcm(64000)))

	require.NoError(t, e.Play(0))
	require.NoError(t, e.Play(0))

	backend.mu.Lock()
	assert.Len(t, backend.outputs, 1)
	backend.mu.Unlock()

	assert.ErrorIs(t, e.LoadAudio(pcm(10)), ErrBusy)
}

func TestTimedPauseAutoResumes(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	time.Sleep(100 * time.Millisecond)

	returned := make(chan struct{})
	go func() {
		e.Pause(300 * time.Millisecond)
		close(returned)
	}()

	require.Eventually(t, e.Paused, 100*time.Millisecond, 2*time.Millisecond)
	assert.True(t, e.Playing())
	assert.True(t, e.PendingResume())

	paused := e.Position()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, e.Position()-paused, DefaultChunkSize, "at most the in-flight chunk lands while paused")

	require.Eventually(t, func() bool { return !e.Paused() }, time.Second, 10*time.Millisecond)
	assert.False(t, e.PendingResume())

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Pause did not return after auto-resume")
	}

	before := e.Position()
	require.Eventually(t, func() bool { return e.Position() > before }, time.Second, 10*time.Millisecond)
}

func TestPauseTwiceKeepsOneTimer(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	first := make(chan struct{})
	go func() {
		e.Pause(5 * time.Second)
		close(first)
	}()
	require.Eventually(t, e.PendingResume, time.Second, 2*time.Millisecond)

	second := make(chan struct{})
	go func() {
		e.Pause(5 * time.Second)
		close(second)
	}()

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first pause should be superseded by the second")
	}

	assert.True(t, e.Paused())
	assert.True(t, e.PendingResume())

	e.Resume()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("resume should release the pending pause")
	}
	assert.False(t, e.Paused())
	assert.False(t, e.PendingResume())
}

func TestIndefinitePauseAndResume(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	e.Pause(0)
	e.Pause(0)
	assert.True(t, e.Paused())
	assert.False(t, e.PendingResume())

	require.NoError(t, e.Play(0))
	assert.False(t, e.Paused())
	assert.True(t, e.Playing())
}

func TestPauseWhenIdleIsNoop(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	e.Pause(time.Hour)
	assert.False(t, e.Paused())
	e.Resume()
	assert.Equal(t, StateIdle, e.State())
}

func TestStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	assert.NoError(t, e.Stop())
	assert.NoError(t, e.Stop())
}

func TestStopDuringPlayback(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend)

	var ends, hooks atomic.Int32
	e.SetOnEnd(func() { ends.Add(1) })
	e.OnStop(func() { hooks.Add(1) })

	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, e.Stop())
	assert.False(t, e.Playing())
	assert.Equal(t, 0, e.Position())
	assert.Equal(t, int32(1), hooks.Load())
	assert.Equal(t, int32(1), backend.last().closes.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ends.Load(), "onEnd must not fire on manual stop")

	require.NoError(t, e.Stop())
}

func TestStopReleasesBlockedPause(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	returned := make(chan struct{})
	go func() {
		e.Pause(time.Hour)
		close(returned)
	}()
	require.Eventually(t, e.PendingResume, time.Second, 2*time.Millisecond)

	require.NoError(t, e.Stop())
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Stop should release a blocked Pause")
	}
	assert.False(t, e.PendingResume())
	assert.False(t, e.Paused())
}

func TestStopSwallowsTeardownErrors(t *testing.T) {
	backend := &fakeBackend{closeErr: ErrDeviceInternal}
	e := newTestEngine(t, backend)
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	assert.NoError(t, e.Stop())
}

func TestStopPropagatesOtherDeviceErrors(t *testing.T) {
	backend := &fakeBackend{closeErr: errUnplugged}
	e := newTestEngine(t, backend)
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	err := e.Stop()
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "close", devErr.Op)
	assert.True(t, errors.Is(err, errUnplugged))
	assert.False(t, e.Playing())
}

func TestWriteFailureEndsStream(t *testing.T) {
	backend := &fakeBackend{writeErr: errUnplugged}
	e := newTestEngine(t, backend)

	var ends atomic.Int32
	e.SetOnEnd(func() { ends.Add(1) })

	require.NoError(t, e.LoadAudio(pcm(4096)))
	require.NoError(t, e.Play(0))

	require.Eventually(t, func() bool { return !e.Playing() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.Err(), errUnplugged)
	assert.Equal(t, int32(0), ends.Load())
}

func TestOnEndMayStopEngine(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	stopped := make(chan error, 1)
	e.SetOnEnd(func() { stopped <- e.Stop() })

	require.NoError(t, e.LoadAudio(pcm(512)))
	require.NoError(t, e.Play(0))

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("onEnd never fired")
	}
}

func TestCleanupIsTerminalAndRepeatable(t *testing.T) {
	backend := &fakeBackend{}
	e := NewEngine(Options{SampleRate: 16000, Backend: backend})
	require.NoError(t, e.LoadAudio(pcm(64000)))
	require.NoError(t, e.Play(0))

	require.NoError(t, e.Cleanup())
	require.NoError(t, e.Cleanup())
	assert.Equal(t, int32(1), backend.released.Load())

	assert.ErrorIs(t, e.LoadAudio(pcm(2)), ErrClosed)
	assert.False(t, e.Playing())
}

func TestDuration(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{})
	require.NoError(t, e.LoadAudio(pcm(16000)))
	assert.Equal(t, 500*time.Millisecond, e.Duration())
}

func TestMeterReceivesLevels(t *testing.T) {
	meter := NewLevelProcessor()
	e := NewEngine(Options{SampleRate: 16000, Backend: &fakeBackend{}, Meter: meter})
	t.Cleanup(func() { _ = e.Cleanup() })

	loud := make([]byte, 8000)
	for i := 0; i < len(loud); i += 2 {
		loud[i], loud[i+1] = 0xff, 0x3f
	}
	require.NoError(t, e.LoadAudio(loud))
	require.NoError(t, e.Play(0))

	select {
	case level := <-meter.LevelChan:
		assert.Greater(t, level, 0.0)
		assert.LessOrEqual(t, level, 1.0)
	case <-time.After(time.Second):
		t.Fatal("no level emitted")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestBufferedOutputPlaysTailBeforeEnd(t *testing.T) {
	backend := &bufferingBackend{}
	e := NewEngine(Options{SampleRate: 16000, Backend: backend})
	defer e.Cleanup()

	var playedAtEnd atomic.Int64
	ended := make(chan struct{})
	e.SetOnEnd(func() {
		playedAtEnd.Store(backend.last().played.Load())
		close(ended)
	})

	audio := pcm(16000) // 0.5s at 16 kHz
	require.NoError(t, e.LoadAudio(audio))
	require.NoError(t, e.Play(0))

	// writes are accepted at once, so the whole buffer is queued early
	require.Eventually(t, func() bool { return e.Position() == len(audio) }, time.Second, time.Millisecond)
	assert.True(t, e.Playing())

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("onEnd never fired")
	}

	out := backend.last()
	assert.Equal(t, int64(len(audio)), playedAtEnd.Load())
	assert.Equal(t, int64(len(audio)), out.playedAtClose.Load())
	assert.False(t, e.Playing())
}

func TestPauseHoldsBufferedAudio(t *testing.T) {
	backend := &bufferingBackend{}
	e := NewEngine(Options{SampleRate: 16000, Backend: backend})
	defer e.Cleanup()

	audio := pcm(16000)
	require.NoError(t, e.LoadAudio(audio))
	require.NoError(t, e.Play(0))
	time.Sleep(50 * time.Millisecond)

	e.Pause(0)
	time.Sleep(2 * bufferingTick)
	out := backend.last()
	held := out.played.Load()
	assert.Less(t, held, int64(len(audio)))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, held, out.played.Load())

	e.Resume()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	assert.Equal(t, int64(len(audio)), out.playedAtClose.Load())
}

func TestStopWhileDrainingSkipsOnEnd(t *testing.T) {
	backend := &bufferingBackend{}
	e := NewEngine(Options{SampleRate: 16000, Backend: backend})
	defer e.Cleanup()

	var ends atomic.Int32
	e.SetOnEnd(func() { ends.Add(1) })

	audio := pcm(32000) // 1s
	require.NoError(t, e.LoadAudio(audio))
	require.NoError(t, e.Play(0))
	require.Eventually(t, func() bool { return e.Position() == len(audio) }, time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	assert.False(t, e.Playing())
	assert.Less(t, backend.last().playedAtClose.Load(), int64(len(audio)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ends.Load())
}
