package dbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willwade/tts-wrapper-sub000/internal/playback"
	"github.com/willwade/tts-wrapper-sub000/internal/tts"
)

type fakeSpeaker struct {
	mu       sync.Mutex
	playing  bool
	paused   []time.Duration
	resumed  int
	stopped  int
	startErr error
	spoken   []string
	onStart  func()
	onEnd    func()
}

func (f *fakeSpeaker) StartPlaybackWithCallbacks(ctx context.Context, text string, cb tts.WordCallback) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	err := f.startErr
	onStart, onEnd := f.onStart, f.onEnd
	f.mu.Unlock()
	if err != nil {
		return err
	}
	onStart()
	cb("hello", 0, 0.4)
	onEnd()
	return nil
}

func (f *fakeSpeaker) Pause(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, d)
}

func (f *fakeSpeaker) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
}

func (f *fakeSpeaker) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeSpeaker) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeSpeaker) Position() int { return 24000 }
func (f *fakeSpeaker) SampleRate() int { return 24000 }
func (f *fakeSpeaker) State() playback.State { return playback.StatePlaying }
func (f *fakeSpeaker) AudioDuration() float64 { return 2.5 }

func (f *fakeSpeaker) Connect(event tts.Event, callback interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch event {
	case tts.EventStart:
		f.onStart = callback.(func())
	case tts.EventEnd:
		f.onEnd = callback.(func())
	default:
		return tts.ErrUnknownEvent
	}
	return nil
}

type signal struct {
	name string
	args []interface{}
}

type signalLog struct {
	mu      sync.Mutex
	signals []signal
}

func (l *signalLog) emit(name string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, signal{name: name, args: args})
}

func (l *signalLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.signals))
	for i, s := range l.signals {
		names[i] = s.name
	}
	return names
}

func newTestServer(t *testing.T, speaker *fakeSpeaker) (*Server, *signalLog) {
	t.Helper()
	s, err := NewServer(speaker, nil)
	require.NoError(t, err)
	log := &signalLog{}
	s.emit = log.emit
	return s, log
}

func TestSpeakEmitsSignals(t *testing.T) {
	speaker := &fakeSpeaker{}
	s, log := newTestServer(t, speaker)

	require.Nil(t, s.Speak("hello"))
	require.Eventually(t, func() bool { return len(log.names()) == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"SpeechStarted", "WordSpoken", "SpeechEnded"}, log.names())
	assert.Equal(t, []interface{}{"hello", 0.0, 0.4}, log.signals[1].args)
}

func TestSpeakWhilePlayingFails(t *testing.T) {
	speaker := &fakeSpeaker{playing: true}
	s, _ := newTestServer(t, speaker)

	err := s.Speak("again")
	require.NotNil(t, err)
	assert.Empty(t, speaker.spoken)
}

func TestSpeakFailureEmitsError(t *testing.T) {
	speaker := &fakeSpeaker{startErr: errors.New("no voice")}
	s, log := newTestServer(t, speaker)

	require.Nil(t, s.Speak("x"))
	require.Eventually(t, func() bool { return len(log.names()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "SpeechError", log.signals[0].name)
	assert.Equal(t, []interface{}{"no voice"}, log.signals[0].args)
}

func TestPlaybackControls(t *testing.T) {
	speaker := &fakeSpeaker{}
	s, _ := newTestServer(t, speaker)

	assert.Nil(t, s.Pause(0))
	assert.Nil(t, s.Pause(1.5))
	assert.Nil(t, s.Resume())
	assert.Nil(t, s.StopSpeech())

	require.Eventually(t, func() bool {
		speaker.mu.Lock()
		defer speaker.mu.Unlock()
		return len(speaker.paused) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []time.Duration{0, 1500 * time.Millisecond}, speaker.paused)
	assert.Equal(t, 1, speaker.resumed)
	assert.Equal(t, 1, speaker.stopped)
}

func TestGetStatus(t *testing.T) {
	s, _ := newTestServer(t, &fakeSpeaker{})

	state, position, duration, err := s.GetStatus()
	require.Nil(t, err)
	assert.Equal(t, "playing", state)
	assert.InDelta(t, 0.5, position, 1e-9)
	assert.Equal(t, 2.5, duration)
}

func TestServerStopCancelsContext(t *testing.T) {
	speaker := &fakeSpeaker{}
	s, _ := newTestServer(t, speaker)

	s.Stop()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
	assert.Equal(t, 1, speaker.stopped)
}

type fixedStats string

func (f fixedStats) GetStatsJSON() (string, error) { return string(f), nil }

func TestGetStats(t *testing.T) {
	s, _ := newTestServer(t, &fakeSpeaker{})
	js, err := s.GetStats()
	require.Nil(t, err)
	assert.Equal(t, "{}", js)

	s, err2 := NewServer(&fakeSpeaker{}, fixedStats(`{"providers":{}}`))
	require.NoError(t, err2)
	js, err = s.GetStats()
	require.Nil(t, err)
	assert.Equal(t, `{"providers":{}}`, js)
}
