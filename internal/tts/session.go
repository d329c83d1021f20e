// Package tts exposes one session type over interchangeable speech backends,
// adding buffered playback, word timing and file output on top of any Provider.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/fileops"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/playback"
	"github.com/willwade/tts-wrapper-sub000/internal/scheduler"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

// Event names accepted by Connect.
type Event string

const (
	EventStart Event = "onStart"
	EventEnd   Event = "onEnd"
	EventWord  Event = "started-word"
)

// WordCallback receives each word as playback reaches it.
type WordCallback = scheduler.WordCallback

// Options configures a Session.
type Options struct {
	Backend        playback.Backend
	ChunkSize      int
	WordsPerMinute int
	// FileOps resolves relative output filenames; nil writes paths as given.
	FileOps fileops.FileOps
	Meter   *playback.LevelProcessor
	// Usage, if set, is told about every successful synthesis.
	Usage UsageRecorder
}

// UsageRecorder accumulates synthesis totals per provider.
type UsageRecorder interface {
	AddSynthesis(provider string, characters int, audioSeconds float64)
}

// StreamOptions tunes SpeakStreamed.
type StreamOptions struct {
	// SaveTo, when set, receives the audio once playback has finished.
	SaveTo string
	Format audio.Format
	// OnWord overrides the connected started-word callback for this call.
	OnWord WordCallback
}

// Session is a single-flight speech session: one loaded buffer, one
// playback stream and one timing schedule at a time.
type Session struct {
	provider Provider
	engine   *playback.Engine
	sched    *scheduler.Scheduler
	fileOps  fileops.FileOps
	usage    UsageRecorder
	wpm      int
	events   *eventHooks

	// flight is held for every synthesis and every stream start
	flight  sync.Mutex
	cleaned atomic.Bool

	mu         sync.Mutex
	timings    []timing.WordTiming
	properties map[string]string
}

// eventHooks holds the connected callbacks. The engine's onEnd hook points
// here rather than at the Session so an abandoned Session can be collected.
type eventHooks struct {
	mu      sync.Mutex
	onStart func()
	onEnd   func()
	onWord  WordCallback
}

// NewSession wraps provider. Call Cleanup when done with the session.
func NewSession(provider Provider, opts Options) *Session {
	wpm := opts.WordsPerMinute
	if wpm <= 0 {
		wpm = timing.DefaultWordsPerMinute
	}

	s := &Session{
		provider: provider,
		engine: playback.NewEngine(playback.Options{
			SampleRate: provider.SampleRate(),
			ChunkSize:  opts.ChunkSize,
			Backend:    opts.Backend,
			Meter:      opts.Meter,
		}),
		sched:      scheduler.New(),
		fileOps:    opts.FileOps,
		usage:      opts.Usage,
		wpm:        wpm,
		events:     &eventHooks{},
		properties: make(map[string]string),
	}
	events := s.events
	s.engine.OnStop(s.sched.Cancel)
	s.engine.SetOnEnd(func() { events.fire(EventEnd) })
	runtime.SetFinalizer(s, (*Session).release)
	return s
}

// release runs when a Session is collected without Cleanup.
func (s *Session) release() {
	if s.cleaned.Load() {
		return
	}
	logger.Warnf("Speech session for %s was not cleaned up, releasing audio device", s.provider.Name())
	if err := s.Cleanup(); err != nil {
		logger.Error("Failed to release abandoned session", err)
	}
}

// Provider returns the backend this session drives.
func (s *Session) Provider() Provider {
	return s.provider
}

func (s *Session) GetVoices(ctx context.Context) ([]Voice, error) {
	return s.provider.GetVoices(ctx)
}

func (s *Session) SetVoice(voiceID, lang string) error {
	return s.provider.SetVoice(voiceID, lang)
}

// SynthToBytes synthesizes text to raw PCM and replaces the session's timing
// schedule with the vendor's word boundaries, or an estimate when the vendor
// reports none. It fails with ErrSessionBusy while a stream is being
// synthesized or played.
func (s *Session) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !s.flight.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.flight.Unlock()

	if s.engine.Playing() {
		return nil, ErrSessionBusy
	}
	return s.synth(ctx, text)
}

// synth runs one provider synthesis. The caller holds flight.
func (s *Session) synth(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	pcm, err := s.provider.SynthToBytes(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s synthesis failed: %w", s.provider.Name(), err)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	timings, err := s.timingsFor(text, pcm)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.timings = timings
	s.mu.Unlock()

	if s.usage != nil {
		s.usage.AddSynthesis(s.provider.Name(), len(text), timing.DurationOf(len(pcm), s.provider.SampleRate()))
	}

	logger.Debugf("Synthesized %d bytes with %d word timings", len(pcm), len(timings))
	return pcm, nil
}

func (s *Session) timingsFor(text string, pcm []byte) ([]timing.WordTiming, error) {
	if tp, ok := s.provider.(TimingProvider); ok {
		if raw := tp.WordTimings(); len(raw) > 0 {
			total := timing.DurationOf(len(pcm), s.provider.SampleRate())
			return timing.Normalize(raw, total)
		}
	}
	return timing.Estimate(text, s.wpm), nil
}

// SynthToBytestream synthesizes text into an in-memory stream of the given
// container format (wav when empty).
func (s *Session) SynthToBytestream(ctx context.Context, text string, format audio.Format) (*bytes.Reader, error) {
	pcm, err := s.SynthToBytes(ctx, text)
	if err != nil {
		return nil, err
	}
	data, err := s.encode(pcm, format)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// SynthToFile synthesizes text and writes it to filename, returning the path written.
func (s *Session) SynthToFile(ctx context.Context, text, filename string, format audio.Format) (string, error) {
	if filename == "" {
		return "", errors.New("output filename cannot be empty")
	}
	pcm, err := s.SynthToBytes(ctx, text)
	if err != nil {
		return "", err
	}
	data, err := s.encode(pcm, format)
	if err != nil {
		return "", err
	}
	return s.save(filename, data)
}

func (s *Session) encode(pcm []byte, format audio.Format) ([]byte, error) {
	f, err := audio.ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	return audio.ConvertBytes(pcm, f, s.provider.SampleRate())
}

func (s *Session) save(filename string, data []byte) (string, error) {
	if s.fileOps != nil {
		return s.fileOps.SaveOutput(filename, data)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return filename, nil
}

// Speak synthesizes text and plays it to completion.
func (s *Session) Speak(ctx context.Context, text string) error {
	return s.SpeakStreamed(ctx, text, StreamOptions{})
}

// SpeakStreamed synthesizes text, streams it to the output device and blocks
// until playback finishes. Cancelling ctx stops playback.
func (s *Session) SpeakStreamed(ctx context.Context, text string, opts StreamOptions) error {
	onWord := opts.OnWord
	if onWord == nil {
		onWord = s.wordCallback()
	}

	pcm, err := s.startStream(ctx, text, onWord)
	if err != nil {
		return err
	}

	if err := s.engine.Wait(ctx); err != nil {
		if stopErr := s.Stop(); stopErr != nil {
			logger.Error("Failed to stop playback", stopErr)
		}
		return err
	}
	if err := s.engine.Err(); err != nil {
		return err
	}

	if opts.SaveTo != "" {
		data, err := s.encode(pcm, opts.Format)
		if err != nil {
			return err
		}
		path, err := s.save(opts.SaveTo, data)
		if err != nil {
			return err
		}
		format := opts.Format
		if format == "" {
			format = audio.FormatWAV
		}
		logger.Infof("Audio saved to %s in %s format", path, format)
	}
	return nil
}

// StartPlaybackWithCallbacks synthesizes text, starts playback and schedules
// cb for every word. It returns once playback has started. A nil cb falls
// back to the connected started-word callback, then to a logging callback.
func (s *Session) StartPlaybackWithCallbacks(ctx context.Context, text string, cb WordCallback) error {
	if cb == nil {
		cb = s.wordCallback()
	}
	if cb == nil {
		cb = defaultWordCallback
	}
	_, err := s.startStream(ctx, text, cb)
	return err
}

func (s *Session) startStream(ctx context.Context, text string, onWord WordCallback) ([]byte, error) {
	if !s.flight.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.flight.Unlock()

	if s.engine.Playing() {
		return nil, ErrSessionBusy
	}

	pcm, err := s.synth(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := s.LoadAudio(pcm); err != nil {
		return nil, err
	}

	s.events.fire(EventStart)

	s.sched.Cancel()
	start := time.Now()
	if onWord != nil {
		if err := s.sched.Schedule(start, s.Timings(), onWord); err != nil {
			return nil, err
		}
	}

	if err := s.engine.Play(0); err != nil {
		s.sched.Cancel()
		return nil, err
	}
	return pcm, nil
}

// LoadAudio replaces the playback buffer without starting playback.
func (s *Session) LoadAudio(pcm []byte) error {
	s.engine.SetSampleRate(s.provider.SampleRate())
	if err := s.engine.LoadAudio(pcm); err != nil {
		if errors.Is(err, playback.ErrBusy) {
			return ErrSessionBusy
		}
		return err
	}
	return nil
}

// Play starts or resumes playback of the loaded buffer. A positive duration
// blocks for at most that long.
func (s *Session) Play(duration time.Duration) error {
	return s.engine.Play(duration)
}

// Pause suspends playback; see playback.Engine.Pause for timed pauses.
func (s *Session) Pause(duration time.Duration) {
	s.engine.Pause(duration)
}

func (s *Session) Resume() {
	s.engine.Resume()
}

// Stop halts playback and cancels every pending word callback.
func (s *Session) Stop() error {
	return s.engine.Stop()
}

// Wait blocks until the current stream ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	return s.engine.Wait(ctx)
}

// Cleanup stops playback and releases the audio device and scheduler. The
// session cannot play again afterwards.
func (s *Session) Cleanup() error {
	s.cleaned.Store(true)
	runtime.SetFinalizer(s, nil)
	err := s.engine.Cleanup()
	s.sched.Close()
	return err
}

func (s *Session) Playing() bool {
	return s.engine.Playing()
}

func (s *Session) Paused() bool {
	return s.engine.Paused()
}

// SampleRate is the rate of the loaded buffer.
func (s *Session) SampleRate() int {
	return s.engine.SampleRate()
}

// Position returns the playback offset in bytes.
func (s *Session) Position() int {
	return s.engine.Position()
}

func (s *Session) State() playback.State {
	return s.engine.State()
}

// Levels streams output levels when the session was created with a meter.
func (s *Session) Levels() <-chan float64 {
	return s.engine.Levels()
}

// SetTimings normalizes vendor timings against the current audio duration
// and replaces the schedule.
func (s *Session) SetTimings(raw []timing.RawTiming) error {
	normalized, err := timing.Normalize(raw, s.AudioDuration())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.timings = normalized
	s.mu.Unlock()
	return nil
}

// Timings returns a copy of the current schedule.
func (s *Session) Timings() []timing.WordTiming {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]timing.WordTiming(nil), s.timings...)
}

// AudioDuration is the loaded buffer's length in seconds, or the end of the
// last timing when nothing is loaded.
func (s *Session) AudioDuration() float64 {
	if n := s.engine.Len(); n > 0 {
		return timing.DurationOf(n, s.engine.SampleRate())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return timing.LastEnd(s.timings)
}

// Connect registers the callback for an event. onStart and onEnd take a
// func(); started-word takes a WordCallback. A later registration replaces
// the earlier one, and nil clears it.
func (s *Session) Connect(event Event, callback interface{}) error {
	h := s.events
	h.mu.Lock()
	defer h.mu.Unlock()

	switch event {
	case EventStart, EventEnd:
		var fn func()
		if callback != nil {
			f, ok := callback.(func())
			if !ok {
				return fmt.Errorf("%w: %s wants func(), got %T", ErrCallbackType, event, callback)
			}
			fn = f
		}
		if event == EventStart {
			h.onStart = fn
		} else {
			h.onEnd = fn
		}
	case EventWord:
		switch f := callback.(type) {
		case nil:
			h.onWord = nil
		case WordCallback:
			h.onWord = f
		case func(string, float64, float64):
			h.onWord = f
		default:
			return fmt.Errorf("%w: %s wants func(word string, start, end float64), got %T", ErrCallbackType, event, callback)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return nil
}

func (s *Session) wordCallback() WordCallback {
	s.events.mu.Lock()
	defer s.events.mu.Unlock()
	return s.events.onWord
}

func (h *eventHooks) fire(event Event) {
	h.mu.Lock()
	var fn func()
	switch event {
	case EventStart:
		fn = h.onStart
	case EventEnd:
		fn = h.onEnd
	}
	h.mu.Unlock()

	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("Callback %s failed", event), fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// GetProperty returns a synthesis property such as rate, volume or pitch.
func (s *Session) GetProperty(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.properties[name]
	return v, ok
}

// SetProperty stores a free-form property value and hands it to the provider.
func (s *Session) SetProperty(name, value string) {
	s.mu.Lock()
	s.properties[name] = value
	s.mu.Unlock()
	s.provider.SetProperty(name, value)
}

func defaultWordCallback(word string, start, end float64) {
	logger.Infof("Word spoken: %s, Start: %.3fs, End: %.3fs", word, start, end)
}
