// Package playback streams raw PCM buffers to an audio device with
// pause/resume/stop control.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

const (
	// DefaultChunkSize is the number of bytes handed to the device per write.
	DefaultChunkSize = 1024
	// DefaultSampleRate matches the most common vendor output rate.
	DefaultSampleRate = 22050
)

// State is the coarse playback state of an Engine.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures an Engine.
type Options struct {
	SampleRate int
	ChunkSize  int
	Backend    Backend
	// Meter receives every chunk written to the device, if set.
	Meter *LevelProcessor
}

// Engine owns one PCM buffer and at most one playback goroutine.
//
// All mutable state lives behind mu. While a stream is active the playback
// goroutine is the only writer of position.
type Engine struct {
	mu   sync.Mutex
	cond *sync.Cond

	sampleRate int
	chunkSize  int
	backend    Backend
	meter      *LevelProcessor

	audio    []byte
	position int
	state    State
	lastErr  error

	out    Output
	cancel context.CancelFunc
	done   chan struct{}

	pauseTimer *time.Timer
	pauseWake  chan struct{}

	onEnd     func()
	stopHooks []func()
	closed    bool
}

// NewEngine creates an idle engine.
func NewEngine(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize%2 != 0 {
		opts.ChunkSize++
	}

	e := &Engine{
		sampleRate: opts.SampleRate,
		chunkSize:  opts.ChunkSize,
		backend:    opts.Backend,
		meter:      opts.Meter,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// SetSampleRate changes the rate used for the next stream.
func (e *Engine) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	e.mu.Lock()
	e.sampleRate = rate
	e.mu.Unlock()
}

// SampleRate returns the rate used to open output streams.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

// SetOnEnd registers the callback fired once when a buffer plays to completion.
func (e *Engine) SetOnEnd(fn func()) {
	e.mu.Lock()
	e.onEnd = fn
	e.mu.Unlock()
}

// OnStop registers a hook run on every Stop, before the device is released.
func (e *Engine) OnStop(fn func()) {
	e.mu.Lock()
	e.stopHooks = append(e.stopHooks, fn)
	e.mu.Unlock()
}

// LoadAudio replaces the buffer and rewinds to the start. It does not start playback.
func (e *Engine) LoadAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}
	if len(pcm)%2 != 0 {
		logger.Warnf("PCM buffer has odd length %d, dropping trailing byte", len(pcm))
		pcm = pcm[:len(pcm)-1]
		if len(pcm) == 0 {
			return ErrEmptyAudio
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state == StatePlaying || e.state == StatePaused {
		return ErrBusy
	}

	e.audio = append(e.audio[:0:0], pcm...)
	e.position = 0
	e.state = StateIdle
	e.lastErr = nil
	return nil
}

// Play starts streaming the loaded buffer. If the engine is paused it resumes,
// and if it is already playing it does nothing. A positive duration blocks the
// caller for at most that long, returning early if playback ends.
func (e *Engine) Play(duration time.Duration) error {
	e.mu.Lock()

	switch e.state {
	case StatePlaying:
		e.mu.Unlock()
		return nil
	case StatePaused:
		e.resumeLocked()
		e.mu.Unlock()
		return nil
	}

	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if len(e.audio) == 0 {
		e.mu.Unlock()
		return ErrEmptyAudio
	}
	if e.backend == nil {
		e.mu.Unlock()
		return &DeviceError{Op: "open", Err: errors.New("no audio backend configured")}
	}

	out, err := e.backend.NewOutput(e.sampleRate)
	if err != nil {
		e.mu.Unlock()
		return &DeviceError{Op: "open", Err: err}
	}

	if e.position >= len(e.audio) {
		e.position = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.out = out
	e.cancel = cancel
	e.done = done
	e.state = StatePlaying
	e.lastErr = nil

	if e.meter != nil {
		e.meter.SetSampleRate(e.sampleRate)
	}

	logger.Debugf("Starting playback of %d bytes at %d Hz", len(e.audio), e.sampleRate)
	go e.run(ctx, out, done)
	e.mu.Unlock()

	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-done:
		}
	}

	return nil
}

// Wait blocks until the current stream ends or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, out Output, done chan struct{}) {
	finished := false
	defer func() {
		e.finish(ctx, out, finished)
		close(done)
	}()

	for {
		e.mu.Lock()
		for e.state == StatePaused {
			e.cond.Wait()
		}
		if e.state != StatePlaying {
			e.mu.Unlock()
			return
		}
		if e.position >= len(e.audio) {
			finished = true
			e.mu.Unlock()
			return
		}

		end := e.position + e.chunkSize
		if end > len(e.audio) {
			end = len(e.audio)
		}
		chunk := e.audio[e.position:end]
		e.mu.Unlock()

		if err := out.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Audio device write failed", err)
			e.mu.Lock()
			e.lastErr = &DeviceError{Op: "write", Err: err}
			if e.state == StatePlaying || e.state == StatePaused {
				e.state = StateStopped
			}
			e.mu.Unlock()
			return
		}

		if e.meter != nil {
			e.meter.Process(chunk)
		}

		e.mu.Lock()
		if e.state == StatePlaying || e.state == StatePaused {
			e.position = end
		}
		e.mu.Unlock()
	}
}

// finish runs on the playback goroutine after the loop exits. When the buffer
// was exhausted it waits for a buffering output to play its tail, then
// releases the device itself and fires onEnd.
func (e *Engine) finish(ctx context.Context, out Output, exhausted bool) {
	if exhausted {
		if d, ok := out.(Drainer); ok {
			if err := d.Drain(ctx); err != nil && ctx.Err() == nil && !IsTeardownError(err) {
				logger.Error("Failed to drain audio device", err)
			}
		}
	}

	e.mu.Lock()
	owned := e.out == out
	if owned {
		e.out = nil
		e.done = nil
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	if exhausted && e.state == StatePlaying {
		e.state = StateStopped
	} else {
		exhausted = false
	}
	onEnd := e.onEnd
	e.mu.Unlock()

	if owned {
		if err := closeOutput(out); err != nil {
			logger.Error("Failed to close audio device", err)
		}
	}

	if exhausted {
		logger.Debugf("Playback finished")
		if onEnd != nil {
			safeCall("onEnd", onEnd)
		}
	}
}

// Pause suspends playback. With a positive duration it arms a single
// auto-resume timer and blocks the caller until that timer fires, or until
// Resume, Stop or a newer Pause ends the wait. A previous auto-resume timer
// is always cancelled first.
func (e *Engine) Pause(duration time.Duration) {
	e.mu.Lock()
	if e.state != StatePlaying && e.state != StatePaused {
		e.mu.Unlock()
		return
	}

	e.cancelPauseTimerLocked()
	e.state = StatePaused
	e.holdOutputLocked(true)

	if duration <= 0 {
		e.mu.Unlock()
		return
	}

	wake := make(chan struct{})
	var timer *time.Timer
	timer = time.AfterFunc(duration, func() { e.autoResume(timer) })
	e.pauseTimer = timer
	e.pauseWake = wake
	e.mu.Unlock()

	logger.Debugf("Paused for %s", duration)
	<-wake
}

func (e *Engine) autoResume(timer *time.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseTimer != timer {
		return
	}
	e.pauseTimer = nil
	if e.pauseWake != nil {
		close(e.pauseWake)
		e.pauseWake = nil
	}
	if e.state == StatePaused {
		e.state = StatePlaying
		e.holdOutputLocked(false)
		e.cond.Broadcast()
		logger.Debugf("Auto-resumed playback")
	}
}

// Resume continues a paused stream and cancels any pending auto-resume.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.resumeLocked()
	e.mu.Unlock()
}

func (e *Engine) resumeLocked() {
	e.cancelPauseTimerLocked()
	if e.state == StatePaused {
		e.state = StatePlaying
		e.holdOutputLocked(false)
		e.cond.Broadcast()
	}
}

// holdOutputLocked stops or restarts audio already buffered by the output.
func (e *Engine) holdOutputLocked(paused bool) {
	if p, ok := e.out.(Pauser); ok {
		p.SetPaused(paused)
	}
}

func (e *Engine) cancelPauseTimerLocked() {
	if e.pauseTimer != nil {
		e.pauseTimer.Stop()
		e.pauseTimer = nil
	}
	if e.pauseWake != nil {
		close(e.pauseWake)
		e.pauseWake = nil
	}
}

// Stop halts playback, cancels timers, releases the device and rewinds.
// It is safe to call from any state and any number of times. Expected
// teardown races are logged and swallowed; other device errors are returned.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.cancelPauseTimerLocked()
	if e.state == StatePlaying || e.state == StatePaused {
		e.state = StateStopped
	}
	e.cond.Broadcast()

	hooks := append([]func(){}, e.stopHooks...)
	out := e.out
	e.out = nil
	done := e.done
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	for _, hook := range hooks {
		safeCall("stop hook", hook)
	}

	if cancel != nil {
		cancel()
	}

	var err error
	if out != nil {
		err = closeOutput(out)
	}

	if done != nil {
		<-done
	}

	e.mu.Lock()
	e.position = 0
	if e.done == done {
		e.done = nil
	}
	e.mu.Unlock()

	return err
}

// Cleanup stops playback and releases the audio subsystem. It is the terminal
// call for an engine and may be called more than once.
func (e *Engine) Cleanup() error {
	stopErr := e.Stop()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return stopErr
	}
	e.closed = true
	backend := e.backend
	e.audio = nil
	e.mu.Unlock()

	if closer, ok := backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			if IsTeardownError(err) {
				logger.Infof("Audio subsystem already released: %v", err)
			} else {
				return errors.Join(stopErr, &DeviceError{Op: "release", Err: err})
			}
		}
	}

	return stopErr
}

// closeOutput closes out, swallowing expected teardown races.
func closeOutput(out Output) error {
	if err := out.Close(); err != nil {
		if IsTeardownError(err) {
			logger.Infof("Ignoring audio device teardown error: %v", err)
			return nil
		}
		return &DeviceError{Op: "close", Err: err}
	}
	return nil
}

func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("Callback %s panicked", name), fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// Playing reports whether a stream is active (playing or paused).
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying || e.state == StatePaused
}

// Paused reports whether the active stream is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePaused
}

// PendingResume reports whether an auto-resume timer is armed.
func (e *Engine) PendingResume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseTimer != nil
}

// Position returns the byte offset of the next chunk to be written.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Len returns the size of the loaded buffer in bytes.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.audio)
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the device error that ended the last stream, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Duration returns the playing time of the loaded buffer.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(e.audio)) / float64(2*e.sampleRate) * float64(time.Second))
}

// Levels returns the meter's level stream, or nil when metering is off.
func (e *Engine) Levels() <-chan float64 {
	if e.meter == nil {
		return nil
	}
	return e.meter.LevelChan
}
