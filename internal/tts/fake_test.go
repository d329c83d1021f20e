package tts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/willwade/tts-wrapper-sub000/internal/playback"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

// fakeBackend plays audio in real time without touching a device.
type fakeBackend struct {
	mu       sync.Mutex
	opened   int
	written  atomic.Int64
	released atomic.Int32
}

func (b *fakeBackend) Close() error {
	if b.released.Add(1) > 1 {
		return playback.ErrDeviceClosed
	}
	return nil
}

func (b *fakeBackend) NewOutput(sampleRate int) (playback.Output, error) {
	b.mu.Lock()
	b.opened++
	b.mu.Unlock()
	return &fakeOutput{rate: sampleRate, backend: b}, nil
}

func (b *fakeBackend) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

type fakeOutput struct {
	rate    int
	backend *fakeBackend
	closed  atomic.Bool
}

func (o *fakeOutput) Write(ctx context.Context, chunk []byte) error {
	if o.closed.Load() {
		return playback.ErrDeviceClosed
	}
	d := time.Duration(float64(len(chunk)) / float64(2*o.rate) * float64(time.Second))
	select {
	case <-time.After(d):
		o.backend.written.Add(int64(len(chunk)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *fakeOutput) Close() error {
	if o.closed.Swap(true) {
		return playback.ErrDeviceClosed
	}
	return nil
}

// stubProvider returns fixed audio and optional vendor timings.
type stubProvider struct {
	pcm     []byte
	rate    int
	timings []timing.RawTiming
	err     error
	delay   time.Duration

	mu    sync.Mutex
	props map[string]string
	calls int
}

func newStubProvider(seconds float64) *stubProvider {
	rate := 16000
	return &stubProvider{
		pcm:   make([]byte, int(seconds*float64(rate))*2),
		rate:  rate,
		props: make(map[string]string),
	}
}

func (p *stubProvider) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]byte(nil), p.pcm...), nil
}

func (p *stubProvider) WordTimings() []timing.RawTiming {
	return p.timings
}

func (p *stubProvider) GetVoices(context.Context) ([]Voice, error) {
	return []Voice{{ID: "stub", Name: "Stub"}}, nil
}

func (p *stubProvider) SetVoice(voiceID, lang string) error {
	if voiceID != "stub" {
		return ErrUnknownVoice
	}
	return nil
}

func (p *stubProvider) SetProperty(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props[name] = value
}

func (p *stubProvider) property(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props[name]
}

func (p *stubProvider) SampleRate() int { return p.rate }

func (p *stubProvider) Name() string { return "stub" }
