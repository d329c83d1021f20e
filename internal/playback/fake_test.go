package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeBackend paces writes in real time so tests observe realistic progress.
type fakeBackend struct {
	mu       sync.Mutex
	outputs  []*fakeOutput
	closeErr error
	writeErr error
	openErr  error
	released atomic.Int32
}

func (b *fakeBackend) NewOutput(sampleRate int) (Output, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o := &fakeOutput{rate: sampleRate, closeErr: b.closeErr, writeErr: b.writeErr}
	b.outputs = append(b.outputs, o)
	return o, nil
}

func (b *fakeBackend) Close() error {
	if b.released.Add(1) > 1 {
		return ErrDeviceClosed
	}
	return nil
}

func (b *fakeBackend) last() *fakeOutput {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outputs) == 0 {
		return nil
	}
	return b.outputs[len(b.outputs)-1]
}

type fakeOutput struct {
	rate     int
	closeErr error
	writeErr error

	written atomic.Int64
	closes  atomic.Int32
}

func (o *fakeOutput) Write(ctx context.Context, chunk []byte) error {
	if o.closes.Load() > 0 {
		return ErrDeviceClosed
	}
	if o.writeErr != nil {
		return o.writeErr
	}
	d := time.Duration(float64(len(chunk)) / float64(2*o.rate) * float64(time.Second))
	select {
	case <-time.After(d):
		o.written.Add(int64(len(chunk)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *fakeOutput) Close() error {
	if o.closes.Add(1) > 1 {
		return ErrDeviceClosed
	}
	return o.closeErr
}

var errUnplugged = errors.New("device unplugged")

// pcm returns n bytes of a repeating 0x00 0x01 pattern.
func pcm(n int) []byte {
	buf := make([]byte, n)
	for i := 1; i < n; i += 2 {
		buf[i] = 0x01
	}
	return buf
}

// bufferingBackend accepts writes immediately and plays them back on its own
// clock, like a device with a deep queue.
type bufferingBackend struct {
	mu      sync.Mutex
	outputs []*bufferingOutput
}

func (b *bufferingBackend) NewOutput(sampleRate int) (Output, error) {
	o := &bufferingOutput{rate: sampleRate, closed: make(chan struct{})}
	go o.play()
	b.mu.Lock()
	b.outputs = append(b.outputs, o)
	b.mu.Unlock()
	return o, nil
}

func (b *bufferingBackend) last() *bufferingOutput {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outputs) == 0 {
		return nil
	}
	return b.outputs[len(b.outputs)-1]
}

type bufferingOutput struct {
	rate int

	queued        atomic.Int64
	played        atomic.Int64
	playedAtClose atomic.Int64
	paused        atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

const bufferingTick = 5 * time.Millisecond

func (o *bufferingOutput) play() {
	ticker := time.NewTicker(bufferingTick)
	defer ticker.Stop()
	step := int64(float64(2*o.rate) * bufferingTick.Seconds())
	for {
		select {
		case <-o.closed:
			return
		case <-ticker.C:
		}
		if o.paused.Load() {
			continue
		}
		left := o.queued.Load() - o.played.Load()
		if left > step {
			left = step
		}
		if left > 0 {
			o.played.Add(left)
		}
	}
}

func (o *bufferingOutput) Write(ctx context.Context, chunk []byte) error {
	select {
	case <-o.closed:
		return ErrDeviceClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	o.queued.Add(int64(len(chunk)))
	return nil
}

func (o *bufferingOutput) Drain(ctx context.Context) error {
	for o.played.Load() < o.queued.Load() {
		select {
		case <-o.closed:
			return ErrDeviceClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (o *bufferingOutput) SetPaused(paused bool) {
	o.paused.Store(paused)
}

func (o *bufferingOutput) Close() error {
	err := ErrDeviceClosed
	o.closeOnce.Do(func() {
		err = nil
		o.playedAtClose.Store(o.played.Load())
		close(o.closed)
	})
	return err
}
