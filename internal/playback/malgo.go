package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

const (
	outputChannels = 1
	// queued chunks between the writer and the device callback
	outputQueueDepth = 2
)

// MalgoBackend opens playback devices through miniaudio. The audio context is
// created on first use and shared by every output until Close.
type MalgoBackend struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// NewMalgoBackend creates a backend; no device is touched until NewOutput.
func NewMalgoBackend() *MalgoBackend {
	return &MalgoBackend{}
}

func (b *MalgoBackend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrDeviceClosed
	}
	if b.ctx != nil {
		return b.ctx, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("miniaudio: %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	b.ctx = ctx
	return ctx, nil
}

// NewOutput opens and starts a mono S16 playback device at sampleRate.
func (b *MalgoBackend) NewOutput(sampleRate int) (Output, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	o := newMalgoOutput()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = outputChannels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: o.fill,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	o.device = device
	logger.Debugf("🔊 Opened playback device at %d Hz", sampleRate)
	return o, nil
}

// Close releases the shared audio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrDeviceClosed
	}
	b.closed = true

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceInternal, err)
	}
	return nil
}

type malgoOutput struct {
	device *malgo.Device
	queue  chan []byte

	// pending is only touched from the device callback
	pending []byte
	// unplayed counts bytes written but not yet copied to the device
	unplayed atomic.Int64
	paused   atomic.Bool
	// drained is signalled by the callback when unplayed reaches zero
	drained chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newMalgoOutput() *malgoOutput {
	return &malgoOutput{
		queue:   make(chan []byte, outputQueueDepth),
		drained: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (o *malgoOutput) Write(ctx context.Context, chunk []byte) error {
	select {
	case <-o.closed:
		return ErrDeviceClosed
	default:
	}

	buf := append([]byte(nil), chunk...)
	o.unplayed.Add(int64(len(buf)))
	select {
	case o.queue <- buf:
		return nil
	case <-o.closed:
		o.unplayed.Add(-int64(len(buf)))
		return ErrDeviceClosed
	case <-ctx.Done():
		o.unplayed.Add(-int64(len(buf)))
		return ctx.Err()
	}
}

func (o *malgoOutput) Drain(ctx context.Context) error {
	for o.unplayed.Load() > 0 {
		select {
		case <-o.drained:
		case <-o.closed:
			return ErrDeviceClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *malgoOutput) SetPaused(paused bool) {
	o.paused.Store(paused)
}

// fill is the device data callback; it never blocks and pads with silence.
func (o *malgoOutput) fill(outputSamples, _ []byte, _ uint32) {
	n := 0
	for n < len(outputSamples) && !o.paused.Load() {
		if len(o.pending) == 0 {
			select {
			case next := <-o.queue:
				o.pending = next
			default:
			}
			if len(o.pending) == 0 {
				break
			}
		}
		copied := copy(outputSamples[n:], o.pending)
		o.pending = o.pending[copied:]
		n += copied
	}
	if n > 0 && o.unplayed.Add(-int64(n)) <= 0 {
		select {
		case o.drained <- struct{}{}:
		default:
		}
	}
	for i := n; i < len(outputSamples); i++ {
		outputSamples[i] = 0
	}
}

func (o *malgoOutput) Close() error {
	err := ErrDeviceClosed
	o.closeOnce.Do(func() {
		err = nil
		close(o.closed)
		if stopErr := o.device.Stop(); stopErr != nil {
			err = fmt.Errorf("%w: %v", ErrDeviceInternal, stopErr)
		}
		o.device.Uninit()
	})
	return err
}
