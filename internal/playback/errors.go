package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio is returned when LoadAudio receives no data.
	ErrEmptyAudio = errors.New("audio buffer is empty")

	// ErrBusy is returned when new audio is loaded while a stream is active.
	ErrBusy = errors.New("playback in progress, stop it before loading new audio")

	// ErrClosed is returned by operations on an engine after Cleanup.
	ErrClosed = errors.New("playback engine has been cleaned up")

	// ErrDeviceClosed reports an operation on an audio device that is already closed.
	ErrDeviceClosed = errors.New("audio device already closed")

	// ErrDeviceInternal reports a generic device failure raised while tearing a stream down.
	ErrDeviceInternal = errors.New("internal audio device error")
)

// DeviceError wraps a failure of the audio output device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsTeardownError reports whether err is an expected race while closing a
// device. These are logged and swallowed during Stop.
func IsTeardownError(err error) bool {
	return errors.Is(err, ErrDeviceClosed) || errors.Is(err, ErrDeviceInternal)
}
