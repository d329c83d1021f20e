package playback

import "context"

// Output is an open audio output stream accepting 16-bit little-endian mono PCM.
type Output interface {
	// Write blocks until the chunk has been handed to the device or ctx is done.
	// A buffering device may still be holding the chunk when Write returns.
	Write(ctx context.Context, chunk []byte) error

	// Close stops the stream and releases the device. Closing twice returns
	// an error matching ErrDeviceClosed.
	Close() error
}

// Drainer is implemented by outputs that buffer written audio. Drain blocks
// until everything written so far has been played, ctx is done or the output
// is closed.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Pauser is implemented by outputs that can hold back buffered audio while
// the engine is paused.
type Pauser interface {
	SetPaused(paused bool)
}

// Backend opens output streams. A backend that also implements io.Closer
// owns an audio subsystem handle released by Engine.Cleanup.
type Backend interface {
	NewOutput(sampleRate int) (Output, error)
}
