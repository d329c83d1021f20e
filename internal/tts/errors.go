package tts

import "errors"

var (
	// ErrUnknownEvent is returned by Connect for event names other than
	// onStart, onEnd and started-word.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrCallbackType is returned by Connect when the callback signature does not match the event.
	ErrCallbackType = errors.New("callback has the wrong signature for event")

	// ErrSessionBusy is returned when synthesis or streaming starts while a stream is still active.
	ErrSessionBusy = errors.New("session is busy, stop playback first")

	ErrEmptyText = errors.New("text cannot be empty")

	ErrUnknownVoice = errors.New("unknown voice")

	ErrMissingAPIKey = errors.New("API key is required")

	ErrUnsupportedProvider = errors.New("unsupported TTS provider")
)
