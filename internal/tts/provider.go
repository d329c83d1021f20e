package tts

import (
	"context"

	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

// Provider is the capability every speech backend implements. SynthToBytes
// returns headerless 16-bit little-endian mono PCM at SampleRate().
type Provider interface {
	SynthToBytes(ctx context.Context, text string) ([]byte, error)

	// GetVoices returns the voices the backend offers
	GetVoices(ctx context.Context) ([]Voice, error)

	// SetVoice selects the voice for subsequent synthesis; lang may be empty
	SetVoice(voiceID, lang string) error

	// SetProperty receives rate, volume and pitch updates from the session
	SetProperty(name, value string)

	SampleRate() int

	Name() string
}

// TimingProvider is implemented by backends that report word boundaries for
// the most recent synthesis.
type TimingProvider interface {
	WordTimings() []timing.RawTiming
}

// Voice describes one selectable voice
type Voice struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Gender        string   `json:"gender" yaml:"gender"`
	LanguageCodes []string `json:"language_codes" yaml:"language_codes"`
}

// SupportsLanguage reports whether lang (e.g. "en" or "en-US") is listed for the voice.
func (v Voice) SupportsLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	base := baseLanguage(lang)
	for _, code := range v.LanguageCodes {
		if code == lang || baseLanguage(code) == base {
			return true
		}
	}
	return false
}

func baseLanguage(code string) string {
	for i, r := range code {
		if r == '-' || r == '_' {
			return code[:i]
		}
	}
	return code
}
