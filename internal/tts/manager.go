package tts

import (
	"context"
	"fmt"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/types"
)

// NewProvider creates the provider named in config, applies the configured
// voice and properties, and returns it ready to synthesize.
func NewProvider(config types.TTSConfig, apiKey string) (Provider, error) {
	provider, err := createProvider(config, apiKey)
	if err != nil {
		return nil, err
	}

	if config.Voice != "" {
		if err := provider.SetVoice(config.Voice, config.Language); err != nil {
			return nil, fmt.Errorf("failed to set voice %s: %w", config.Voice, err)
		}
	}
	for name, value := range config.Properties {
		provider.SetProperty(name, value)
	}

	logger.Infof("Initialized TTS provider: %s", provider.Name())
	return provider, nil
}

// NewSessionFromConfig builds a provider from cfg and wraps it in a Session
// using the configured playback settings. Properties from the config are
// readable through Session.GetProperty.
func NewSessionFromConfig(cfg *types.Config, opts Options) (*Session, error) {
	ttsConfig := cfg.GetTTSConfig()
	provider, err := NewProvider(ttsConfig, cfg.Keys.OpenAIKey)
	if err != nil {
		return nil, err
	}

	playbackConfig := cfg.GetPlaybackConfig()
	if opts.ChunkSize == 0 {
		opts.ChunkSize = playbackConfig.ChunkSize
	}
	if opts.WordsPerMinute == 0 {
		opts.WordsPerMinute = playbackConfig.WordsPerMinute
	}

	session := NewSession(provider, opts)
	session.mu.Lock()
	for name, value := range ttsConfig.Properties {
		session.properties[name] = value
	}
	session.mu.Unlock()
	return session, nil
}

// ListVoices is a convenience for callers that only need the catalogue.
func ListVoices(ctx context.Context, config types.TTSConfig, apiKey string) ([]Voice, error) {
	provider, err := createProvider(config, apiKey)
	if err != nil {
		return nil, err
	}
	return provider.GetVoices(ctx)
}

// createProvider creates appropriate TTS provider based on configuration and API key
func createProvider(config types.TTSConfig, apiKey string) (Provider, error) {
	switch types.TTSProviderName(config.Provider) {
	case types.ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("%w for OpenAI TTS provider - configure it using the wizard", ErrMissingAPIKey)
		}
		return NewOpenAITTSProvider(apiKey, OpenAIConfig{
			Model: config.OpenAI.Model,
			Speed: config.OpenAI.Speed,
			Voice: config.Voice,
		}), nil

	case types.ProviderRealtime:
		// OpenAI Realtime API - lower latency, conversational voices
		if apiKey == "" {
			return nil, fmt.Errorf("%w for Realtime TTS provider - configure it using the wizard", ErrMissingAPIKey)
		}
		return NewRealtimeTTSProvider(apiKey, RealtimeConfig{
			Model:        config.Realtime.Model,
			Voice:        config.Voice,
			Instructions: config.Realtime.Instructions,
		}), nil

	case types.ProviderCommand:
		return NewCommandTTSProvider(CommandConfig{
			CommandLine:   config.Command.CommandLine,
			VoicesCommand: config.Command.VoicesCommand,
			SampleRate:    config.Command.SampleRate,
			Output:        config.Command.Output,
			Voice:         config.Voice,
		})

	case types.ProviderMock:
		return NewMockTTSProvider(), nil

	default:
		return nil, fmt.Errorf("%w: %s (supported: openai, realtime, command, mock)", ErrUnsupportedProvider, config.Provider)
	}
}
