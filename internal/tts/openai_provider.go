package tts

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

// openAISampleRate is the rate of the API's "pcm" response format
const openAISampleRate = 24000

// openAILanguages are the languages OpenAI voices speak (Whisper coverage)
var openAILanguages = []string{
	"af", "ar", "hy", "az", "be", "bs", "bg", "ca", "zh", "hr", "cs", "da", "nl", "en", "et",
	"fi", "fr", "gl", "de", "el", "he", "hi", "hu", "is", "id", "it", "ja", "kn", "kk", "ko",
	"lv", "lt", "mk", "ms", "mr", "mi", "ne", "no", "fa", "pl", "pt", "ro", "ru", "sr", "sk",
	"sl", "es", "sw", "sv", "tl", "ta", "th", "tr", "uk", "ur", "vi", "cy",
}

func openAIVoices() []Voice {
	voices := []struct{ id, gender string }{
		{"alloy", "Neutral"},
		{"ash", "Male"},
		{"ballad", "Male"},
		{"coral", "Female"},
		{"echo", "Male"},
		{"fable", "Female"},
		{"onyx", "Male"},
		{"nova", "Female"},
		{"sage", "Neutral"},
		{"shimmer", "Female"},
	}

	out := make([]Voice, len(voices))
	for i, v := range voices {
		out[i] = Voice{
			ID:            v.id,
			Name:          strings.ToUpper(v.id[:1]) + v.id[1:],
			Gender:        v.gender,
			LanguageCodes: openAILanguages,
		}
	}
	return out
}

// rateSpeeds maps SSML-style rate words to OpenAI speed multipliers
var rateSpeeds = map[string]float64{
	"x-slow": 0.5,
	"slow":   0.75,
	"medium": 1.0,
	"fast":   1.25,
	"x-fast": 1.5,
}

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAITTSProvider implements Provider for the OpenAI speech endpoint
type OpenAITTSProvider struct {
	client speechClient
	config OpenAIConfig

	mu    sync.Mutex
	voice string
	speed float64
}

// OpenAIConfig holds OpenAI TTS configuration
type OpenAIConfig struct {
	Model string  `yaml:"model"` // "tts-1" or "tts-1-hd"
	Speed float64 `yaml:"speed"` // 0.25-4.0, default 1.0
	Voice string  `yaml:"voice"`
	// BaseURL overrides the API endpoint, e.g. for a proxy
	BaseURL string `yaml:"base_url"`
}

// NewOpenAITTSProvider creates a new OpenAI TTS provider
func NewOpenAITTSProvider(apiKey string, config OpenAIConfig) *OpenAITTSProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return newOpenAIProvider(openai.NewClientWithConfig(clientConfig), config)
}

func newOpenAIProvider(client speechClient, config OpenAIConfig) *OpenAITTSProvider {
	// Set defaults
	if config.Model == "" {
		config.Model = string(openai.TTSModel1HD)
	}
	if config.Speed == 0 {
		config.Speed = 1.0
	}
	if config.Voice == "" {
		config.Voice = "alloy"
	}

	return &OpenAITTSProvider{
		client: client,
		config: config,
		voice:  config.Voice,
		speed:  config.Speed,
	}
}

// SynthToBytes requests headerless 24kHz PCM from the API
func (p *OpenAITTSProvider) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	voice, speed := p.voice, p.speed
	p.mu.Unlock()

	if IsSSML(text) {
		// the speech endpoint reads markup aloud
		text = StripSSML(text)
	}

	logger.Infof("Generating TTS for text (length: %d chars) with voice: %s", len(text), voice)

	response, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		Speed:          speed,
		ResponseFormat: openai.SpeechResponseFormat("pcm"),
	})
	if err != nil {
		logger.Error("OpenAI TTS API error", err)
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer response.Close()

	audioData, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	// proxies sometimes answer with a WAV container despite the pcm request
	if audio.IsWAV(audioData) {
		audioData = audio.StripWAVHeader(audioData)
	}

	logger.Infof("Generated %d bytes of pcm audio (%s)", len(audioData), estimateFileSize(len(audioData)))
	return audioData, nil
}

// GetVoices returns the fixed OpenAI voice catalogue
func (p *OpenAITTSProvider) GetVoices(context.Context) ([]Voice, error) {
	return openAIVoices(), nil
}

// SetVoice selects one of the catalogue voices; lang is informational only
func (p *OpenAITTSProvider) SetVoice(voiceID, lang string) error {
	if err := validateVoice(openAIVoices(), voiceID, lang); err != nil {
		return err
	}
	p.mu.Lock()
	p.voice = voiceID
	p.mu.Unlock()
	logger.Debugf("Set OpenAI voice to %s", voiceID)
	return nil
}

// SetProperty maps "rate" onto the API speed parameter. Volume and pitch
// have no API equivalent.
func (p *OpenAITTSProvider) SetProperty(name, value string) {
	if name != "rate" {
		logger.Debugf("OpenAI TTS ignores property %s", name)
		return
	}

	speed, ok := parseSpeed(value)
	if !ok {
		logger.Warnf("Unsupported rate %q for OpenAI TTS, keeping current speed", value)
		return
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
}

func (p *OpenAITTSProvider) SampleRate() int {
	return openAISampleRate
}

func (p *OpenAITTSProvider) Name() string {
	return "OpenAI TTS"
}

func parseSpeed(value string) (float64, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if speed, ok := rateSpeeds[value]; ok {
		return speed, true
	}
	speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
	if err != nil || speed < 0.25 || speed > 4.0 {
		return 0, false
	}
	return speed, true
}

func validateVoice(voices []Voice, voiceID, lang string) error {
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		if v.ID == voiceID {
			if !v.SupportsLanguage(lang) {
				return fmt.Errorf("%w: %s does not speak %s", ErrUnknownVoice, voiceID, lang)
			}
			return nil
		}
		ids = append(ids, v.ID)
	}
	return fmt.Errorf("%w: %s (available: %s)", ErrUnknownVoice, voiceID, strings.Join(ids, ", "))
}

// estimateFileSize provides human-readable size estimate
func estimateFileSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
