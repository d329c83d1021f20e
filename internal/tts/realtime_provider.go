package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

const (
	// OpenAI Realtime API streams 24kHz PCM16
	realtimeSampleRate = 24000

	realtimeTimeout     = 30 * time.Second
	realtimeReadTimeout = 5 * time.Second

	defaultRealtimeInstructions = "You are a text-to-speech system. Read the text inside the user message aloud exactly as written. Do not add any commentary or explanation."
)

var realtimeVoiceIDs = []struct{ id, gender string }{
	{"alloy", "Neutral"},
	{"ash", "Male"},
	{"ballad", "Male"},
	{"coral", "Female"},
	{"echo", "Male"},
	{"sage", "Neutral"},
	{"shimmer", "Female"},
	{"verse", "Male"},
}

// RealtimeTTSProvider implements Provider using OpenAI Realtime API
type RealtimeTTSProvider struct {
	apiKey string
	config RealtimeConfig

	mu      sync.Mutex
	voice   string
	timings []timing.RawTiming
}

// RealtimeConfig holds Realtime API TTS configuration
type RealtimeConfig struct {
	Model        string `yaml:"model"` // "gpt-4o-realtime-preview" or "gpt-4o-mini-realtime-preview"
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`
}

// NewRealtimeTTSProvider creates a new Realtime TTS provider
func NewRealtimeTTSProvider(apiKey string, config RealtimeConfig) *RealtimeTTSProvider {
	// Set defaults
	if config.Model == "" {
		config.Model = "gpt-4o-realtime-preview"
	}
	if config.Voice == "" {
		config.Voice = "alloy"
	}
	if config.Instructions == "" {
		config.Instructions = defaultRealtimeInstructions
	}

	return &RealtimeTTSProvider{
		apiKey: apiKey,
		config: config,
		voice:  config.Voice,
	}
}

// SynthToBytes collects the PCM16 audio deltas of one model response
func (p *RealtimeTTSProvider) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	voice := p.voice
	p.timings = nil
	p.mu.Unlock()

	if IsSSML(text) {
		text = StripSSML(text)
	}

	logger.Infof("Generating Realtime TTS for text (length: %d chars) with voice: %s", len(text), voice)

	client := openairt.NewClient(p.apiKey)

	conn, err := client.Connect(ctx, openairt.WithModel(p.config.Model))
	if err != nil {
		logger.Error("Failed to connect to Realtime API", err)
		return nil, fmt.Errorf("realtime API connection failed: %w", err)
	}
	defer conn.Close()

	// Update session to support text input and audio output
	err = conn.SendMessage(ctx, &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Voice:             openairt.Voice(voice),
			OutputAudioFormat: openairt.AudioFormatPcm16,
			Instructions:      p.config.Instructions,
		},
	})
	if err != nil {
		logger.Error("Failed to update session", err)
		return nil, fmt.Errorf("session update failed: %w", err)
	}

	err = conn.SendMessage(ctx, &openairt.ConversationItemCreateEvent{
		Item: openairt.MessageItem{
			Type: openairt.MessageItemTypeMessage,
			Role: openairt.MessageRoleUser,
			Content: []openairt.MessageContentPart{
				{
					Type: openairt.MessageContentTypeInputText,
					Text: text,
				},
			},
		},
	})
	if err != nil {
		logger.Error("Failed to create conversation item", err)
		return nil, fmt.Errorf("conversation item creation failed: %w", err)
	}

	// Request response with audio and text (API requires both)
	err = conn.SendMessage(ctx, &openairt.ResponseCreateEvent{
		Response: openairt.ResponseCreateParams{
			Modalities:        []openairt.Modality{openairt.ModalityAudio, openairt.ModalityText},
			Voice:             openairt.Voice(voice),
			OutputAudioFormat: openairt.AudioFormatPcm16,
		},
	})
	if err != nil {
		logger.Error("Failed to create response", err)
		return nil, fmt.Errorf("response creation failed: %w", err)
	}

	return p.collectAudio(ctx, conn)
}

func (p *RealtimeTTSProvider) collectAudio(ctx context.Context, conn *openairt.Conn) ([]byte, error) {
	var audioData []byte
	var transcript strings.Builder

	timeout := time.NewTimer(realtimeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-timeout.C:
			return nil, fmt.Errorf("timeout waiting for audio response")
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			msgCtx, cancel := context.WithTimeout(ctx, realtimeReadTimeout)
			event, err := conn.ReadMessage(msgCtx)
			cancel()

			if err != nil {
				logger.Error("Failed to read message", err)
				return nil, fmt.Errorf("message read failed: %w", err)
			}

			switch event.ServerEventType() {
			case openairt.ServerEventTypeResponseAudioDelta:
				deltaEvent := event.(openairt.ResponseAudioDeltaEvent)

				audioChunk, err := base64.StdEncoding.DecodeString(deltaEvent.Delta)
				if err != nil {
					logger.Error("Failed to decode audio delta", err)
					continue
				}
				audioData = append(audioData, audioChunk...)

			case openairt.ServerEventTypeResponseDone:
				logger.Infof("Audio generation completed, total size: %d bytes", len(audioData))
				if len(audioData) == 0 {
					return nil, fmt.Errorf("no audio data received")
				}
				seconds := float64(len(audioData)) / float64(2*realtimeSampleRate)
				p.mu.Lock()
				p.timings = spreadTranscript(transcript.String(), seconds)
				p.mu.Unlock()
				return audioData, nil

			case openairt.ServerEventTypeResponseAudioTranscriptDelta:
				transcript.WriteString(event.(openairt.ResponseAudioTranscriptDeltaEvent).Delta)

			case openairt.ServerEventTypeError:
				errorEvent := event.(openairt.ErrorEvent)
				logger.Error("Realtime API error", fmt.Errorf("%s: %s", errorEvent.Error.Type, errorEvent.Error.Message))
				return nil, fmt.Errorf("realtime API error: %s", errorEvent.Error.Message)

			default:
				logger.Debugf("Received event: %s", event.ServerEventType())
			}
		}
	}
}

// WordTimings returns the transcript of the last response as (start, word)
// pairs. The API reports no word boundaries, so starts are spread over the
// audio in proportion to word length.
func (p *RealtimeTTSProvider) WordTimings() []timing.RawTiming {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]timing.RawTiming(nil), p.timings...)
}

func spreadTranscript(transcript string, seconds float64) []timing.RawTiming {
	words := strings.Fields(transcript)
	if len(words) == 0 || seconds <= 0 {
		return nil
	}

	total := 0
	for _, w := range words {
		total += len([]rune(w))
	}

	timings := make([]timing.RawTiming, 0, len(words))
	offset := 0
	for _, w := range words {
		timings = append(timings, timing.Pair(seconds*float64(offset)/float64(total), w))
		offset += len([]rune(w))
	}
	return timings
}

// GetVoices returns the voices available to the Realtime API
func (p *RealtimeTTSProvider) GetVoices(context.Context) ([]Voice, error) {
	return realtimeVoices(), nil
}

func realtimeVoices() []Voice {
	voices := make([]Voice, len(realtimeVoiceIDs))
	for i, v := range realtimeVoiceIDs {
		voices[i] = Voice{
			ID:            v.id,
			Name:          v.id,
			Gender:        v.gender,
			LanguageCodes: openAILanguages,
		}
	}
	return voices
}

func (p *RealtimeTTSProvider) SetVoice(voiceID, lang string) error {
	if err := validateVoice(realtimeVoices(), voiceID, lang); err != nil {
		return err
	}
	p.mu.Lock()
	p.voice = voiceID
	p.mu.Unlock()
	return nil
}

// SetProperty is a no-op: the Realtime API has no prosody controls.
func (p *RealtimeTTSProvider) SetProperty(name, value string) {
	logger.Debugf("Realtime TTS ignores property %s=%s", name, value)
}

func (p *RealtimeTTSProvider) SampleRate() int {
	return realtimeSampleRate
}

func (p *RealtimeTTSProvider) Name() string {
	return "OpenAI Realtime API"
}
