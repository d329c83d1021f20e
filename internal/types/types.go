package types

import "github.com/sashabaranov/go-openai"

type TTSProviderName string

const (
	ProviderOpenAI   TTSProviderName = "openai"
	ProviderRealtime TTSProviderName = "realtime"
	ProviderCommand  TTSProviderName = "command"
	ProviderMock     TTSProviderName = "mock"
)

// Keys holds vendor credentials
type Keys struct {
	OpenAIKey string `yaml:"openai_api_key"`
}

// TTSConfig holds configuration for Text-to-Speech
type TTSConfig struct {
	Provider   string            `yaml:"provider"`    // "openai", "realtime", "command", "mock"
	Voice      string            `yaml:"voice"`       // default voice to use
	Language   string            `yaml:"language"`    // default language code
	SampleRate int               `yaml:"sample_rate"` // PCM rate requested from the provider
	Properties map[string]string `yaml:"properties"`  // rate, volume, pitch
	OpenAI     TTSOpenAIConfig   `yaml:"openai"`
	Realtime   TTSRealtimeConfig `yaml:"realtime"`
	Command    TTSCommandConfig  `yaml:"command"`
}

// TTSOpenAIConfig holds OpenAI TTS specific configuration
type TTSOpenAIConfig struct {
	Model string  `yaml:"model"` // "tts-1" or "tts-1-hd"
	Speed float64 `yaml:"speed"` // 0.25-4.0, default 1.0
}

// TTSRealtimeConfig holds OpenAI Realtime API TTS specific configuration
type TTSRealtimeConfig struct {
	Model        string `yaml:"model"` // "gpt-4o-realtime-preview" or "gpt-4o-mini-realtime-preview"
	Instructions string `yaml:"instructions"`
}

// TTSCommandConfig describes a local synthesizer that writes audio to stdout.
// {text}, {voice}, {lang}, {rate}, {volume} and {pitch} in the command line
// are substituted before running.
type TTSCommandConfig struct {
	CommandLine   string `yaml:"command_line"`   // e.g. "espeak-ng -v {voice} --stdout {text}"
	VoicesCommand string `yaml:"voices_command"` // optional, one voice id per line
	SampleRate    int    `yaml:"sample_rate"`
	Output        string `yaml:"output"` // "pcm", "wav", "encoded" or "jsonl"
}

// PlaybackConfig holds audio streaming settings
type PlaybackConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	WordsPerMinute int `yaml:"words_per_minute"`
}

// OutputConfig controls where synthesized files are written
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // "wav", "mp3", "flac"
}

type DBusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	Keys     Keys           `yaml:"keys"`
	TTS      TTSConfig      `yaml:"tts"`
	Playback PlaybackConfig `yaml:"playback"`
	Output   OutputConfig   `yaml:"output"`
	DBus     DBusConfig     `yaml:"dbus"`
}

const (
	OpenAITTSModel   string = string(openai.TTSModel1)
	OpenAITTSModelHD string = string(openai.TTSModel1HD)

	RealtimeModel = "gpt-4o-realtime-preview"

	DefaultVoice      = "alloy"
	DefaultLanguage   = "en-US"
	DefaultSampleRate = 24000 // OpenAI pcm output and Realtime API both use 24kHz
	DefaultChunkSize  = 1024
	DefaultWPM        = 150
	DefaultFormat     = "wav"
)

// GetTTSConfig returns TTS configuration with defaults
func (c *Config) GetTTSConfig() TTSConfig {
	config := c.TTS

	if config.Provider == "" {
		config.Provider = string(ProviderOpenAI)
	}
	// command and mock providers keep their own default voice
	isOpenAI := config.Provider == string(ProviderOpenAI) || config.Provider == string(ProviderRealtime)
	if config.Voice == "" && isOpenAI {
		config.Voice = DefaultVoice
	}
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	if config.SampleRate == 0 {
		config.SampleRate = DefaultSampleRate
	}

	// OpenAI TTS defaults
	if config.OpenAI.Model == "" {
		config.OpenAI.Model = OpenAITTSModelHD
	}
	if config.OpenAI.Speed == 0 {
		config.OpenAI.Speed = 1.0
	}

	// Realtime API defaults
	if config.Realtime.Model == "" {
		config.Realtime.Model = RealtimeModel
	}

	if config.Command.SampleRate == 0 {
		config.Command.SampleRate = 22050
	}

	return config
}

// GetPlaybackConfig returns playback configuration with defaults
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	config := c.Playback
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.WordsPerMinute <= 0 {
		config.WordsPerMinute = DefaultWPM
	}
	return config
}

// GetOutputConfig returns output configuration with defaults
func (c *Config) GetOutputConfig() OutputConfig {
	config := c.Output
	if config.Format == "" {
		config.Format = DefaultFormat
	}
	return config
}
