package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/willwade/tts-wrapper-sub000/internal/fileops"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	configFilename = "ttswrap.yaml"

	// EnvOpenAIKey overrides keys.openai_api_key when set
	EnvOpenAIKey = "OPENAI_API_KEY"
)

func LoadConfig() (*types.Config, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return Load(fileOps)
}

// Load reads the config through fileOps. It returns nil, nil when no config
// file exists yet.
func Load(fileOps fileops.FileOps) (*types.Config, error) {
	if err := fileOps.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := fileOps.LoadConfig(configFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config types.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)
	return &config, nil
}

// LoadOrDefault returns the stored config, or an empty one (all defaults) if none exists.
func LoadOrDefault(fileOps fileops.FileOps) (*types.Config, error) {
	cfg, err := Load(fileOps)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &types.Config{}
		applyEnv(cfg)
	}
	return cfg, nil
}

func applyEnv(config *types.Config) {
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		config.Keys.OpenAIKey = key
	}
}

func SaveConfig(config *types.Config) error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return Save(fileOps, config)
}

// Save merges config into the stored one and writes the result.
func Save(fileOps fileops.FileOps, config *types.Config) error {
	// Try to load existing config first
	existingConfig, err := Load(fileOps)
	if err != nil {
		// Just log the error but continue with new config
		logger.Warnf("Failed to load existing config: %v", err)
	} else if existingConfig != nil {
		mergeConfigs(existingConfig, config)
		config = existingConfig
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileOps.SaveConfig(configFilename, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// mergeConfigs merges the sourceConfig into targetConfig, preserving existing values in targetConfig
// that are not explicitly set in sourceConfig
func mergeConfigs(targetConfig, sourceConfig *types.Config) {
	if sourceConfig.Keys.OpenAIKey != "" {
		targetConfig.Keys.OpenAIKey = sourceConfig.Keys.OpenAIKey
	}

	// Update TTS settings if set
	src, dst := &sourceConfig.TTS, &targetConfig.TTS
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Voice != "" {
		dst.Voice = src.Voice
	}
	if src.Language != "" {
		dst.Language = src.Language
	}
	if src.SampleRate != 0 {
		dst.SampleRate = src.SampleRate
	}
	for name, value := range src.Properties {
		if dst.Properties == nil {
			dst.Properties = make(map[string]string)
		}
		dst.Properties[name] = value
	}
	if src.OpenAI.Model != "" {
		dst.OpenAI.Model = src.OpenAI.Model
	}
	if src.OpenAI.Speed != 0 {
		dst.OpenAI.Speed = src.OpenAI.Speed
	}
	if src.Realtime.Model != "" {
		dst.Realtime.Model = src.Realtime.Model
	}
	if src.Realtime.Instructions != "" {
		dst.Realtime.Instructions = src.Realtime.Instructions
	}
	if src.Command.CommandLine != "" {
		dst.Command.CommandLine = src.Command.CommandLine
	}
	if src.Command.VoicesCommand != "" {
		dst.Command.VoicesCommand = src.Command.VoicesCommand
	}
	if src.Command.SampleRate != 0 {
		dst.Command.SampleRate = src.Command.SampleRate
	}
	if src.Command.Output != "" {
		dst.Command.Output = src.Command.Output
	}

	if sourceConfig.Playback.ChunkSize != 0 {
		targetConfig.Playback.ChunkSize = sourceConfig.Playback.ChunkSize
	}
	if sourceConfig.Playback.WordsPerMinute != 0 {
		targetConfig.Playback.WordsPerMinute = sourceConfig.Playback.WordsPerMinute
	}

	if sourceConfig.Output.Dir != "" {
		targetConfig.Output.Dir = sourceConfig.Output.Dir
	}
	if sourceConfig.Output.Format != "" {
		targetConfig.Output.Format = sourceConfig.Output.Format
	}

	if sourceConfig.DBus.Enabled {
		targetConfig.DBus.Enabled = true
	}
}
