package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/fileops"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/types"
)

var providerChoices = []types.TTSProviderName{
	types.ProviderOpenAI,
	types.ProviderRealtime,
	types.ProviderCommand,
	types.ProviderMock,
}

func RunWizard() error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return runWizard(os.Stdin, os.Stdout, fileOps)
}

func runWizard(in io.Reader, out io.Writer, fileOps fileops.FileOps) error {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	bold.Fprintln(out, "\n🔊 Welcome to ttswrap Configuration Wizard!")
	fmt.Fprintln(out, "\nThis wizard will help you pick a speech provider and voice.")

	reader := bufio.NewReader(in)
	config := &types.Config{}

	cyan.Fprintln(out, "\nAvailable providers:")
	for i, p := range providerChoices {
		fmt.Fprintf(out, "  %d) %s\n", i+1, p)
	}
	provider, err := prompt(reader, out, "Provider", string(types.ProviderOpenAI))
	if err != nil {
		return err
	}
	provider = resolveProvider(provider)
	if provider == "" {
		return fmt.Errorf("unknown provider, choose one of %v", providerChoices)
	}
	config.TTS.Provider = provider

	switch types.TTSProviderName(provider) {
	case types.ProviderOpenAI, types.ProviderRealtime:
		key, err := prompt(reader, out, "OpenAI API key (leave empty to use $"+EnvOpenAIKey+")", "")
		if err != nil {
			return err
		}
		config.Keys.OpenAIKey = key
	case types.ProviderCommand:
		cmdLine, err := prompt(reader, out, "Synthesizer command line ({text} and {voice} are substituted)", "espeak-ng --stdout {text}")
		if err != nil {
			return err
		}
		config.TTS.Command.CommandLine = cmdLine

		output, err := prompt(reader, out, "Synthesizer output (pcm, wav, encoded, jsonl)", "wav")
		if err != nil {
			return err
		}
		config.TTS.Command.Output = output
	}

	defaultVoice := types.DefaultVoice
	switch types.TTSProviderName(provider) {
	case types.ProviderCommand:
		// the synthesizer's own default
		defaultVoice = ""
	case types.ProviderMock:
		defaultVoice = "tone"
	}

	voice, err := prompt(reader, out, "Voice", defaultVoice)
	if err != nil {
		return err
	}
	config.TTS.Voice = voice

	format, err := prompt(reader, out, "Output file format (wav, mp3, flac)", types.DefaultFormat)
	if err != nil {
		return err
	}
	parsed, err := audio.ParseFormat(format)
	if err != nil {
		return err
	}
	config.Output.Format = string(parsed)

	if err := Save(fileOps, config); err != nil {
		logger.Error("Failed to save config", err)
		return err
	}

	green.Fprintln(out, "\n✅ Configuration saved successfully!")
	fmt.Fprintf(out, "Provider: %s, voice: %s\n", config.TTS.Provider, voice)
	return nil
}

// prompt reads one answer, returning def for an empty line.
func prompt(reader *bufio.Reader, out io.Writer, question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		logger.Error("Failed to read input", err)
		return "", err
	}

	// Remove any control characters
	response = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, strings.TrimSpace(response))

	if response == "" {
		return def, nil
	}
	return response, nil
}

// resolveProvider accepts a provider name or its menu number.
func resolveProvider(answer string) string {
	answer = strings.ToLower(answer)
	for i, p := range providerChoices {
		if answer == string(p) || answer == fmt.Sprint(i+1) {
			return string(p)
		}
	}
	return ""
}
