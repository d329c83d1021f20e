package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

// Output modes for a synthesizer command's stdout
const (
	CommandOutputPCM     = "pcm"     // headerless s16le mono at SampleRate
	CommandOutputWAV     = "wav"     // a WAV file; the header's rate wins
	CommandOutputEncoded = "encoded" // any container, decoded through ffmpeg
	CommandOutputJSONL   = "jsonl"   // {"pcm_base64": ..., "words": [...], "final": bool} per line
)

// CommandConfig describes a local synthesizer process such as espeak-ng or piper
type CommandConfig struct {
	// CommandLine is parsed with shell quoting rules. {text}, {voice}, {lang},
	// {rate}, {volume} and {pitch} are substituted per argument. Without a
	// {text} placeholder the text is written to stdin.
	CommandLine   string `yaml:"command_line"`
	VoicesCommand string `yaml:"voices_command"`
	SampleRate    int    `yaml:"sample_rate"`
	Output        string `yaml:"output"`
	Voice         string `yaml:"voice"`
}

// CommandTTSProvider implements Provider by running an external synthesizer
type CommandTTSProvider struct {
	args       []string
	voicesArgs []string
	config     CommandConfig

	mu         sync.Mutex
	voice      string
	lang       string
	properties map[string]string
	sampleRate int
	timings    []timing.RawTiming
}

type commandChunk struct {
	PCMBase64 string            `json:"pcm_base64"`
	Words     []json.RawMessage `json:"words"`
	Final     bool              `json:"final"`
}

// NewCommandTTSProvider parses the configured command lines
func NewCommandTTSProvider(config CommandConfig) (*CommandTTSProvider, error) {
	args, err := parseCommand(config.CommandLine)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}

	var voicesArgs []string
	if config.VoicesCommand != "" {
		voicesArgs, err = parseCommand(config.VoicesCommand)
		if err != nil {
			return nil, fmt.Errorf("parse voices command: %w", err)
		}
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 22050
	}
	switch config.Output {
	case "":
		config.Output = CommandOutputPCM
	case CommandOutputPCM, CommandOutputWAV, CommandOutputEncoded, CommandOutputJSONL:
	default:
		return nil, fmt.Errorf("unknown command output mode %q", config.Output)
	}

	return &CommandTTSProvider{
		args:       args,
		voicesArgs: voicesArgs,
		config:     config,
		voice:      config.Voice,
		properties: make(map[string]string),
		sampleRate: config.SampleRate,
	}, nil
}

func parseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	return parser.Parse(command)
}

func (p *CommandTTSProvider) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	replacer := strings.NewReplacer(
		"{text}", text,
		"{voice}", p.voice,
		"{lang}", p.lang,
		"{rate}", p.properties["rate"],
		"{volume}", p.properties["volume"],
		"{pitch}", p.properties["pitch"],
	)
	p.timings = nil
	p.mu.Unlock()

	args, usesText := substitute(p.args, replacer)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if !usesText {
		cmd.Stdin = strings.NewReader(text)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debugf("Running synthesizer %s", args[0])
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("synthesizer %s failed: %w (%s)", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return p.decode(stdout.Bytes())
}

// substitute fills placeholders inside each argument so that text with
// spaces stays a single argument.
func substitute(template []string, replacer *strings.Replacer) ([]string, bool) {
	usesText := false
	args := make([]string, len(template))
	for i, arg := range template {
		if strings.Contains(arg, "{text}") {
			usesText = true
		}
		args[i] = replacer.Replace(arg)
	}
	return args, usesText
}

func (p *CommandTTSProvider) decode(out []byte) ([]byte, error) {
	switch p.config.Output {
	case CommandOutputWAV:
		pcm, rate, err := audio.DecodeWAV(out)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.sampleRate = rate
		p.mu.Unlock()
		return pcm, nil
	case CommandOutputEncoded:
		return audio.DecodeToPCM(out, p.config.SampleRate)
	case CommandOutputJSONL:
		return p.decodeJSONL(out)
	default:
		return out, nil
	}
}

func (p *CommandTTSProvider) decodeJSONL(out []byte) ([]byte, error) {
	var pcm []byte
	var timings []timing.RawTiming

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk commandChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("invalid synthesizer output line: %w", err)
		}
		data, err := base64.StdEncoding.DecodeString(chunk.PCMBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid pcm_base64: %w", err)
		}
		pcm = append(pcm, data...)

		for _, w := range chunk.Words {
			rt, err := parseRawTiming(w)
			if err != nil {
				return nil, err
			}
			timings = append(timings, rt)
		}
		if chunk.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.timings = timings
	p.mu.Unlock()
	return pcm, nil
}

// parseRawTiming reads [start, word] or [start, end, word]. Other arities are
// kept as-is and rejected later by timing.Normalize.
func parseRawTiming(data json.RawMessage) (timing.RawTiming, error) {
	var fields []interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return timing.RawTiming{}, fmt.Errorf("%w: %s", timing.ErrInvalidTimingFormat, string(data))
	}
	if len(fields) == 0 {
		return timing.RawTiming{}, fmt.Errorf("%w: empty entry", timing.ErrInvalidTimingFormat)
	}

	word, ok := fields[len(fields)-1].(string)
	if !ok {
		return timing.RawTiming{}, fmt.Errorf("%w: last element must be the word: %s", timing.ErrInvalidTimingFormat, string(data))
	}

	times := make([]float64, 0, len(fields)-1)
	for _, f := range fields[:len(fields)-1] {
		v, ok := f.(float64)
		if !ok {
			return timing.RawTiming{}, fmt.Errorf("%w: non-numeric time in %s", timing.ErrInvalidTimingFormat, string(data))
		}
		times = append(times, v)
	}
	return timing.RawTiming{Times: times, Word: word}, nil
}

// WordTimings returns the boundaries reported by a jsonl synthesizer
func (p *CommandTTSProvider) WordTimings() []timing.RawTiming {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]timing.RawTiming(nil), p.timings...)
}

// GetVoices runs the voices command; each non-empty output line is
// "<id> [name...]". Without a voices command only the configured voice is listed.
func (p *CommandTTSProvider) GetVoices(ctx context.Context) ([]Voice, error) {
	if len(p.voicesArgs) == 0 {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.voice == "" {
			return nil, nil
		}
		return []Voice{{ID: p.voice, Name: p.voice}}, nil
	}

	out, err := exec.CommandContext(ctx, p.voicesArgs[0], p.voicesArgs[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("voices command failed: %w", err)
	}

	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		voices = append(voices, Voice{ID: fields[0], Name: name})
	}
	return voices, scanner.Err()
}

func (p *CommandTTSProvider) SetVoice(voiceID, lang string) error {
	if voiceID == "" {
		return fmt.Errorf("%w: empty voice id", ErrUnknownVoice)
	}
	p.mu.Lock()
	p.voice = voiceID
	p.lang = lang
	p.mu.Unlock()
	return nil
}

func (p *CommandTTSProvider) SetProperty(name, value string) {
	p.mu.Lock()
	p.properties[name] = value
	p.mu.Unlock()
}

func (p *CommandTTSProvider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate
}

func (p *CommandTTSProvider) Name() string {
	return "command:" + p.args[0]
}
