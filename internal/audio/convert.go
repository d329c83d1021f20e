// Package audio converts raw 16-bit mono PCM into container formats.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

// Format is an output container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

const (
	bitDepth     = 16
	channels     = 1
	wavPCMFormat = 1
)

var (
	// ErrUnsupportedFormat is returned for formats other than wav, mp3 and flac.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	ErrFFmpegNotInstalled = errors.New("ffmpeg is not installed")
)

func init() {
	ffmpeg.LogCompiledCommand = false
}

// ParseFormat maps a user supplied name to a Format. An empty name means wav.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))); f {
	case "":
		return FormatWAV, nil
	case FormatWAV, FormatMP3, FormatFLAC:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// CheckFFmpeg reports whether the ffmpeg binary is on PATH.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFFmpegNotInstalled
	}
	return nil
}

// Convert encodes samples into the requested format.
func Convert(samples []int16, format Format, sampleRate int) ([]byte, error) {
	if format == "" {
		format = FormatWAV
	}
	switch format {
	case FormatWAV:
		return EncodeWAV(samples, sampleRate)
	case FormatMP3, FormatFLAC:
		wavData, err := EncodeWAV(samples, sampleRate)
		if err != nil {
			return nil, err
		}
		return transcode(wavData, format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ConvertBytes is Convert for little-endian PCM bytes.
func ConvertBytes(pcm []byte, format Format, sampleRate int) ([]byte, error) {
	return Convert(BytesToSamples(pcm), format, sampleRate)
}

// EncodeWAV wraps samples in a canonical RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, bitDepth, channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return ws.Bytes(), nil
}

// transcode pipes a WAV payload through ffmpeg.
func transcode(wavData []byte, format Format) ([]byte, error) {
	if err := CheckFFmpeg(); err != nil {
		return nil, err
	}

	kwargs := ffmpeg.KwArgs{
		"loglevel": "error",
		"format":   string(format),
	}
	if format == FormatMP3 {
		kwargs["acodec"] = "libmp3lame"
		kwargs["b:a"] = "128k"
	}

	var out, stderr bytes.Buffer
	err := ffmpeg.Input("pipe:", ffmpeg.KwArgs{"format": "wav"}).
		Output("pipe:", kwargs).
		WithInput(bytes.NewReader(wavData)).
		WithOutput(&out, &stderr).
		Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s conversion failed: %w (%s)", format, err, strings.TrimSpace(stderr.String()))
	}
	logger.Debugf("Converted %d bytes of wav to %d bytes of %s", len(wavData), out.Len(), format)
	return out.Bytes(), nil
}

// DecodeToPCM turns any container ffmpeg understands into 16-bit mono PCM at
// sampleRate. WAV input is decoded in process.
func DecodeToPCM(data []byte, sampleRate int) ([]byte, error) {
	if IsWAV(data) {
		pcm, rate, err := DecodeWAV(data)
		if err == nil && (rate == sampleRate || sampleRate <= 0) {
			return pcm, nil
		}
	}

	if err := CheckFFmpeg(); err != nil {
		return nil, err
	}

	kwargs := ffmpeg.KwArgs{
		"loglevel": "error",
		"format":   "s16le",
		"acodec":   "pcm_s16le",
		"ac":       channels,
	}
	if sampleRate > 0 {
		kwargs["ar"] = sampleRate
	}

	var out, stderr bytes.Buffer
	err := ffmpeg.Input("pipe:").
		Output("pipe:", kwargs).
		WithInput(bytes.NewReader(data)).
		WithOutput(&out, &stderr).
		Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}
