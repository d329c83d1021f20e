package tts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synth.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandProviderPipesTextOnStdin(t *testing.T) {
	requireShell(t)

	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: "cat"})
	require.NoError(t, err)

	pcm, err := p.SynthToBytes(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), pcm)
	assert.Equal(t, 22050, p.SampleRate())
}

func TestCommandProviderSubstitutesPlaceholders(t *testing.T) {
	requireShell(t)

	p, err := NewCommandTTSProvider(CommandConfig{
		CommandLine: `printf '%s|%s|%s' "{voice}" {rate} "{text}"`,
		Voice:       "en-gb",
	})
	require.NoError(t, err)
	p.SetProperty("rate", "180")

	out, err := p.SynthToBytes(context.Background(), "hello big world")
	require.NoError(t, err)
	assert.Equal(t, "en-gb|180|hello big world", string(out))

	require.NoError(t, p.SetVoice("fr", "fr-FR"))
	out, err = p.SynthToBytes(context.Background(), "salut")
	require.NoError(t, err)
	assert.Equal(t, "fr|180|salut", string(out))
}

func TestCommandProviderDecodesWAV(t *testing.T) {
	requireShell(t)

	wav, err := audio.EncodeWAV([]int16{1, 2, 3, 4}, 8000)
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(src, wav, 0o644))

	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: "cat " + src, Output: CommandOutputWAV})
	require.NoError(t, err)

	pcm, err := p.SynthToBytes(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, audio.SamplesToBytes([]int16{1, 2, 3, 4}), pcm)
	assert.Equal(t, 8000, p.SampleRate())
}

func TestCommandProviderJSONLReportsTimings(t *testing.T) {
	requireShell(t)

	script := writeScript(t, `cat > /dev/null
echo '{"pcm_base64":"AAEAAQ==","words":[[0,"hi"]]}'
echo '{"pcm_base64":"AgACAA==","words":[[0.4,0.6,"there"]],"final":true}'
echo '{"pcm_base64":"ignored"}'
`)
	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: script, Output: CommandOutputJSONL, SampleRate: 16000})
	require.NoError(t, err)

	pcm, err := p.SynthToBytes(context.Background(), "hi there")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 1, 2, 0, 2, 0}, pcm)
	assert.Equal(t, []timing.RawTiming{
		timing.Pair(0, "hi"),
		timing.Triple(0.4, 0.6, "there"),
	}, p.WordTimings())
}

func TestCommandProviderFailures(t *testing.T) {
	requireShell(t)

	_, err := NewCommandTTSProvider(CommandConfig{CommandLine: ""})
	assert.Error(t, err)

	_, err = NewCommandTTSProvider(CommandConfig{CommandLine: "cat", Output: "ogg"})
	assert.Error(t, err)

	script := writeScript(t, "echo 'voice missing' >&2\nexit 3\n")
	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: script})
	require.NoError(t, err)
	_, err = p.SynthToBytes(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice missing")

	bad := writeScript(t, "echo '{\"pcm_base64\":\"AA==\",\"words\":[[\"oops\",1]]}'\n")
	p, err = NewCommandTTSProvider(CommandConfig{CommandLine: bad, Output: CommandOutputJSONL})
	require.NoError(t, err)
	_, err = p.SynthToBytes(context.Background(), "x")
	assert.ErrorIs(t, err, timing.ErrInvalidTimingFormat)
}

func TestCommandProviderVoices(t *testing.T) {
	requireShell(t)

	script := writeScript(t, "printf 'en-us English (America)\\n\\nde German\\n'\n")
	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: "cat", VoicesCommand: script})
	require.NoError(t, err)

	voices, err := p.GetVoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Voice{
		{ID: "en-us", Name: "English (America)"},
		{ID: "de", Name: "German"},
	}, voices)

	p, err = NewCommandTTSProvider(CommandConfig{CommandLine: "cat"})
	require.NoError(t, err)
	voices, err = p.GetVoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, voices)

	assert.ErrorIs(t, p.SetVoice("", ""), ErrUnknownVoice)
}

func TestCommandProviderDrivesSession(t *testing.T) {
	requireShell(t)

	script := writeScript(t, `cat > /dev/null
echo '{"pcm_base64":"AAAAAAAAAAAAAAAAAAAAAA==","words":[[0,"one"],[0.0002,"two"]],"final":true}'
`)
	p, err := NewCommandTTSProvider(CommandConfig{CommandLine: script, Output: CommandOutputJSONL, SampleRate: 16000})
	require.NoError(t, err)

	s, _ := newTestSession(t, p)
	pcm, err := s.SynthToBytes(context.Background(), "one two")
	require.NoError(t, err)
	require.Len(t, pcm, 16)

	got := s.Timings()
	require.Len(t, got, 2)
	assert.InDelta(t, 0.0002, got[0].End, 1e-12)
	assert.InDelta(t, 0.0005, got[1].End, 1e-12)
}
