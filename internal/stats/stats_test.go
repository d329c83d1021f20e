package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSynthesisPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", StatsFilename)

	sm := NewStatsManager(path)
	sm.AddSynthesis("OpenAI TTS", 12, 1.5)
	sm.AddSynthesis("OpenAI TTS", 8, 0.5)
	sm.AddSynthesis("Mock", 3, 0.2)

	reloaded := NewStatsManager(path).GetStats()
	require.Contains(t, reloaded.Providers, "OpenAI TTS")
	assert.Equal(t, ProviderStats{AudioSeconds: 2.0, Characters: 20, Requests: 2}, *reloaded.Providers["OpenAI TTS"])
	assert.Equal(t, 1, reloaded.Providers["Mock"].Requests)
}

func TestGetStatsReturnsCopy(t *testing.T) {
	sm := NewStatsManager(filepath.Join(t.TempDir(), StatsFilename))
	sm.AddSynthesis("Mock", 1, 0.1)

	snapshot := sm.GetStats()
	snapshot.Providers["Mock"].Requests = 99
	assert.Equal(t, 1, sm.GetStats().Providers["Mock"].Requests)
}

func TestResetAndJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), StatsFilename)
	sm := NewStatsManager(path)
	sm.AddSynthesis("Mock", 5, 1)

	js, err := sm.GetStatsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"providers":{"Mock":{"audio_seconds":1,"characters":5,"requests":1}}}`, js)

	require.NoError(t, sm.Reset())
	assert.Empty(t, NewStatsManager(path).GetStats().Providers)
}

func TestCorruptStatsFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), StatsFilename)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	sm := NewStatsManager(path)
	assert.Empty(t, sm.GetStats().Providers)
	sm.AddSynthesis("Mock", 1, 0.1)
	assert.Len(t, sm.GetStats().Providers, 1)
}
