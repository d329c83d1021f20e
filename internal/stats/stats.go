package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

// StatsFilename is the file under the config directory holding usage totals
const StatsFilename = "stats.json"

// ProviderStats holds synthesis totals for one provider
type ProviderStats struct {
	AudioSeconds float64 `json:"audio_seconds"`
	Characters   int     `json:"characters"`
	Requests     int     `json:"requests"`
}

// Stats holds usage totals keyed by provider name
type Stats struct {
	Providers map[string]*ProviderStats `json:"providers"`
}

// StatsManager manages usage statistics persistence
type StatsManager struct {
	stats    Stats
	filePath string
	mu       sync.Mutex
}

// NewStatsManager creates a stats manager backed by filePath and loads existing data
func NewStatsManager(filePath string) *StatsManager {
	sm := &StatsManager{
		filePath: filePath,
		stats: Stats{
			Providers: make(map[string]*ProviderStats),
		},
	}

	// Load existing stats if available
	if err := sm.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}

	return sm
}

// AddSynthesis records one synthesis request and persists immediately
func (sm *StatsManager) AddSynthesis(provider string, characters int, audioSeconds float64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ps, exists := sm.stats.Providers[provider]
	if !exists {
		ps = &ProviderStats{}
		sm.stats.Providers[provider] = ps
	}

	ps.AudioSeconds += audioSeconds
	ps.Characters += characters
	ps.Requests++

	if err := sm.save(); err != nil {
		logger.Error("Failed to save stats after synthesis", err)
	}
}

// GetStats returns a deep copy of current statistics
func (sm *StatsManager) GetStats() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	statsCopy := Stats{
		Providers: make(map[string]*ProviderStats, len(sm.stats.Providers)),
	}
	for name, ps := range sm.stats.Providers {
		c := *ps
		statsCopy.Providers[name] = &c
	}
	return statsCopy
}

// GetStatsJSON returns statistics as a JSON string (for D-Bus)
func (sm *StatsManager) GetStatsJSON() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := json.Marshal(sm.stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}

	return string(data), nil
}

// Reset clears all statistics and persists empty state
func (sm *StatsManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stats = Stats{
		Providers: make(map[string]*ProviderStats),
	}

	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}

	return nil
}

func (sm *StatsManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("Stats file not found, starting fresh: %s", sm.filePath)
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &sm.stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	if sm.stats.Providers == nil {
		sm.stats.Providers = make(map[string]*ProviderStats)
	}

	logger.Debugf("Loaded stats from %s", sm.filePath)
	return nil
}

func (sm *StatsManager) save() error {
	dir := filepath.Dir(sm.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(sm.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write atomically by writing to temp file and renaming
	tempFile := sm.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}

	if err := os.Rename(tempFile, sm.filePath); err != nil {
		return fmt.Errorf("failed to rename temp stats file: %w", err)
	}

	return nil
}
