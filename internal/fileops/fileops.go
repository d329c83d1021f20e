package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

// ErrConfigNotFound is returned when a configuration file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrProcessAlreadyRunning is returned when the ttswrap daemon is already running
var ErrProcessAlreadyRunning = errors.New("ttswrap process is already running")

// FileOps interface defines operations for managing files in the ttswrap config directory
type FileOps interface {
	// GetConfigDir returns the full path to the ttswrap config directory
	GetConfigDir() string

	// GetOutputDir returns the directory relative output filenames are resolved against
	GetOutputDir() string

	// SaveConfig saves data to a file in the config directory
	SaveConfig(filename string, data []byte) error

	// LoadConfig loads data from a file in the config directory
	LoadConfig(filename string) ([]byte, error)

	// SaveOutput writes synthesized audio; relative names land in the output directory
	SaveOutput(filename string, data []byte) (string, error)

	// ListOutputs returns the files in the output directory
	ListOutputs() ([]string, error)

	// DeleteOutput deletes a file from the output directory
	DeleteOutput(filename string) error

	// EnsureDirectories creates necessary directories if they don't exist
	EnsureDirectories() error

	// SavePID saves the current process ID to a file
	SavePID() error

	// CheckPID checks if another instance is running
	// Returns ErrProcessAlreadyRunning if another instance is running
	CheckPID() error

	// CleanupPID removes the PID file
	CleanupPID() error

	// HandleExit ensures proper cleanup of PID file on application exit
	HandleExit()
}

// DefaultFileOps implements FileOps interface
type DefaultFileOps struct {
	configDir string
	outputDir string
}

// NewDefaultFileOps creates a new DefaultFileOps instance rooted at ~/.config/ttswrap
func NewDefaultFileOps() (*DefaultFileOps, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return NewFileOps(filepath.Join(homeDir, ".config", "ttswrap"), ""), nil
}

// NewFileOps creates a FileOps rooted at configDir. An empty outputDir
// defaults to configDir/output.
func NewFileOps(configDir, outputDir string) *DefaultFileOps {
	if outputDir == "" {
		outputDir = filepath.Join(configDir, "output")
	}
	return &DefaultFileOps{
		configDir: configDir,
		outputDir: outputDir,
	}
}

func (f *DefaultFileOps) GetConfigDir() string {
	return f.configDir
}

func (f *DefaultFileOps) GetOutputDir() string {
	return f.outputDir
}

// SetOutputDir overrides the output directory
func (f *DefaultFileOps) SetOutputDir(dir string) {
	if dir != "" {
		f.outputDir = dir
	}
}

func (f *DefaultFileOps) SaveConfig(filename string, data []byte) error {
	path := filepath.Join(f.configDir, filename)
	return os.WriteFile(path, data, 0o644)
}

func (f *DefaultFileOps) LoadConfig(filename string) ([]byte, error) {
	path := filepath.Join(f.configDir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}
	return os.ReadFile(path)
}

func (f *DefaultFileOps) resolveOutput(filename string) string {
	if filepath.IsAbs(filename) || strings.ContainsRune(filename, os.PathSeparator) {
		return filename
	}
	return filepath.Join(f.outputDir, filename)
}

func (f *DefaultFileOps) SaveOutput(filename string, data []byte) (string, error) {
	path := f.resolveOutput(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (f *DefaultFileOps) ListOutputs() ([]string, error) {
	files, err := os.ReadDir(f.outputDir)
	if err != nil {
		return nil, err
	}

	var outputs []string
	for _, file := range files {
		if !file.IsDir() {
			outputs = append(outputs, file.Name())
		}
	}
	sort.Strings(outputs)
	return outputs, nil
}

func (f *DefaultFileOps) DeleteOutput(filename string) error {
	path := filepath.Join(f.outputDir, filepath.Base(filename))
	return os.Remove(path)
}

func (f *DefaultFileOps) EnsureDirectories() error {
	// Create config directory
	if err := os.MkdirAll(f.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create output directory
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return nil
}

func (f *DefaultFileOps) getPIDFilePath() string {
	return filepath.Join(f.configDir, "ttswrap.pid")
}

func (f *DefaultFileOps) SavePID() error {
	pidFile := f.getPIDFilePath()
	pid := os.Getpid()
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

func (f *DefaultFileOps) CheckPID() error {
	pidFile := f.getPIDFilePath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // PID file doesn't exist, daemon is not running
		}
		return fmt.Errorf("error reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	// Check if process exists by sending signal 0
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil // Process doesn't exist
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return ErrProcessAlreadyRunning
	}

	logger.Debug("Found stale PID file, will be overwritten")
	return nil
}

func (f *DefaultFileOps) CleanupPID() error {
	return os.Remove(f.getPIDFilePath())
}

func (f *DefaultFileOps) HandleExit() {
	if err := f.CleanupPID(); err != nil {
		logger.Error("Failed to cleanup PID file on exit", err)
	}
}
