package notification

import (
	"runtime"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

const appName = "ttswrap"

// Notifier defines the interface for desktop notifications
type Notifier interface {
	Notify(title, message string) error
	NotifySaved(path string) error
	NotifyError(err error) error
}

// SilentNotifier is a no-op implementation for scripted use
type SilentNotifier struct{}

func NewSilent() Notifier {
	return &SilentNotifier{}
}

func (s *SilentNotifier) Notify(title, message string) error { return nil }
func (s *SilentNotifier) NotifySaved(path string) error      { return nil }
func (s *SilentNotifier) NotifyError(err error) error        { return nil }

type baseNotifier struct {
	platform platformNotifier
}

type platformNotifier interface {
	send(title, message string) error
}

// New creates a new platform-specific notification service
func New() Notifier {
	var platform platformNotifier
	switch runtime.GOOS {
	case "darwin":
		logger.Debug("Using Darwin (macOS) notifier")
		platform = newDarwinNotifier()
	default:
		logger.Debug("Using freedesktop notifier")
		platform = newLinuxNotifier()
	}
	return &baseNotifier{platform: platform}
}

func (n *baseNotifier) Notify(title, message string) error {
	return n.platform.send(title, message)
}

func (n *baseNotifier) NotifySaved(path string) error {
	return n.Notify("🔊 Speech saved", path)
}

func (n *baseNotifier) NotifyError(err error) error {
	return n.Notify("❌ Speech failed", err.Error())
}
