package notification

import (
	"fmt"
	"os/exec"

	"github.com/godbus/dbus/v5"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyTimeoutMs      = int32(5000)
)

// busCaller is the part of a D-Bus object used to post notifications
type busCaller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type linuxNotifier struct {
	// connect returns the notifications object; replaced in tests
	connect func() (busCaller, error)
	// fallback runs when the bus is unavailable
	fallback func(title, message string) error
}

func newLinuxNotifier() platformNotifier {
	return &linuxNotifier{
		connect:  sessionNotifications,
		fallback: notifySend,
	}
}

func sessionNotifications() (busCaller, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return conn.Object(notificationsService, notificationsPath), nil
}

func (n *linuxNotifier) send(title, message string) error {
	logger.Debugf("Sending notification: %s - %s", title, message)

	obj, err := n.connect()
	if err != nil {
		logger.Debugf("Session bus unavailable, falling back to notify-send: %v", err)
		return n.fallback(title, message)
	}

	call := obj.Call(notificationsService+".Notify", 0,
		appName, uint32(0), "", title, message, []string{}, map[string]dbus.Variant{}, notifyTimeoutMs)
	if call.Err != nil {
		logger.Errorf("Failed to send notification", call.Err)
		return fmt.Errorf("notify failed: %w", call.Err)
	}
	return nil
}

func notifySend(title, message string) error {
	if err := exec.Command("notify-send", "--app-name", appName, title, message).Run(); err != nil {
		logger.Errorf("Failed to send notification", err)
		return err
	}
	return nil
}
