package dbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/playback"
	"github.com/willwade/tts-wrapper-sub000/internal/tts"
)

const (
	dbusServiceName = "com.willwade.ttswrap"
	dbusObjectPath  = "/com/willwade/ttswrap/Speaker"
	dbusInterface   = "com.willwade.ttswrap.Speaker"
)

// Speaker is the part of tts.Session the bus exposes
type Speaker interface {
	StartPlaybackWithCallbacks(ctx context.Context, text string, cb tts.WordCallback) error
	Pause(duration time.Duration)
	Resume()
	Stop() error
	Playing() bool
	Position() int
	SampleRate() int
	State() playback.State
	AudioDuration() float64
	Connect(event tts.Event, callback interface{}) error
}

// StatsReporter provides usage totals as JSON
type StatsReporter interface {
	GetStatsJSON() (string, error)
}

// Server implements the D-Bus service controlling a speech session
type Server struct {
	conn    *dbus.Conn
	speaker Speaker
	stats   StatsReporter
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex

	// emit sends a signal; replaced in tests
	emit func(name string, args ...interface{})
}

// NewServer wires session events to bus signals. The session's onStart,
// onEnd and started-word callbacks are taken over by the server. stats may be nil.
func NewServer(speaker Speaker, stats StatsReporter) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		speaker: speaker,
		stats:   stats,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.emit = s.emitSignal

	if err := speaker.Connect(tts.EventStart, func() { s.emit("SpeechStarted") }); err != nil {
		cancel()
		return nil, err
	}
	if err := speaker.Connect(tts.EventEnd, func() { s.emit("SpeechEnded") }); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start starts the D-Bus server
func (s *Server) Start() error {
	var err error
	s.conn, err = dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Request name
	reply, err := s.conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.conn.Close()
		return fmt.Errorf("name already taken")
	}

	// Export object; StopSpeech is published as Stop
	err = s.conn.ExportWithMap(s, map[string]string{"StopSpeech": "Stop"}, dbusObjectPath, dbusInterface)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = s.conn.Export(introspect.NewIntrospectable(introspectNode()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	logger.Infof("🔌 D-Bus service started: %s", dbusServiceName)
	return nil
}

func introspectNode() *introspect.Node {
	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{
					Name: "Speak",
					Args: []introspect.Arg{
						{Name: "text", Type: "s", Direction: "in"},
					},
				},
				{
					Name: "Pause",
					Args: []introspect.Arg{
						{Name: "seconds", Type: "d", Direction: "in"},
					},
				},
				{Name: "Resume"},
				{Name: "Stop"},
				{
					Name: "GetStatus",
					Args: []introspect.Arg{
						{Name: "state", Type: "s", Direction: "out"},
						{Name: "position", Type: "d", Direction: "out"},
						{Name: "duration", Type: "d", Direction: "out"},
					},
				},
				{
					Name: "GetStats",
					Args: []introspect.Arg{
						{Name: "stats_json", Type: "s", Direction: "out"},
					},
				},
			},
			Signals: []introspect.Signal{
				{Name: "SpeechStarted"},
				{Name: "SpeechEnded"},
				{
					Name: "WordSpoken",
					Args: []introspect.Arg{
						{Name: "word", Type: "s"},
						{Name: "start", Type: "d"},
						{Name: "end", Type: "d"},
					},
				},
				{
					Name: "SpeechError",
					Args: []introspect.Arg{
						{Name: "error", Type: "s"},
					},
				},
			},
		}},
	}
}

// Stop stops the D-Bus server and any speech in progress
func (s *Server) Stop() {
	s.cancel()
	if err := s.speaker.Stop(); err != nil {
		logger.Error("D-Bus: Failed to stop playback", err)
	}
	if s.conn != nil {
		s.conn.Close()
	}
	logger.Infof("🔌 D-Bus service stopped")
}

// Wait waits for the server context to be cancelled
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// Speak synthesizes and plays text (D-Bus method). Synthesis runs in the
// background; failures arrive as SpeechError.
func (s *Server) Speak(text string) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Debugf("D-Bus: Speak called (%d chars)", len(text))

	if s.speaker.Playing() {
		return dbus.MakeFailedError(tts.ErrSessionBusy)
	}

	go s.speakAsync(text)
	return nil
}

func (s *Server) speakAsync(text string) {
	err := s.speaker.StartPlaybackWithCallbacks(s.ctx, text, func(word string, start, end float64) {
		s.emit("WordSpoken", word, start, end)
	})
	if err != nil {
		logger.Error("D-Bus: Speak failed", err)
		s.emit("SpeechError", err.Error())
	}
}

// Pause suspends playback (D-Bus method). A positive duration resumes
// automatically; the call itself returns immediately.
func (s *Server) Pause(seconds float64) *dbus.Error {
	logger.Debugf("D-Bus: Pause called (%.2fs)", seconds)
	if seconds <= 0 {
		s.speaker.Pause(0)
		return nil
	}
	go s.speaker.Pause(time.Duration(seconds * float64(time.Second)))
	return nil
}

// Resume continues paused playback (D-Bus method)
func (s *Server) Resume() *dbus.Error {
	logger.Debugf("D-Bus: Resume called")
	s.speaker.Resume()
	return nil
}

// StopSpeech halts playback (exported on the bus as Stop)
func (s *Server) StopSpeech() *dbus.Error {
	logger.Debugf("D-Bus: Stop called")
	if err := s.speaker.Stop(); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// GetStatus returns the playback state, position and buffer length in seconds (D-Bus method)
func (s *Server) GetStatus() (string, float64, float64, *dbus.Error) {
	position := 0.0
	if rate := s.speaker.SampleRate(); rate > 0 {
		// 16-bit mono
		position = float64(s.speaker.Position()) / float64(2*rate)
	}
	return s.speaker.State().String(), position, s.speaker.AudioDuration(), nil
}

// GetStats returns synthesis usage totals as JSON (D-Bus method)
func (s *Server) GetStats() (string, *dbus.Error) {
	if s.stats == nil {
		return "{}", nil
	}
	js, err := s.stats.GetStatsJSON()
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return js, nil
}

// emitSignal emits a D-Bus signal
func (s *Server) emitSignal(name string, args ...interface{}) {
	if s.conn == nil {
		logger.Warnf("D-Bus: Cannot emit signal %s - no connection", name)
		return
	}

	signalPath := dbus.ObjectPath(dbusObjectPath)
	signalName := dbusInterface + "." + name

	err := s.conn.Emit(signalPath, signalName, args...)
	if err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
	} else {
		logger.Debugf("D-Bus: Emitted signal: %s", name)
	}
}
