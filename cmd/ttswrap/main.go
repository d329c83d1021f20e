package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/willwade/tts-wrapper-sub000/internal/audio"
	"github.com/willwade/tts-wrapper-sub000/internal/config"
	"github.com/willwade/tts-wrapper-sub000/internal/dbus"
	"github.com/willwade/tts-wrapper-sub000/internal/fileops"
	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/notification"
	"github.com/willwade/tts-wrapper-sub000/internal/playback"
	"github.com/willwade/tts-wrapper-sub000/internal/stats"
	"github.com/willwade/tts-wrapper-sub000/internal/tts"
	"github.com/willwade/tts-wrapper-sub000/internal/types"
)

func init() {
	// Set custom usage message to show -- prefix
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
	}
}

type options struct {
	text     string
	out      string
	format   string
	provider string
	voice    string
	lang     string
	voices   bool
	words    bool
	meter    bool
	dbus     bool
	notify   bool
	stats    bool
}

func main() {
	runWizard := flag.Bool("wizard", false, "Run the configuration wizard")
	logLevel := flag.String("log-level", "info", "Set log level (debug|info|warn|error)")
	logFilename := flag.String("log-filename", "", "Log to file instead of stdout")

	var opts options
	flag.StringVar(&opts.text, "text", "", "Text or SSML to speak (read from stdin when empty)")
	flag.StringVar(&opts.out, "out", "", "Write audio to this file instead of playing it")
	flag.StringVar(&opts.format, "format", "", "Output file format (wav|mp3|flac)")
	flag.StringVar(&opts.provider, "provider", "", "Override the configured provider (openai|realtime|command|mock)")
	flag.StringVar(&opts.voice, "voice", "", "Override the configured voice")
	flag.StringVar(&opts.lang, "lang", "", "Override the configured language")
	flag.BoolVar(&opts.voices, "voices", false, "List the provider's voices and exit")
	flag.BoolVar(&opts.words, "words", false, "Print each word as it is spoken")
	flag.BoolVar(&opts.meter, "meter", false, "Show the output level while speaking")
	flag.BoolVar(&opts.dbus, "dbus", false, "Run as a D-Bus daemon accepting Speak/Pause/Resume/Stop")
	flag.BoolVar(&opts.notify, "notify", false, "Send a desktop notification when a file is saved or speech fails")
	flag.BoolVar(&opts.stats, "stats", false, "Show synthesis usage per provider and exit")
	flag.Parse()

	// Set up logging level and output
	logger.SetLevel(*logLevel)
	if *logFilename != "" {
		if err := logger.SetOutputFile(*logFilename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseLogFile()
	}

	if *runWizard {
		if err := config.RunWizard(); err != nil {
			logger.Error("Error running wizard", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		logger.Error("Failed to initialize file operations", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(fileOps)
	if err != nil {
		logger.Error("Error loading config", err)
		os.Exit(1)
	}
	applyOverrides(cfg, opts)

	if dir := cfg.GetOutputConfig().Dir; dir != "" {
		fileOps.SetOutputDir(dir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for cleanup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("Received signal %v, shutting down...", sig)
		cancel()
	}()

	usage := stats.NewStatsManager(filepath.Join(fileOps.GetConfigDir(), stats.StatsFilename))
	if opts.stats {
		printStats(usage.GetStats())
		return
	}

	if opts.voices {
		if err := listVoices(ctx, cfg); err != nil {
			logger.Error("Failed to list voices", err)
			os.Exit(1)
		}
		return
	}

	notifier := notification.NewSilent()
	if opts.notify {
		notifier = notification.New()
	}

	if err := run(ctx, cfg, fileOps, usage, notifier, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("ttswrap failed", err)
		if nerr := notifier.NotifyError(err); nerr != nil {
			logger.Warn("Could not send notification")
		}
		os.Exit(1)
	}
}

func applyOverrides(cfg *types.Config, opts options) {
	if opts.provider != "" {
		cfg.TTS.Provider = opts.provider
	}
	if opts.voice != "" {
		cfg.TTS.Voice = opts.voice
	}
	if opts.lang != "" {
		cfg.TTS.Language = opts.lang
	}
	if opts.format != "" {
		cfg.Output.Format = opts.format
	}
}

func listVoices(ctx context.Context, cfg *types.Config) error {
	voices, err := tts.ListVoices(ctx, cfg.GetTTSConfig(), cfg.Keys.OpenAIKey)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	bold.Printf("%d voices:\n", len(voices))
	for _, v := range voices {
		cyan.Printf("  %-12s", v.ID)
		fmt.Printf(" %s", v.Name)
		if v.Gender != "" {
			fmt.Printf(" (%s)", v.Gender)
		}
		if n := len(v.LanguageCodes); n > 0 && n <= 5 {
			fmt.Printf(" [%s]", strings.Join(v.LanguageCodes, ", "))
		} else if n > 5 {
			fmt.Printf(" [%d languages]", n)
		}
		fmt.Println()
	}
	return nil
}

func printStats(st stats.Stats) {
	if len(st.Providers) == 0 {
		fmt.Println("No speech synthesized yet.")
		return
	}

	names := make([]string, 0, len(st.Providers))
	for name := range st.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	cyan := color.New(color.FgCyan)
	for _, name := range names {
		ps := st.Providers[name]
		cyan.Printf("  %-22s", name)
		fmt.Printf(" %5d requests  %8d chars  %8.1fs audio\n", ps.Requests, ps.Characters, ps.AudioSeconds)
	}
}

func run(ctx context.Context, cfg *types.Config, fileOps *fileops.DefaultFileOps, usage *stats.StatsManager, notifier notification.Notifier, opts options) error {
	backend := playback.NewMalgoBackend()
	sessionOpts := tts.Options{Backend: backend, FileOps: fileOps, Usage: usage}
	if opts.meter {
		sessionOpts.Meter = playback.NewLevelProcessor()
	}

	session, err := tts.NewSessionFromConfig(cfg, sessionOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Cleanup(); err != nil {
			logger.Error("Failed to release audio device", err)
		}
	}()

	if opts.dbus {
		return runDaemon(ctx, session, fileOps, usage)
	}

	text := opts.text
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read text from stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}

	format := audio.Format(cfg.GetOutputConfig().Format)

	if opts.out != "" {
		path, err := session.SynthToFile(ctx, text, opts.out, format)
		if err != nil {
			return err
		}
		logger.Infof("Audio saved to %s", path)
		if err := notifier.NotifySaved(path); err != nil {
			logger.Warn("Could not send notification")
		}
		return nil
	}

	if opts.words {
		green := color.New(color.FgGreen)
		err := session.Connect(tts.EventWord, func(word string, start, end float64) {
			green.Printf("%s ", word)
		})
		if err != nil {
			return err
		}
		defer fmt.Println()
	}
	if opts.meter {
		go showLevels(ctx, session.Levels())
	}

	return session.Speak(ctx, text)
}

func showLevels(ctx context.Context, levels <-chan float64) {
	yellow := color.New(color.FgYellow)
	for {
		select {
		case <-ctx.Done():
			return
		case level, ok := <-levels:
			if !ok {
				return
			}
			bar := strings.Repeat("█", int(level*30))
			yellow.Fprintf(os.Stderr, "\r%-30s", bar)
		}
	}
}

func runDaemon(ctx context.Context, session *tts.Session, fileOps *fileops.DefaultFileOps, usage *stats.StatsManager) error {
	// Check if another instance is running
	if err := fileOps.CheckPID(); err != nil {
		if errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			return err
		}
	}
	if err := fileOps.SavePID(); err != nil {
		return fmt.Errorf("failed to save PID file: %w", err)
	}
	defer fileOps.HandleExit()

	server, err := dbus.NewServer(session, usage)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		server.Stop()
	}()

	logger.Infof("Speaking on %s, waiting for D-Bus requests", session.Provider().Name())
	server.Wait()
	return nil
}
