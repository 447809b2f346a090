package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jwulff/steno/interview/internal/app"
	"github.com/jwulff/steno/interview/internal/backend"
	"github.com/jwulff/steno/interview/internal/camera"
	"github.com/jwulff/steno/interview/internal/config"
	"github.com/jwulff/steno/interview/internal/logging"
	"github.com/jwulff/steno/interview/internal/mcpserver"
	"github.com/jwulff/steno/interview/internal/session"
	"github.com/jwulff/steno/interview/internal/speech"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "steno-interview",
	Short:         "Practice interviews with live transcription and feedback",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: ./interview.yaml or the user config dir)")
	flags.String("backend-url", "", "question and evaluation service URL")
	flags.String("level", "", "default difficulty level: easy, medium or hard")
	flags.String("camera", "", "camera source: snapshot, file or none")
	flags.String("camera-url", "", "snapshot URL for the snapshot camera")
	flags.String("camera-file", "", "image path for the file camera")
	flags.String("socket", "", "steno-daemon socket path")
	flags.String("locale", "", "speech recognition locale")
	flags.String("log-level", "", "log level")
	flags.String("log-file", "", "log file, or - for stderr")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newMCPCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "steno-interview: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and opens the logger for cmd.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	deps := session.Deps{
		Backend: backend.New(cfg.Backend.URL, cfg.Backend.Timeout),
		Speech: speech.NewStenoEngine(speech.Config{
			SocketPath: cfg.Speech.Socket,
			DBPath:     cfg.Speech.Database,
			Locale:     cfg.Speech.Locale,
			Device:     cfg.Speech.Device,
			StopGrace:  cfg.Speech.StopGrace,
			Log:        log,
		}),
		Log: logging.For(log, logging.ComponentApp),
	}
	switch cfg.Camera.Source {
	case config.CameraSnapshot:
		deps.Camera = &camera.SnapshotSource{URL: cfg.Camera.URL, Interval: cfg.Camera.Interval, Log: log}
	case config.CameraFile:
		deps.Camera = &camera.FileSource{Path: cfg.Camera.File}
	}

	o := session.New(deps, session.Options{
		TickInterval:    cfg.Session.TickInterval,
		FlushGrace:      cfg.Session.FlushGrace,
		GenerateTimeout: cfg.Session.GenerateTimeout,
		EvaluateTimeout: cfg.Session.EvaluateTimeout,
		WarningTTL:      cfg.Session.WarningTTL,
		QuestionCount:   cfg.Session.QuestionCount,
	})
	log.WithFields(logrus.Fields{
		"backend": cfg.Backend.URL,
		"camera":  cfg.Camera.Source,
		"config":  cfg.File,
	}).Info("starting")

	m := app.New(o, config.Levels, cfg.Session.DefaultLevel, logging.For(log, logging.ComponentApp))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()

	// The model resets on quit; this covers a killed program.
	o.Reset()
	if err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			w := cmd.OutOrStdout()
			if cfg.File != "" {
				fmt.Fprintf(w, "# %s\n", cfg.File)
			}
			_, err = w.Write(out)
			return err
		},
	}
}

func newSessionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Show a stored session with its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := backend.New(cfg.Backend.URL, cfg.Backend.Timeout)
			sess, err := client.Session(ctx, args[0])
			if err != nil {
				logging.For(log, logging.ComponentBackend).WithError(err).Warn("fetch session failed")
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}
			writeSession(w, sess)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session as JSON")
	return cmd
}

func writeSession(w io.Writer, s backend.StoredSession) {
	fmt.Fprintf(w, "Session:  %s\n", s.SessionID)
	fmt.Fprintf(w, "Topic:    %s (%s)\n", s.Topic, s.DifficultyLevel)
	if s.Timestamp != "" {
		fmt.Fprintf(w, "Time:     %s\n", s.Timestamp)
	}
	fmt.Fprintf(w, "\nQuestion:\n  %s\n", s.QuestionText)
	if s.UserTranscription != nil {
		fmt.Fprintf(w, "\nAnswer:\n  %s\n", *s.UserTranscription)
	}
	if p := s.PostureData; p != nil {
		fmt.Fprintf(w, "\nPosture:  %s over %ds (%d samples)\n", p.Stability, p.Duration, p.Samples)
	}
	if s.Feedback != nil {
		fmt.Fprintf(w, "\nFeedback:\n%s\n", *s.Feedback)
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve interview tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			client := backend.New(cfg.Backend.URL, cfg.Backend.Timeout)
			srv := mcpserver.New(client, config.Levels, version, logging.For(log, logging.ComponentMCP))
			return srv.ServeStdio()
		},
	}
}
