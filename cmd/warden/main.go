package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaplex/warden"
	"github.com/personaplex/warden/internal/logger"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	SessionID string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}

	root := &cobra.Command{
		Use:           "warden",
		Short:         "Supervise a PersonaPlex server for RunPod serverless jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "optional TOML config file (environment wins)")
	root.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		createServeCommand(globalFlags),
		createRunCommand(globalFlags, runFlags),
		createVersionCommand(),
	)
	return root
}

// setup loads configuration, installs the logger, and builds the Warden.
func setup(flags *GlobalFlags) (*warden.Warden, error) {
	cfg, err := warden.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if flags.LogLevel != "" {
		level = flags.LogLevel
	}
	log := logger.Setup(parseLevel(level))
	slog.SetDefault(log)

	if err := warden.RegisterMetricsDefault(); err != nil {
		return nil, err
	}
	return warden.New(cfg, log)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RunPod worker loop (one job at a time)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if srv := w.StartStatusServer(); srv != nil {
				defer func() { _ = srv.Close() }()
			}
			if err := w.ServeWorker(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func createRunCommand(flags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise one session locally and print the terminal result",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if srv := w.StartStatusServer(); srv != nil {
				defer func() { _ = srv.Close() }()
			}

			id := runFlags.SessionID
			if id == "" {
				id = fmt.Sprintf("local-%d", time.Now().Unix())
			}
			result := w.RunOnce(ctx, id)
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&runFlags.SessionID, "session-id", "", "session identifier (default: local-<unix time>)")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the warden version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
