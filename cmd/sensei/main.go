// Sensei is an AI tutor for data-science topics.
//
// `sensei serve` answers students in Matrix rooms and optionally exposes
// /health, /status and /metrics. `sensei chat` runs a single session in the
// terminal. Configuration comes from an optional YAML file (--config), a
// .env file in the working directory, and SENSEI_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/bdobrica/sensei/common/version"
	"github.com/bdobrica/sensei/internal/sensei/app"
	"github.com/bdobrica/sensei/internal/sensei/commands"
	"github.com/bdobrica/sensei/internal/sensei/config"
	"github.com/bdobrica/sensei/internal/sensei/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "sensei",
		Short:         "AI tutor for data-science and machine-learning topics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env file is normal outside development.
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Answer students in Matrix rooms",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Run a tutoring session in the terminal",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runChat(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "Sensei "+version.Info())
			},
		},
	)
	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	observability.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sensei, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize sensei: %w", err)
	}
	defer sensei.Stop()

	return sensei.Run(ctx)
}

func runChat(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// The terminal owns stdout, so logs go to stderr at warn and above.
	cfg.Matrix.Homeserver = ""
	cfg.HTTP.Addr = ""
	level := cfg.Log.Level
	if level == "info" {
		level = "warn"
	}
	logger := observability.NewLogger(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	sensei, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize sensei: %w", err)
	}
	defer sensei.Stop()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	user := os.Getenv("USER")
	if user == "" {
		user = "student"
	}
	origin := commands.Origin{RoomID: "terminal", SenderID: user}

	fmt.Printf("🎓 Sensei %s. Start with `%s start interview|exam|research`, or `%s help`. Ctrl+D quits.\n\n",
		version.Version, sensei.Prefix(), sensei.Prefix())

	for {
		input, err := line.Prompt("you> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if reply := sensei.Handle(ctx, origin, input); reply != "" {
			fmt.Printf("\nsensei> %s\n\n", reply)
		}
	}
}
