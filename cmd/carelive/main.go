// Command carelive runs the customer care live relay.
//
//	carelive serve     start the WebSocket relay (default)
//	carelive migrate   apply warehouse schema migrations
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/carelive/internal/dotenv"
	"github.com/vango-go/carelive/pkg/gateway/config"
)

type cliDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(context.Context, config.Config, *slog.Logger) (*gateway, error)
	migrate      func(context.Context, config.Config, *slog.Logger) ([]int64, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: buildGateway,
		migrate:    migrateWarehouse,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newRootCmd(stderr io.Writer, deps cliDeps) *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "carelive",
		Short:         "Voice and video customer care relay for Gemini Live",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := dotenv.Load(envFiles...)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), stderr, deps)
		},
	}
	root.SetOut(stderr)
	root.SetErr(stderr)
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading configuration")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the WebSocket relay and health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), stderr, deps)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending warehouse migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), stderr, deps)
		},
	})
	return root
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps cliDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	root := newRootCmd(stderr, deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "carelive: %v\n", err)
		return 1
	}
	return 0
}

// newLogger builds the text logger for the configured level. Unknown levels
// were rejected by config validation, so they fall back to info here.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stderr, defaultCLIDeps()))
}
