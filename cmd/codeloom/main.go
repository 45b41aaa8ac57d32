// Package main provides the codeloom binary entry point.
// Codeloom maintains a living relationship graph of a codebase and drives
// AI-agent build plans against it.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "codeloom"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions are the global flags shared by every subcommand.
type cliOptions struct {
	configPath string
	repoPath   string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "codeloom",
		Short: "Living code-relationship graph and AI build orchestration",
		Long: `Codeloom maintains a queryable graph of a codebase's structural
relationships: endpoints, services, collections, tasks, and the edges
between them.

It provides:
- Graph validation, queries, and feature synthesis reports
- Drift detection between graph snapshots with an append-only history
- Phased build-plan execution against external builder/validator agents

The scanner, planner, builder, and validator are external agents reached
over NATS request/reply.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.repoPath, "repo", "", "Repository path to operate on")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(
		validateCmd(opts),
		overviewCmd(opts),
		queryCmd(opts),
		driftCmd(opts),
		historyCmd(opts),
		scanCmd(opts),
		planCmd(opts),
		runCmd(opts),
		watchCmd(opts),
	)

	return cmd
}

// setup resolves logging and configuration for one command invocation.
func setup(opts *cliOptions) (*config.Config, *slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(opts.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if opts.repoPath != "" {
		abs, err := filepath.Abs(opts.repoPath)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve repo path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, nil, fmt.Errorf("stat repo path: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("not a directory: %s", abs)
		}
		cfg.Repo.Path = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
