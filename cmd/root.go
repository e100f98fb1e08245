// Package cmd wires the tagsync subcommands, shared flags and logging.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/config"
	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/filter"
	"github.com/ecarter/tagsync/index"
	"github.com/ecarter/tagsync/label"
)

var rootCmd = &cobra.Command{
	Use:   "tagsync",
	Short: "Reconcile message tags with mail file keywords",
	Long: `tagsync keeps a local message index and the X-Keywords headers of the
mail files in sync. Labels recorded by the mail provider become tags in the
index, and tag edits flow back into the files as keywords.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	if err := config.RegisterFlags(rootCmd); err != nil {
		return fmt.Errorf("failed to register CLI flags: %w", err)
	}
	return rootCmd.Execute()
}

// setup loads the config, builds the logger and opens the index store. The
// returned cleanup closes the store and the log file.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, *index.Store, func(), error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	logger, logCleanup, err := setupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}
	slog.SetDefault(logger)

	store, err := index.Open(cfg.DBPath)
	if err != nil {
		_ = logCleanup()
		return config.Config{}, nil, nil, nil, fmt.Errorf("open index %s: %w", cfg.DBPath, err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing index failed", "err", err)
		}
		_ = logCleanup()
	}
	return cfg, logger, store, cleanup, nil
}

// envelopeOptions derives the per-run envelope configuration from the
// global flags. The Gmail table is the only label vocabulary shipped.
func envelopeOptions(cfg config.Config, logger *slog.Logger) (envelope.Options, error) {
	mapping, err := label.NewMapping(label.GmailTable)
	if err != nil {
		return envelope.Options{}, err
	}
	return envelope.Options{
		Debug:   cfg.Debug,
		DryRun:  cfg.DryRun,
		Exclude: cfg.ExcludeTags,
		Mapping: mapping,
		Logger:  logger,
	}, nil
}

func buildFilter(cfg config.Config) (*filter.Filter, error) {
	return filter.New(filter.Options{
		Header: cfg.MatchHeader,
		Body:   cfg.MatchBody,
	})
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("tagsync-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
