package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/pipeline"
	"github.com/ecarter/tagsync/runner"
	"github.com/ecarter/tagsync/stage"
	"github.com/ecarter/tagsync/stats"
)

var syncCmd = &cobra.Command{
	Use:   "sync-tags [query]",
	Short: "Reconcile index tags against provider labels for matched messages",
	Long: `sync-tags pulls the X-Keywords labels of every message matching the query
into the index, drops the transient new tag, and optionally derives a
mention tag from the message body. Without a query it processes tag:new.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, store, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		query := "tag:new"
		if len(args) > 0 {
			query = args[0]
		}

		envOpts, err := envelopeOptions(cfg, logger)
		if err != nil {
			return err
		}
		f, err := buildFilter(cfg)
		if err != nil {
			return fmt.Errorf("build filter: %w", err)
		}

		collector := stats.NewCollector()

		stages := []pipeline.Stage{
			stage.Reconcile(collector),
			stage.StripTransient("new"),
		}
		if cfg.MentionMarker != "" {
			stages = append(stages, stage.DeriveMention(cfg.MentionMarker, cfg.MentionTag))
		}

		terminal := stage.Discard()
		if cfg.Debug {
			terminal = stage.Report(logger, cfg.Debug, cfg.FromWidth, cfg.SubjectWidth)
		}

		pl := pipeline.New(terminal, stages...)

		logger.Info("starting sync-tags", "query", query, "db", cfg.DBPath, "dryRun", cfg.DryRun)
		if err := runner.Run(cmd.Context(), store, pl, runner.Options{
			Query:    query,
			Envelope: envOpts,
			Filter:   f,
		}, logger, collector); err != nil {
			return err
		}

		collector.PrintSummary()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
