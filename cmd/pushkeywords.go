package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/pipeline"
	"github.com/ecarter/tagsync/runner"
	"github.com/ecarter/tagsync/stage"
	"github.com/ecarter/tagsync/stats"
)

var pushKeywordsCmd = &cobra.Command{
	Use:   "push-keywords [query]",
	Short: "Rewrite X-Keywords headers from the index tags of matched messages",
	Long: `push-keywords is the reverse direction of sync-tags: the tag set
recorded in the index for each matched message is translated back to labels
and written into the mail file's X-Keywords header. Files whose header
already matches are left untouched.`,
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

		terminal := stage.Discard()
		if cfg.Debug {
			terminal = stage.Report(logger, cfg.Debug, cfg.FromWidth, cfg.SubjectWidth)
		}

		pl := pipeline.New(
			terminal,
			stage.PushKeywords(logger, cfg.Debug, collector),
		)

		logger.Info("starting push-keywords", "query", query, "db", cfg.DBPath, "dryRun", cfg.DryRun)
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
	rootCmd.AddCommand(pushKeywordsCmd)
}
