// Package runner drives one pass: query the index, wrap each match in an
// envelope, and push it through the pipeline inside a freeze/thaw window.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/filter"
	"github.com/ecarter/tagsync/index"
	"github.com/ecarter/tagsync/pipeline"
	"github.com/ecarter/tagsync/stats"
)

// Options binds a query and the per-run envelope configuration.
type Options struct {
	Query    string
	Envelope envelope.Options

	// Filter, when active, drops non-matching messages before the pipeline.
	Filter *filter.Filter
}

// Run executes the pipeline over every message matching the query, strictly
// in order, one frozen transaction window open at a time. A query matching
// nothing is logged and treated as a clean stop, not a failure. The pipeline
// is closed before Run returns, on every path.
func Run(ctx context.Context, store *index.Store, pl *pipeline.Pipeline, opts Options, logger *slog.Logger, collector *stats.Collector) error {
	logger.Debug("query", "query", opts.Query)

	msgs, err := store.Search(ctx, opts.Query)
	if err != nil {
		_ = pl.Close()
		return fmt.Errorf("search: %w", err)
	}

	if len(msgs) == 0 {
		logger.Error("query returned no results", "query", opts.Query)
		return pl.Close()
	}

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			_ = pl.Close()
			return err
		}

		env := envelope.New(msg, opts.Envelope)

		if opts.Filter != nil && !opts.Filter.Matches(env) {
			collector.Filtered()
			continue
		}

		if err := msg.Freeze(); err != nil {
			_ = pl.Close()
			return err
		}

		if err := pl.Submit(env); err != nil {
			collector.Error(err)
			_ = msg.Discard()
			_ = pl.Close()
			return fmt.Errorf("message %s: %w", msg.MessageID(), err)
		}

		if err := msg.Thaw(); err != nil {
			_ = pl.Close()
			return err
		}

		collector.Processed()
	}

	if err := pl.Close(); err != nil {
		return err
	}

	logger.Info("run completed", append(collector.Snapshot().LogAttrs(), "duration", collector.Duration())...)
	return nil
}
