package stage

import (
	"log/slog"
	"strings"

	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/pipeline"
)

type discard struct{}

// Discard is a terminal that consumes and drops every envelope.
func Discard() pipeline.Terminal { return discard{} }

func (discard) Consume(*envelope.Message) error { return nil }
func (discard) Close() error                    { return nil }

type report struct {
	logger       *slog.Logger
	debug        bool
	fromWidth    int
	subjectWidth int
}

// Report is a terminal that emits one line per message: truncated sender and
// subject, the final tag set, and the accumulated observation sets. Silent
// outside debug mode.
func Report(logger *slog.Logger, debug bool, fromWidth, subjectWidth int) pipeline.Terminal {
	return &report{
		logger:       logger,
		debug:        debug,
		fromWidth:    fromWidth,
		subjectWidth: subjectWidth,
	}
}

func (r *report) Consume(m *envelope.Message) error {
	if !r.debug || r.logger == nil {
		return nil
	}

	tags, err := m.Tags()
	if err != nil {
		return err
	}

	changes := append(m.Added(), m.Removed()...)
	r.logger.Info("message",
		"from", Truncate(m.From(), r.fromWidth),
		"subject", Truncate(m.Subject(), r.subjectWidth),
		"tags", strings.Join(tags, ","),
		"changes", strings.Join(changes, ", "))
	return nil
}

func (r *report) Close() error { return nil }

// Truncate collapses internal whitespace and clips s to w bytes, ending in
// an ellipsis marker when clipped. A negative width disables truncation; a
// width of 4 or less always yields the empty string.
func Truncate(s string, w int) string {
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if w < 0 {
		return s
	}
	if w <= 4 {
		return ""
	}
	if len(s) < w {
		return s
	}
	return s[:w-3] + "..."
}
