// Package stage holds the concrete pipeline transformations and terminals.
package stage

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/pipeline"
	"github.com/ecarter/tagsync/stats"
)

// Reconcile aligns index tags with the translated X-Keywords list. A message
// without the keyword header is skipped, not failed.
func Reconcile(collector *stats.Collector) pipeline.Stage {
	return pipeline.NewStageFunc("reconcile", func(m *envelope.Message) (*envelope.Message, error) {
		added, removed, err := m.ReconcileLabels()
		if err != nil {
			if errors.Is(err, envelope.ErrNoKeywordHeader) {
				if collector != nil {
					collector.Skipped()
				}
				return m, nil
			}
			return nil, err
		}
		if collector != nil {
			collector.Reconciled(len(added), len(removed))
		}
		return m, nil
	})
}

// PushKeywords writes the translated tag set back into the mail file. In
// debug mode, when the two label sets differ, a structured record of both
// goes out before the change is applied; messages already in sync stay
// silent.
func PushKeywords(logger *slog.Logger, debug bool, collector *stats.Collector) pipeline.Stage {
	return pipeline.NewStageFunc("push-keywords", func(m *envelope.Message) (*envelope.Message, error) {
		if debug && logger != nil {
			inSync, err := m.KeywordsInSync()
			if err == nil && !inSync {
				tags, terr := m.Tags()
				keywords, kerr := m.Keywords()
				if terr == nil && kerr == nil {
					logger.Info("pushing keywords",
						"from", m.From(),
						"subject", m.Subject(),
						"tags", strings.Join(tags, ","),
						"keywords", strings.Join(keywords, ","))
				}
			}
		}

		changed, err := m.PushKeywords()
		if err != nil {
			if errors.Is(err, envelope.ErrNoKeywordHeader) {
				if collector != nil {
					collector.Skipped()
				}
				return m, nil
			}
			return nil, err
		}
		if changed && collector != nil {
			collector.KeywordsPushed()
		}
		return m, nil
	})
}

// StripTransient removes one fixed transient marker tag unconditionally.
// Removing an absent tag is already a no-op at the index, so the stage is
// idempotent.
func StripTransient(tag string) pipeline.Stage {
	return pipeline.NewStageFunc("strip-transient", func(m *envelope.Message) (*envelope.Message, error) {
		if err := m.RemoveTag(tag); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// DeriveMention adds the derived tag when the marker substring occurs in the
// message body.
func DeriveMention(marker, tag string) pipeline.Stage {
	return pipeline.NewStageFunc("derive-mention", func(m *envelope.Message) (*envelope.Message, error) {
		if marker == "" || !strings.Contains(m.Body(), marker) {
			return m, nil
		}
		if err := m.AddTag(tag); err != nil {
			return nil, err
		}
		return m, nil
	})
}
