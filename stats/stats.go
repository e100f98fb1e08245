// Package stats accumulates run counters. The pipeline pass is strictly
// sequential, so the collector is a plain struct updated in place rather
// than an event channel.
package stats

import (
	"time"

	"github.com/pterm/pterm"
)

// Summary is the final tally of one run.
type Summary struct {
	Processed      int
	Reconciled     int
	Skipped        int
	Filtered       int
	TagsAdded      int
	TagsRemoved    int
	KeywordsPushed int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"processed", s.Processed,
		"reconciled", s.Reconciled,
		"skipped", s.Skipped,
		"filtered", s.Filtered,
		"tagsAdded", s.TagsAdded,
		"tagsRemoved", s.TagsRemoved,
		"keywordsPushed", s.KeywordsPushed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector gathers counters for one run.
type Collector struct {
	summary Summary
	started time.Time
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) Processed()              { c.summary.Processed++ }
func (c *Collector) Skipped()                { c.summary.Skipped++ }
func (c *Collector) Filtered()               { c.summary.Filtered++ }
func (c *Collector) KeywordsPushed()         { c.summary.KeywordsPushed++ }
func (c *Collector) Snapshot() Summary       { return c.summary }
func (c *Collector) Duration() time.Duration { return time.Since(c.started) }

// Reconciled records one message whose tag state was edited, with the size
// of each edit set.
func (c *Collector) Reconciled(added, removed int) {
	if added == 0 && removed == 0 {
		return
	}
	c.summary.Reconciled++
	c.summary.TagsAdded += added
	c.summary.TagsRemoved += removed
}

func (c *Collector) Error(err error) {
	c.summary.Errors++
	if err != nil {
		c.summary.LastError = err
	}
}

// PrintSummary renders the human-facing end-of-run section. Only used for
// interactive runs at info level; structured logging carries the same data
// via LogAttrs.
func (c *Collector) PrintSummary() {
	summary := c.summary

	pterm.Println()
	pterm.DefaultSection.Println("Run Summary")
	pterm.Info.Printf("Duration: %v\n", c.Duration())
	pterm.Info.Printf("Processed: %d\n", summary.Processed)
	pterm.Info.Printf("Reconciled: %d\n", summary.Reconciled)
	pterm.Info.Printf("Skipped (no keyword header): %d\n", summary.Skipped)
	pterm.Info.Printf("Filtered out: %d\n", summary.Filtered)
	pterm.Info.Printf("Tags added: %d\n", summary.TagsAdded)
	pterm.Info.Printf("Tags removed: %d\n", summary.TagsRemoved)
	pterm.Info.Printf("Keywords pushed: %d\n", summary.KeywordsPushed)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}
