// Package filter narrows a query result set with regex matching on parsed
// message content, for selections the index term language cannot express.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ecarter/tagsync/envelope"
)

// Options lists the regex patterns to apply. Header patterns run against the
// sender and subject, body patterns against the extracted plain-text body.
// A message matching any pattern passes.
type Options struct {
	Header []string
	Body   []string
}

type Filter struct {
	header []*regexp.Regexp
	body   []*regexp.Regexp
}

func New(opts Options) (*Filter, error) {
	header, err := compilePatterns(opts.Header)
	if err != nil {
		return nil, fmt.Errorf("compile header pattern: %w", err)
	}
	body, err := compilePatterns(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("compile body pattern: %w", err)
	}
	return &Filter{header: header, body: body}, nil
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return len(f.header) > 0 || len(f.body) > 0
}

// Matches reports whether the message passes the filter. An inactive filter
// passes everything.
func (f *Filter) Matches(m *envelope.Message) bool {
	if !f.Active() {
		return true
	}

	if len(f.header) > 0 {
		headerText := m.From() + "\n" + m.Subject()
		if matchAny(f.header, headerText) {
			return true
		}
	}
	if len(f.body) > 0 && matchAny(f.body, m.Body()) {
		return true
	}

	return false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
