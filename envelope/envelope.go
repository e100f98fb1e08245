// Package envelope wraps one indexed message for a single pipeline pass. It
// gives stages a lazily parsed view of the mail file, access to the
// X-Keywords list an external sync tool maintains inside it, and tag
// mutations that honor the debug and dry-run modes.
package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/ecarter/tagsync/label"
)

var (
	// ErrNoKeywordHeader means the mail file carries no X-Keywords marker.
	// Recoverable: the caller skips reconciliation for that message.
	ErrNoKeywordHeader = errors.New("no X-Keywords header in mail file")

	// ErrEmptyTag is a programming-contract violation, not bad input.
	ErrEmptyTag = errors.New("tag is empty")
)

var keywordMarker = []byte("X-Keywords:")

// Handle is the slice of the index's message surface the envelope needs. It
// is owned by the index; the envelope never manages its lifetime.
type Handle interface {
	Tags() ([]string, error)
	AddTag(tag string) error
	RemoveTag(tag string) error
	Filename() string
	MessageID() string
}

// Options configures every envelope of a run. Immutable once built.
type Options struct {
	// Debug records would-be tag edits in the observation sets.
	Debug bool
	// DryRun suppresses mutations of the index and the mail file.
	DryRun bool
	// Exclude lists index-maintained flags that must not be treated as
	// externally synced labels.
	Exclude []string
	// Mapping translates between the external label vocabulary and tag names.
	Mapping *label.Mapping
	// MaxSignatureLines bounds the trailing block treated as a signature.
	// Zero means the default of 10.
	MaxSignatureLines int

	Logger *slog.Logger
}

// Message is the per-message unit of work pushed through the pipeline.
// Created per query result, reused across all stages for one message,
// discarded after the terminal consumer runs.
type Message struct {
	handle  Handle
	opts    Options
	exclude map[string]struct{}

	parsed *parsedMail

	added   map[string]struct{}
	removed map[string]struct{}
}

// New wraps an index handle for one pipeline pass.
func New(h Handle, opts Options) *Message {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, t := range opts.Exclude {
		exclude[t] = struct{}{}
	}
	return &Message{
		handle:  h,
		opts:    opts,
		exclude: exclude,
		added:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Handle exposes the wrapped index handle for collaborator calls the
// envelope does not cover.
func (m *Message) Handle() Handle { return m.handle }

// Tags returns the message's index tags minus the exclusion set, sorted.
func (m *Message) Tags() ([]string, error) {
	set, err := m.tagSet()
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func (m *Message) tagSet() (map[string]struct{}, error) {
	tags, err := m.handle.Tags()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, skip := m.exclude[t]; skip {
			continue
		}
		set[t] = struct{}{}
	}
	return set, nil
}

// AddTag adds a tag to the index entry. In debug mode the edit is also
// recorded; in dry-run mode the index is left untouched.
func (m *Message) AddTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("add tag on %s: %w", m.handle.MessageID(), ErrEmptyTag)
	}
	if m.opts.Debug {
		m.added["+"+tag] = struct{}{}
	}
	if m.opts.DryRun {
		return nil
	}
	return m.handle.AddTag(tag)
}

// RemoveTag removes a tag from the index entry, with the same debug and
// dry-run behavior as AddTag.
func (m *Message) RemoveTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("remove tag on %s: %w", m.handle.MessageID(), ErrEmptyTag)
	}
	if m.opts.Debug {
		m.removed["-"+tag] = struct{}{}
	}
	if m.opts.DryRun {
		return nil
	}
	return m.handle.RemoveTag(tag)
}

// Added returns the debug observation set of additions, sorted.
func (m *Message) Added() []string { return sortedKeys(m.added) }

// Removed returns the debug observation set of removals, sorted.
func (m *Message) Removed() []string { return sortedKeys(m.removed) }

// Keywords reads the external label list from the X-Keywords line of the
// mail file. ErrNoKeywordHeader if the marker is absent.
func (m *Message) Keywords() ([]string, error) {
	raw, err := os.ReadFile(m.handle.Filename())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.handle.Filename(), err)
	}

	start, end, err := keywordRange(raw)
	if err != nil {
		return nil, err
	}

	var keywords []string
	for _, kw := range strings.Split(string(raw[start:end]), ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords, nil
}

// SetKeywords replaces the X-Keywords value in the mail file in place,
// preserving every byte outside it, and drops the cached parsed view. The
// splice stays in raw bytes throughout; labels must be ASCII-clean.
func (m *Message) SetKeywords(keywords []string) error {
	path := m.handle.Filename()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	start, end, err := keywordRange(raw)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(raw))
	buf.Write(raw[:start])
	buf.WriteByte(' ')
	buf.WriteString(strings.Join(keywords, ","))
	buf.Write(raw[end:])

	if err := os.WriteFile(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	m.parsed = nil
	return nil
}

// keywordRange locates the byte range of the X-Keywords value: everything
// after the marker up to the next newline (or end of file).
func keywordRange(raw []byte) (start, end int, err error) {
	idx := bytes.Index(raw, keywordMarker)
	if idx == -1 {
		return 0, 0, ErrNoKeywordHeader
	}
	start = idx + len(keywordMarker)
	if nl := bytes.IndexByte(raw[start:], '\n'); nl >= 0 {
		end = start + nl
	} else {
		end = len(raw)
	}
	return start, end, nil
}

// ReconcileLabels computes the minimal edit set between the index tags and
// the translated external labels and applies it: one RemoveTag per tag only
// the index has, one AddTag per label only the file has. Running it again on
// a reconciled message issues zero mutating calls. ErrNoKeywordHeader
// propagates with the message untouched.
func (m *Message) ReconcileLabels() (added, removed []string, err error) {
	tags, err := m.tagSet()
	if err != nil {
		return nil, nil, err
	}

	keywords, err := m.Keywords()
	if err != nil {
		return nil, nil, err
	}

	want := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		want[m.opts.Mapping.Translate(kw)] = struct{}{}
	}

	for _, tag := range sortedKeys(tags) {
		if _, ok := want[tag]; ok {
			continue
		}
		if err := m.RemoveTag(tag); err != nil {
			return added, removed, err
		}
		removed = append(removed, tag)
	}

	for _, l := range sortedKeys(want) {
		if _, ok := tags[l]; ok {
			continue
		}
		if err := m.AddTag(l); err != nil {
			return added, removed, err
		}
		added = append(added, l)
	}

	return added, removed, nil
}

// KeywordsInSync reports whether the index tag set and the translated
// X-Keywords list already agree. ErrNoKeywordHeader propagates.
func (m *Message) KeywordsInSync() (bool, error) {
	tags, err := m.tagSet()
	if err != nil {
		return false, err
	}

	keywords, err := m.Keywords()
	if err != nil {
		return false, err
	}

	translated := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		translated[m.opts.Mapping.Translate(kw)] = struct{}{}
	}
	return setsEqual(tags, translated), nil
}

// PushKeywords writes the translated index tag set back into the mail file.
// No-op when the two label sets already agree; in dry-run mode the file is
// left untouched but the would-be change is still reported.
func (m *Message) PushKeywords() (changed bool, err error) {
	inSync, err := m.KeywordsInSync()
	if err != nil {
		return false, err
	}
	if inSync {
		return false, nil
	}
	if m.opts.DryRun {
		return true, nil
	}

	tags, err := m.tagSet()
	if err != nil {
		return false, err
	}
	if err := m.SetKeywords(m.opts.Mapping.TranslateAll(sortedKeys(tags))); err != nil {
		return true, err
	}
	return true, nil
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// From returns the sender header of the parsed mail, decoded.
func (m *Message) From() string {
	p, err := m.parse()
	if err != nil {
		return ""
	}
	return p.from
}

// Subject returns the subject header of the parsed mail, decoded.
func (m *Message) Subject() string {
	p, err := m.parse()
	if err != nil {
		return ""
	}
	return p.subject
}

// Body returns the concatenated text/plain parts of the message, each
// charset-decoded and signature-stripped. Used by heuristic stages, so
// parse failures degrade to an empty body rather than an error.
func (m *Message) Body() string {
	p, err := m.parse()
	if err != nil {
		return ""
	}
	return strings.Join(p.textParts, "\n")
}

type parsedMail struct {
	from      string
	subject   string
	textParts []string
}

func (m *Message) parse() (*parsedMail, error) {
	if m.parsed != nil {
		return m.parsed, nil
	}

	f, err := os.Open(m.handle.Filename())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", m.handle.Filename(), err)
	}
	defer f.Close()

	mr, err := mail.CreateReader(f)
	if err != nil {
		if mr == nil {
			return nil, fmt.Errorf("parse %s: %w", m.handle.Filename(), err)
		}
		// Unknown charset and similar header defects still leave a usable
		// reader; decode best-effort.
		m.warn("mail header defect", "file", m.handle.Filename(), "err", err)
	}

	p := &parsedMail{}
	if from, err := mr.Header.Text("From"); err == nil {
		p.from = from
	} else {
		p.from = mr.Header.Get("From")
	}
	if subject, err := mr.Header.Subject(); err == nil {
		p.subject = subject
	} else {
		p.subject = mr.Header.Get("Subject")
	}

	maxSig := m.opts.MaxSignatureLines
	if maxSig == 0 {
		maxSig = defaultMaxSignatureLines
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("parse %s: %w", m.handle.Filename(), err)
			}
			// Fall back to the undecoded bytes of this part.
			m.warn("unknown charset, decoding raw", "file", m.handle.Filename(), "err", err)
		}
		if part == nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if contentType != "text/plain" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			m.warn("read text part", "file", m.handle.Filename(), "err", err)
			continue
		}

		lines := stripSignature(strings.Split(string(body), "\n"), maxSig)
		p.textParts = append(p.textParts, strings.Join(lines, "\n"))
	}

	m.parsed = p
	return p, nil
}

func (m *Message) warn(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Warn(msg, args...)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
