package stage

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/label"
	"github.com/ecarter/tagsync/stats"
)

type fakeHandle struct {
	filename string
	tags     map[string]struct{}
	mutated  int
}

func newFakeHandle(filename string, tags ...string) *fakeHandle {
	h := &fakeHandle{filename: filename, tags: make(map[string]struct{})}
	for _, t := range tags {
		h.tags[t] = struct{}{}
	}
	return h
}

func (h *fakeHandle) Tags() ([]string, error) {
	var tags []string
	for t := range h.tags {
		tags = append(tags, t)
	}
	return tags, nil
}

func (h *fakeHandle) AddTag(tag string) error {
	h.mutated++
	h.tags[tag] = struct{}{}
	return nil
}

func (h *fakeHandle) RemoveTag(tag string) error {
	h.mutated++
	delete(h.tags, tag)
	return nil
}

func (h *fakeHandle) Filename() string  { return h.filename }
func (h *fakeHandle) MessageID() string { return "test@example" }

func writeMailFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msg.eml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func testEnvelope(t *testing.T, content string, h *fakeHandle, opts envelope.Options) *envelope.Message {
	t.Helper()
	if h.filename == "" {
		h.filename = writeMailFile(t, content)
	}
	if opts.Mapping == nil {
		m, err := label.NewMapping(label.GmailTable)
		if err != nil {
			t.Fatalf("NewMapping() error = %v", err)
		}
		opts.Mapping = m
	}
	return envelope.New(h, opts)
}

const mailFixture = `From: Bob <bob@example.com>
Subject: ping
X-Keywords: \Inbox
Content-Type: text/plain; charset=utf-8
MIME-Version: 1.0

hey @bob, see you
`

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		w    int
		want string
	}{
		{"a  b   c", 10, "a b c"},
		{strings.Repeat("x", 20), 10, "xxxxxxx..."},
		{"", 10, ""},
		{"anything", 3, ""},
		{"anything", 4, ""},
		{"long subject line", -1, "long subject line"},
		{"short", 6, "short"},
	}

	for _, tt := range tests {
		if got := Truncate(tt.s, tt.w); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.w, got, tt.want)
		}
	}
	if got := Truncate(strings.Repeat("x", 20), 10); len(got) != 10 {
		t.Errorf("clipped length = %d, want 10", len(got))
	}
}

func TestStripTransient(t *testing.T) {
	h := newFakeHandle("", "new", "inbox")
	m := testEnvelope(t, mailFixture, h, envelope.Options{})

	st := StripTransient("new")
	if _, err := st.Apply(m); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := h.tags["new"]; ok {
		t.Error("transient tag still present")
	}

	// Removing an absent tag is a no-op, not an error.
	if _, err := st.Apply(m); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
}

func TestDeriveMention(t *testing.T) {
	h := newFakeHandle("")
	m := testEnvelope(t, mailFixture, h, envelope.Options{})

	if _, err := DeriveMention("@bob", "mention").Apply(m); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := h.tags["mention"]; !ok {
		t.Error("mention tag not derived from body marker")
	}

	h2 := newFakeHandle("")
	m2 := testEnvelope(t, mailFixture, h2, envelope.Options{})
	if _, err := DeriveMention("@carol", "mention").Apply(m2); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(h2.tags) != 0 {
		t.Errorf("tags = %v, want none without marker", h2.tags)
	}
}

func TestReconcile_SkipsMissingHeader(t *testing.T) {
	h := newFakeHandle("", "stale")
	h.filename = writeMailFile(t, "From: a@b\nSubject: x\n\nbody\n")
	m := testEnvelope(t, "", h, envelope.Options{})

	collector := stats.NewCollector()
	out, err := Reconcile(collector).Apply(m)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out != m {
		t.Error("envelope not forwarded unchanged")
	}
	if h.mutated != 0 {
		t.Error("message mutated despite missing keyword header")
	}
	if collector.Snapshot().Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", collector.Snapshot().Skipped)
	}
}

func TestReconcile_CountsEdits(t *testing.T) {
	h := newFakeHandle("", "stale")
	m := testEnvelope(t, mailFixture, h, envelope.Options{})

	collector := stats.NewCollector()
	if _, err := Reconcile(collector).Apply(m); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	summary := collector.Snapshot()
	if summary.Reconciled != 1 || summary.TagsAdded != 1 || summary.TagsRemoved != 1 {
		t.Errorf("summary = %+v, want 1 reconciled, 1 added, 1 removed", summary)
	}
}

func TestPushKeywords_CountsChanges(t *testing.T) {
	h := newFakeHandle("", "sent")
	m := testEnvelope(t, mailFixture, h, envelope.Options{})

	collector := stats.NewCollector()
	if _, err := PushKeywords(nil, false, collector).Apply(m); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if collector.Snapshot().KeywordsPushed != 1 {
		t.Errorf("KeywordsPushed = %d, want 1", collector.Snapshot().KeywordsPushed)
	}
}

func TestPushKeywords_DebugRecordOnlyWhenSetsDiffer(t *testing.T) {
	t.Run("silent for a message already in sync", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		h := newFakeHandle("", "inbox")
		m := testEnvelope(t, mailFixture, h, envelope.Options{})

		if _, err := PushKeywords(logger, true, nil).Apply(m); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("debug record emitted for equal label sets:\n%s", buf.String())
		}
	})

	t.Run("records both sets before a change", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		h := newFakeHandle("", "sent")
		m := testEnvelope(t, mailFixture, h, envelope.Options{})

		if _, err := PushKeywords(logger, true, nil).Apply(m); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		out := buf.String()
		if strings.Count(out, "\n") != 1 {
			t.Fatalf("expected exactly one record, got:\n%s", out)
		}
		for _, want := range []string{"pushing keywords", "tags=sent", `\Inbox`} {
			if !strings.Contains(out, want) {
				t.Errorf("record missing %q:\n%s", want, out)
			}
		}
	})
}

func TestReport(t *testing.T) {
	t.Run("silent without debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		h := newFakeHandle("", "inbox")
		m := testEnvelope(t, mailFixture, h, envelope.Options{})

		r := Report(logger, false, 20, 40)
		if err := r.Consume(m); err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("report emitted output outside debug mode: %s", buf.String())
		}
	})

	t.Run("one line per message in debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		h := newFakeHandle("", "inbox")
		m := testEnvelope(t, mailFixture, h, envelope.Options{Debug: true, DryRun: true})
		if err := m.AddTag("mention"); err != nil {
			t.Fatalf("AddTag() error = %v", err)
		}

		r := Report(logger, true, 40, 40)
		if err := r.Consume(m); err != nil {
			t.Fatalf("Consume() error = %v", err)
		}

		out := buf.String()
		if strings.Count(out, "\n") != 1 {
			t.Errorf("expected exactly one line, got:\n%s", out)
		}
		for _, want := range []string{"bob@example.com", "ping", "inbox", "+mention"} {
			if !strings.Contains(out, want) {
				t.Errorf("report line missing %q:\n%s", want, out)
			}
		}
	})
}
