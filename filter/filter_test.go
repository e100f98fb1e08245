package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ecarter/tagsync/envelope"
	"github.com/ecarter/tagsync/label"
)

type fakeHandle struct {
	filename string
}

func (h *fakeHandle) Tags() ([]string, error) { return nil, nil }
func (h *fakeHandle) AddTag(string) error     { return nil }
func (h *fakeHandle) RemoveTag(string) error  { return nil }
func (h *fakeHandle) Filename() string        { return h.filename }
func (h *fakeHandle) MessageID() string       { return "test@example" }

func testMessage(t *testing.T, content string) *envelope.Message {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msg.eml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	m, err := label.NewMapping(label.GmailTable)
	if err != nil {
		t.Fatalf("NewMapping() error = %v", err)
	}
	return envelope.New(&fakeHandle{filename: path}, envelope.Options{Mapping: m})
}

const testMail = `From: Alice <alice@example.com>
Subject: Weekly report
Content-Type: text/plain; charset=utf-8
MIME-Version: 1.0

numbers are up, details attached
`

func TestMatches_HeaderPattern(t *testing.T) {
	f, err := New(Options{Header: []string{"Weekly"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Matches(testMessage(t, testMail)) {
		t.Error("expected message to pass (subject matches)")
	}

	other := testMessage(t, "From: bob@example.com\nSubject: unrelated\n\nhi\n")
	if f.Matches(other) {
		t.Error("expected message to be dropped (no header match)")
	}
}

func TestMatches_BodyPattern(t *testing.T) {
	f, err := New(Options{Body: []string{"details attached"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Matches(testMessage(t, testMail)) {
		t.Error("expected message to pass (body matches)")
	}
}

func TestMatches_InactiveFilterPassesEverything(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.Active() {
		t.Error("filter without patterns reports active")
	}
	if !f.Matches(testMessage(t, testMail)) {
		t.Error("inactive filter dropped a message")
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	if _, err := New(Options{Header: []string{"("}}); err == nil {
		t.Error("expected error for invalid regex")
	}
}
