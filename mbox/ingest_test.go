package mbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecarter/tagsync/index"
)

const testArchive = `From alice@example.com Mon Jan  2 15:04:05 2023
From: Alice <alice@example.com>
Subject: first
Message-Id: <one@example.com>
X-Keywords: \Inbox

Hello there.

From bob@example.com Mon Jan  2 16:04:05 2023
From: Bob <bob@example.com>
Subject: no id

This one has no Message-Id and is skipped.

From carol@example.com Mon Jan  2 17:04:05 2023
From: Carol <carol@example.com>
Subject: second
Message-Id: <two@example.com>

Bye.
`

func TestImport(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive.mbox")
	if err := os.WriteFile(archive, []byte(testArchive), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	store, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	opts := Options{
		Path:        archive,
		Maildir:     filepath.Join(dir, "mail"),
		InitialTags: []string{"new"},
	}

	imported, err := Import(ctx, opts, store, nil)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2 (message without id skipped)", imported)
	}

	msgs, err := store.Search(ctx, "tag:new")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("indexed %d messages, want 2", len(msgs))
	}

	if msgs[0].MessageID() != "one@example.com" || msgs[1].MessageID() != "two@example.com" {
		t.Errorf("message ids = %s, %s", msgs[0].MessageID(), msgs[1].MessageID())
	}

	for _, m := range msgs {
		raw, err := os.ReadFile(m.Filename())
		if err != nil {
			t.Fatalf("read %s: %v", m.Filename(), err)
		}
		if len(raw) == 0 {
			t.Errorf("mail file %s is empty", m.Filename())
		}
	}
}

func TestImport_SkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive.mbox")
	if err := os.WriteFile(archive, []byte(testArchive), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	store, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	opts := Options{Path: archive, Maildir: filepath.Join(dir, "mail")}

	if _, err := Import(ctx, opts, store, nil); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	imported, err := Import(ctx, opts, store, nil)
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if imported != 0 {
		t.Errorf("second import added %d messages, want 0", imported)
	}

	n, err := store.Count(ctx, "*")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("index holds %d messages, want 2", n)
	}
}

func TestImport_MissingArchive(t *testing.T) {
	store, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	_, err = Import(context.Background(), Options{Path: "/does/not/exist", Maildir: t.TempDir()}, store, nil)
	if err == nil {
		t.Error("expected error for missing archive")
	}
}
