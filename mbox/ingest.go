// Package mbox populates the message index from an mbox archive: each
// message is written out as an individual mail file and recorded in the
// index with its initial tags.
package mbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/ecarter/tagsync/index"
)

var ErrMessageIDMissing = errors.New("mbox message missing Message-Id header")

type Options struct {
	// Path of the .mbox archive to ingest.
	Path string
	// Maildir is the directory receiving one file per message (under cur/).
	Maildir string
	// InitialTags are applied to every imported message.
	InitialTags []string
}

// Import streams the archive into the maildir and the index. Messages
// without a Message-Id, or already present in the index, are skipped with a
// warning. Returns the number of messages imported.
func Import(ctx context.Context, opts Options, store *index.Store, logger *slog.Logger) (int, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return 0, fmt.Errorf("mbox path is empty")
	}

	curDir := filepath.Join(opts.Maildir, "cur")
	if err := os.MkdirAll(curDir, 0o755); err != nil {
		return 0, fmt.Errorf("create maildir: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	imported := 0

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return imported, nil
			}
			return imported, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return imported, fmt.Errorf("message %d read: %w", idx, err)
		}

		entry, err := parseEntry(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping message", "index", idx, "err", err)
			}
			continue
		}

		known, err := store.Has(ctx, entry.MessageID)
		if err != nil {
			return imported, err
		}
		if known {
			// Overlapping archives re-deliver the same Message-Id.
			if logger != nil {
				logger.Debug("already indexed", "index", idx, "messageID", entry.MessageID)
			}
			continue
		}

		sum := sha256.Sum256(raw)
		filename := filepath.Join(curDir, fmt.Sprintf("%d-%s.eml", idx, hex.EncodeToString(sum[:4])))
		if err := os.WriteFile(filename, raw, 0o644); err != nil {
			return imported, fmt.Errorf("write %s: %w", filename, err)
		}

		entry.Filename = filename
		entry.Tags = opts.InitialTags
		if err := store.Add(ctx, entry); err != nil {
			return imported, err
		}

		imported++
	}
}

func parseEntry(raw []byte) (index.Entry, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return index.Entry{}, err
	}

	id := strings.TrimSpace(msg.Header.Get("Message-Id"))
	if id == "" {
		id = strings.TrimSpace(msg.Header.Get("Message-ID"))
	}
	id = strings.Trim(id, " <>")
	if id == "" {
		return index.Entry{}, ErrMessageIDMissing
	}

	return index.Entry{
		MessageID: id,
		Sender:    msg.Header.Get("From"),
		Subject:   msg.Header.Get("Subject"),
	}, nil
}
