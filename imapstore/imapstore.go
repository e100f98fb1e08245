// Package imapstore mirrors reconciled index tags onto an IMAP server as
// message flags, locating each message by its Message-Id.
package imapstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/ecarter/tagsync/index"
)

// tagFlags maps index tags to their IMAP flag counterparts. The unread tag
// is inverted: its absence means the message was seen.
var tagFlags = map[string]imapv2.Flag{
	"flagged": imapv2.FlagFlagged,
	"replied": imapv2.FlagAnswered,
	"draft":   imapv2.FlagDraft,
}

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	DryRun             bool
}

type Pusher struct {
	opts   Options
	store  *index.Store
	logger *slog.Logger
}

func NewPusher(opts Options, store *index.Store, logger *slog.Logger) (*Pusher, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("imap port must be between 1 and 65535")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	return &Pusher{opts: opts, store: store, logger: logger}, nil
}

// Push stores the flag set derived from each matched message's tags on the
// server. Messages not found in the mailbox are skipped with a warning.
// Returns the number of messages whose flags were stored.
func (p *Pusher) Push(ctx context.Context, query string) (int, error) {
	msgs, err := p.store.Search(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	if len(msgs) == 0 {
		if p.logger != nil {
			p.logger.Error("query returned no results", "query", query)
		}
		return 0, nil
	}

	client, cleanup, err := p.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	if _, err := client.Select(p.opts.Mailbox, nil).Wait(); err != nil {
		return 0, fmt.Errorf("select %s: %w", p.opts.Mailbox, err)
	}

	pushed := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		tags, err := msg.Tags()
		if err != nil {
			return pushed, err
		}
		flags := flagsForTags(tags)

		if p.opts.DryRun {
			if p.logger != nil {
				p.logger.Info("dry-run store", "messageID", msg.MessageID(), "flags", flags)
			}
			pushed++
			continue
		}

		uids, err := p.findUIDs(client, msg.MessageID())
		if err != nil {
			return pushed, err
		}
		if len(uids) == 0 {
			if p.logger != nil {
				p.logger.Warn("message not in mailbox", "messageID", msg.MessageID(), "mailbox", p.opts.Mailbox)
			}
			continue
		}

		storeCmd := client.Store(imapv2.UIDSetNum(uids...), &imapv2.StoreFlags{
			Op:     imapv2.StoreFlagsSet,
			Silent: true,
			Flags:  flags,
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return pushed, fmt.Errorf("store flags for %s: %w", msg.MessageID(), err)
		}

		pushed++
		if p.logger != nil {
			p.logger.Debug("stored flags", "messageID", msg.MessageID(), "flags", flags)
		}
	}

	return pushed, nil
}

func (p *Pusher) findUIDs(client *imapclient.Client, messageID string) ([]imapv2.UID, error) {
	criteria := &imapv2.SearchCriteria{
		Header: []imapv2.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: "<" + messageID + ">"},
		},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search %s: %w", messageID, err)
	}
	return data.AllUIDs(), nil
}

func (p *Pusher) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
	options := &imapclient.Options{}

	if p.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         p.opts.Host,
			InsecureSkipVerify: p.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if p.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(p.opts.Username, p.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Debug("imap connection established", "address", address, "user", p.opts.Username, "tls", p.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && p.logger != nil {
				p.logger.Warn("imap logout failed", "err", err)
			}
		}
		_ = client.Close()
	}

	return client, cleanup, nil
}

// flagsForTags derives the IMAP flag set for a tag list. The unread tag is
// inverted into \Seen.
func flagsForTags(tags []string) []imapv2.Flag {
	var flags []imapv2.Flag
	unread := false
	for _, tag := range tags {
		if tag == "unread" {
			unread = true
			continue
		}
		if flag, ok := tagFlags[tag]; ok {
			flags = append(flags, flag)
		}
	}
	if !unread {
		flags = append(flags, imapv2.FlagSeen)
	}
	return flags
}
