package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/imapstore"
)

var (
	imapHost     string
	imapPort     int
	imapUser     string
	imapPass     string
	imapTLS      bool
	imapInsecure bool
	imapMailbox  string
)

var pushIMAPCmd = &cobra.Command{
	Use:   "push-imap <query>",
	Short: "Mirror the tags of matched messages onto an IMAP server as flags",
	Long: `push-imap connects to an IMAP server, locates each matched message by
its Message-Id, and stores the flag set derived from its tags. The unread
tag is inverted: messages without it are marked \Seen.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, store, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if imapPass == "" {
			imapPass = os.Getenv("IMAP_PASS")
		}
		if imapPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}

		pusher, err := imapstore.NewPusher(imapstore.Options{
			Host:               imapHost,
			Port:               imapPort,
			Username:           imapUser,
			Password:           imapPass,
			UseTLS:             imapTLS,
			InsecureSkipVerify: imapInsecure,
			Mailbox:            imapMailbox,
			DryRun:             cfg.DryRun,
		}, store, logger)
		if err != nil {
			return err
		}

		logger.Info("starting push-imap", "query", args[0], "host", imapHost, "mailbox", imapMailbox, "dryRun", cfg.DryRun)
		pushed, err := pusher.Push(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		logger.Info("push-imap completed", "pushed", pushed)
		return nil
	},
}

func init() {
	pushIMAPCmd.Flags().StringVar(&imapHost, "imap-host", "", "IMAP server hostname")
	pushIMAPCmd.Flags().IntVar(&imapPort, "imap-port", 993, "IMAP server port")
	pushIMAPCmd.Flags().StringVar(&imapUser, "imap-user", "", "IMAP username")
	pushIMAPCmd.Flags().StringVar(&imapPass, "imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	pushIMAPCmd.Flags().BoolVar(&imapTLS, "imap-tls", true, "Use TLS for the IMAP connection")
	pushIMAPCmd.Flags().BoolVar(&imapInsecure, "imap-insecure", false, "Skip TLS certificate verification")
	pushIMAPCmd.Flags().StringVar(&imapMailbox, "imap-mailbox", "INBOX", "Mailbox holding the messages")
	_ = pushIMAPCmd.MarkFlagRequired("imap-host")
	_ = pushIMAPCmd.MarkFlagRequired("imap-user")
	rootCmd.AddCommand(pushIMAPCmd)
}
