package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/mbox"
)

var (
	importMboxPath string
	importMaildir  string
	importTags     []string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an mbox archive into the maildir and the index",
	Long: `import splits an mbox archive into one file per message under the
maildir's cur/ directory and records each message in the index with the
initial tags. Messages without a Message-Id header, or already present in
the index, are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, store, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := mbox.Options{
			Path:        importMboxPath,
			Maildir:     importMaildir,
			InitialTags: importTags,
		}

		logger.Info("starting import", "mbox", opts.Path, "maildir", opts.Maildir)
		imported, err := mbox.Import(cmd.Context(), opts, store, logger)
		if err != nil {
			return err
		}

		logger.Info("import completed", "imported", imported)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importMboxPath, "mbox", "", "Path of the mbox archive to import")
	importCmd.Flags().StringVar(&importMaildir, "maildir", ".", "Maildir root receiving the message files")
	importCmd.Flags().StringArrayVar(&importTags, "tag", []string{"new"}, "Initial tag for every imported message (repeatable)")
	_ = importCmd.MarkFlagRequired("mbox")
	rootCmd.AddCommand(importCmd)
}
