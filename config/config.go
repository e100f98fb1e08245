package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecarter/tagsync/label"
)

// Config captures the global command-line options shared by all subcommands.
type Config struct {
	DBPath        string
	Debug         bool
	DryRun        bool
	LogLevel      string
	LogDir        string
	ExcludeTags   []string
	FromWidth     int
	SubjectWidth  int
	MentionMarker string
	MentionTag    string
	MatchHeader   []string
	MatchBody     []string
}

// RegisterFlags attaches the global flags to the root command. The db flag
// stays empty here so Load can resolve the TAGSYNC_DB env var before the
// default path.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("db", "", "Path to the message index database (default $TAGSYNC_DB, else ~/.tagsync/index.db)")
	flags.Bool("debug", false, "Record and report would-be tag edits per message")
	flags.Bool("dry-run", false, "Compute edits without applying them to the index or mail files")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for timestamped log files (empty: stdout only)")
	flags.StringArray("exclude-tag", label.MaildirTags, "Index-maintained flag to exclude from label reconciliation (repeatable)")
	flags.Int("from-width", 20, "Display width for the sender column in reports (-1: no truncation)")
	flags.Int("subject-width", 60, "Display width for the subject column in reports (-1: no truncation)")
	flags.String("mention-marker", "", "Substring whose presence in a body derives the mention tag (empty: stage disabled)")
	flags.String("mention-tag", "mention", "Tag added when the mention marker is found")
	flags.StringArray("match-header", nil, "Regex applied to sender/subject; non-matching messages are skipped (repeatable)")
	flags.StringArray("match-body", nil, "Regex applied to the message body; non-matching messages are skipped (repeatable)")

	return nil
}

// Load converts the parsed Cobra flags into a Config struct with validation.
func Load(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	dbPath, err := flags.GetString("db")
	if err != nil {
		return Config{}, err
	}
	debug, err := flags.GetBool("debug")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	excludeTags, err := flags.GetStringArray("exclude-tag")
	if err != nil {
		return Config{}, err
	}
	fromWidth, err := flags.GetInt("from-width")
	if err != nil {
		return Config{}, err
	}
	subjectWidth, err := flags.GetInt("subject-width")
	if err != nil {
		return Config{}, err
	}
	mentionMarker, err := flags.GetString("mention-marker")
	if err != nil {
		return Config{}, err
	}
	mentionTag, err := flags.GetString("mention-tag")
	if err != nil {
		return Config{}, err
	}
	matchHeader, err := flags.GetStringArray("match-header")
	if err != nil {
		return Config{}, err
	}
	matchBody, err := flags.GetStringArray("match-body")
	if err != nil {
		return Config{}, err
	}

	if dbPath == "" {
		dbPath = os.Getenv("TAGSYNC_DB")
	}
	if dbPath == "" {
		dbPath, err = defaultDBPath()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		DBPath:        filepath.Clean(dbPath),
		Debug:         debug,
		DryRun:        dryRun,
		LogLevel:      logLevel,
		LogDir:        logDir,
		ExcludeTags:   excludeTags,
		FromWidth:     fromWidth,
		SubjectWidth:  subjectWidth,
		MentionMarker: mentionMarker,
		MentionTag:    mentionTag,
		MatchHeader:   matchHeader,
		MatchBody:     matchBody,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	if cfg.MentionTag == "" {
		return fmt.Errorf("--mention-tag must not be empty")
	}

	return nil
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tagsync", "index.db"), nil
}
