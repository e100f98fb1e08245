package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "tagsync"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error = %v", args, err)
	}
	return cmd
}

func TestLoad_DBPathFromEnv(t *testing.T) {
	t.Setenv("TAGSYNC_DB", "/tmp/from-env/index.db")
	cmd := newTestCmd(t)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/tmp/from-env/index.db" {
		t.Errorf("DBPath = %q, want the TAGSYNC_DB value", cfg.DBPath)
	}
}

func TestLoad_DBFlagOverridesEnv(t *testing.T) {
	t.Setenv("TAGSYNC_DB", "/tmp/from-env/index.db")
	cmd := newTestCmd(t, "--db", "/tmp/explicit/index.db")

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/tmp/explicit/index.db" {
		t.Errorf("DBPath = %q, want the explicit flag value", cfg.DBPath)
	}
}

func TestLoad_DBPathDefault(t *testing.T) {
	t.Setenv("TAGSYNC_DB", "")
	cmd := newTestCmd(t)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Base(cfg.DBPath) != "index.db" || filepath.Base(filepath.Dir(cfg.DBPath)) != ".tagsync" {
		t.Errorf("DBPath = %q, want <home>/.tagsync/index.db", cfg.DBPath)
	}
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	cmd := newTestCmd(t, "--log-level", "verbose")
	if _, err := Load(cmd); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestLoad_NormalizesWarningLevel(t *testing.T) {
	cmd := newTestCmd(t, "--log-level", "WARNING")
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}
