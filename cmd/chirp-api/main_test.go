package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestReadConfigFileRejectsMissingExplicitPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	err := readConfigFile(viper.New(), missing)
	if err == nil {
		t.Fatalf("expected error for missing config file %s", missing)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestReadConfigFileRejectsUnparsableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: [\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := readConfigFile(viper.New(), path); err == nil {
		t.Fatal("expected parse error for malformed config file")
	}
}

func TestReadConfigFileLoadsExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chirp.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	configViper := viper.New()
	if err := readConfigFile(configViper, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := configViper.GetString("http.address"); got != ":9090" {
		t.Fatalf("expected address from file, got %q", got)
	}
}

func TestReadConfigFileToleratesAbsentDiscoveredFile(t *testing.T) {
	configViper := viper.New()
	configViper.AddConfigPath(t.TempDir())

	if err := readConfigFile(configViper, ""); err != nil {
		t.Fatalf("expected no error without a config file, got %v", err)
	}
}
