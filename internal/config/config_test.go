package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, expected defaults", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	content := `strategy: unified
propagate: false
failOnCycles: true
changesetDir: .changes
prereleaseTag: rc
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy != "unified" {
		t.Errorf("Strategy = %s", cfg.Strategy)
	}
	if cfg.Propagate {
		t.Error("Propagate should be false")
	}
	if !cfg.FailOnCycles {
		t.Error("FailOnCycles should be true")
	}
	if cfg.ChangesetDir != ".changes" {
		t.Errorf("ChangesetDir = %s", cfg.ChangesetDir)
	}
	if cfg.PrereleaseTag != "rc" {
		t.Errorf("PrereleaseTag = %s", cfg.PrereleaseTag)
	}
	// Unset fields keep their defaults.
	if cfg.TagTemplate != Default().TagTemplate {
		t.Errorf("TagTemplate = %s", cfg.TagTemplate)
	}
	if cfg.SnapshotTemplate != Default().SnapshotTemplate {
		t.Errorf("SnapshotTemplate = %s", cfg.SnapshotTemplate)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte("strategy: [not, a, string"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
