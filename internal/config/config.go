// Package config loads project configuration from .verso.yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up at the workspace root.
const DefaultFileName = ".verso.yaml"

// Config holds the versioning settings for one workspace.
type Config struct {
	Strategy           string `yaml:"strategy"`
	Propagate          bool   `yaml:"propagate"`
	FailOnCycles       bool   `yaml:"failOnCycles"`
	ChangesetDir       string `yaml:"changesetDir"`
	TagTemplate        string `yaml:"tagTemplate"`
	UnifiedTagTemplate string `yaml:"unifiedTagTemplate"`
	SnapshotTemplate   string `yaml:"snapshotTemplate"`
	PrereleaseTag      string `yaml:"prereleaseTag"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Strategy:           "independent",
		Propagate:          true,
		FailOnCycles:       false,
		ChangesetDir:       ".verso/changesets",
		TagTemplate:        "{name}@{version}",
		UnifiedTagTemplate: "v{version}",
		SnapshotTemplate:   "{version}-{branch}.{short_commit}",
		PrereleaseTag:      "next",
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.ChangesetDir == "" {
		cfg.ChangesetDir = Default().ChangesetDir
	}
	if cfg.TagTemplate == "" {
		cfg.TagTemplate = Default().TagTemplate
	}
	if cfg.UnifiedTagTemplate == "" {
		cfg.UnifiedTagTemplate = Default().UnifiedTagTemplate
	}
	if cfg.SnapshotTemplate == "" {
		cfg.SnapshotTemplate = Default().SnapshotTemplate
	}
	return cfg, nil
}
