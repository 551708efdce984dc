package classify

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depsync/pkg/errors"
	"github.com/matzehuels/depsync/pkg/manifest"
)

// DefaultConfigName is the config file looked up in the project root.
const DefaultConfigName = ".depsync.toml"

// Config holds the user-supplied classification policy.
//
// All name sets are matched after separator normalization, so excluding
// "internal-crate" also excludes references written as "internal_crate".
type Config struct {
	// Exclude lists crates dropped from analysis entirely.
	Exclude []string `toml:"exclude"`
	// Essential lists crates never auto-removed, merged with the built-in
	// essential set.
	Essential []string `toml:"essential"`
	// DevOnly lists crates always placed in [dev-dependencies].
	DevOnly []string `toml:"dev_only"`
	// SkipTests drops test-origin usage before aggregation.
	SkipTests bool `toml:"skip_tests"`

	exclude   map[string]bool
	essential map[string]bool
	devOnly   map[string]bool
}

// LoadConfig reads the config file at path. A missing file yields the
// default (empty) config; a malformed file is fatal at startup.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.index()
		return &cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	cfg.index()
	return &cfg, nil
}

// LoadDefaultConfig reads DefaultConfigName from the project root.
func LoadDefaultConfig(root string) (*Config, error) {
	return LoadConfig(filepath.Join(root, DefaultConfigName))
}

// index builds the normalized lookup sets.
func (c *Config) index() {
	c.exclude = normalizeSet(c.Exclude)
	c.essential = normalizeSet(c.Essential)
	c.devOnly = normalizeSet(c.DevOnly)
}

// IsExcluded reports whether name is in the exclude set.
func (c *Config) IsExcluded(name string) bool {
	return c.exclude[manifest.Normalize(name)]
}

// IsEssential reports whether name is in the effective essential set
// (built-in essentials union the config set).
func (c *Config) IsEssential(name string) bool {
	norm := manifest.Normalize(name)
	return essentialCrates[norm] || c.essential[norm]
}

// IsDevOnly reports whether name is forced into [dev-dependencies].
func (c *Config) IsDevOnly(name string) bool {
	return c.devOnly[manifest.Normalize(name)]
}

func normalizeSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[manifest.Normalize(n)] = true
	}
	return set
}
