// Package config handles hotswap.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/hotswap/reload"
)

// FileName is the name of the configuration file.
const FileName = "hotswap.toml"

// Config represents a hotswap.toml file.
type Config struct {
	Units     Units     `toml:"units"`
	Policy    Policy    `toml:"policy"`
	Log       Log       `toml:"log"`
	Server    Server    `toml:"server"`
	Journal   Journal   `toml:"journal"`
	Telemetry Telemetry `toml:"telemetry"`
	Reload    Reload    `toml:"reload"`

	// Dir is the directory containing the hotswap.toml file (set at load time).
	Dir string `toml:"-"`
}

// Units configures where the serve command finds the units it loads.
type Units struct {
	Dirs  []string `toml:"dirs"`
	Scope string   `toml:"scope"`
}

// Policy selects the reload-aware types by name. Patterns use path.Match
// syntax; an empty include list accepts everything not excluded.
type Policy struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the control service.
type Server struct {
	Addr string `toml:"addr"`
}

// Journal configures the reload journal. An empty path disables it.
type Journal struct {
	Path string `toml:"path"`
}

// Telemetry configures trace export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `toml:"endpoint"`
	Service  string `toml:"service"`
	Insecure bool   `toml:"insecure"`
}

// Reload configures the reload runtime.
type Reload struct {
	RerunStaticInit bool `toml:"rerun-static-init"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if len(c.Units.Dirs) == 0 {
		c.Units.Dirs = []string{"units"}
	}
	if c.Units.Scope == "" {
		c.Units.Scope = "app"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:7411"
	}
	if c.Telemetry.Service == "" {
		c.Telemetry.Service = "hotswap"
	}
}

// Load parses a hotswap.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	if err := c.patterns().Validate(); err != nil {
		return nil, fmt.Errorf("%s: [policy] %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a hotswap.toml file, then
// loads it. It returns the defaults, rooted at startDir, if no file is
// found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, FileName)); err == nil {
			return Load(d)
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	c := Default()
	c.Dir = dir
	return c, nil
}

// UnitDirPaths returns absolute paths for the configured unit directories.
func (c *Config) UnitDirPaths() []string {
	var paths []string
	for _, d := range c.Units.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(c.Dir, d))
	}
	return paths
}

// JournalPath returns the absolute journal path, or "" if the journal is
// disabled.
func (c *Config) JournalPath() string {
	if c.Journal.Path == "" || filepath.IsAbs(c.Journal.Path) {
		return c.Journal.Path
	}
	return filepath.Join(c.Dir, c.Journal.Path)
}

// RuntimeOptions returns the reload options the file asks for.
func (c *Config) RuntimeOptions() []reload.Option {
	opts := []reload.Option{reload.WithRerunStaticInit(c.Reload.RerunStaticInit)}
	if len(c.Policy.Include) > 0 || len(c.Policy.Exclude) > 0 {
		opts = append(opts, reload.WithPolicy(c.patterns()))
	}
	return opts
}

func (c *Config) patterns() reload.PatternPolicy {
	return reload.PatternPolicy{Include: c.Policy.Include, Exclude: c.Policy.Exclude}
}
