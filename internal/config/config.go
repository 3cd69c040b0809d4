package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
// PasswordHash is an Argon2id PHC string produced by `zeitachse
// hash-password`; a plain value is also accepted and compared in constant
// time for local setups.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"password_hash"`
}

// DeployConfig describes the process-control surface: which systemd units
// the dashboard may start, and the data-pull script used by the renderers.
type DeployConfig struct {
	// Services is the allow-list of unit names; anything else is rejected
	// before a process is spawned.
	Services []string `yaml:"services" json:"services"`

	// PullScript is the path of the data repo pull script. Empty disables
	// the pull endpoint.
	PullScript string `yaml:"pull_script" json:"pull_script"`

	// SystemctlBin / JournalctlBin are the binaries invoked for service
	// control and log retrieval.
	SystemctlBin  string `yaml:"systemctl_bin" json:"systemctl_bin"`
	JournalctlBin string `yaml:"journalctl_bin" json:"journalctl_bin"`
}

// Config is the top-level application configuration. The canon timeline
// config (world today, season starts, offset rules) is a separate JSON
// document under DataDir; this file only configures the application around
// it.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the mutable JSON files: canon config, events,
	// ui state, rendered preview.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CanonPath overrides the canon config location. Empty means
	// DataDir/canon_time_config.json.
	CanonPath string `yaml:"canon_path" json:"canon_path"`

	// NamesPath is the player name mapping file. Empty disables the
	// obfuscation endpoints.
	NamesPath string `yaml:"names_path" json:"names_path"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// driving the periodic preview re-render while serving.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Deploy configures the deploy-trigger surface.
	Deploy DeployConfig `yaml:"deploy" json:"deploy"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		DataDir:     "./data",
		RefreshCron: "*/15 * * * *",
		Deploy: DeployConfig{
			Services:      []string{},
			SystemctlBin:  "/bin/systemctl",
			JournalctlBin: "/usr/bin/journalctl",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.Deploy.Services == nil {
		c.Deploy.Services = []string{}
	}
	if c.Deploy.SystemctlBin == "" {
		c.Deploy.SystemctlBin = "/bin/systemctl"
	}
	if c.Deploy.JournalctlBin == "" {
		c.Deploy.JournalctlBin = "/usr/bin/journalctl"
	}
}

// CanonConfigPath returns the effective canon config location.
func (c *Config) CanonConfigPath() string {
	if c.CanonPath != "" {
		return c.CanonPath
	}
	return filepath.Join(c.DataDir, "canon_time_config.json")
}

// EventsPath returns the calendar events file location.
func (c *Config) EventsPath() string {
	return filepath.Join(c.DataDir, "events.json")
}

// StatePath returns the ui state file location.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "ui_state.json")
}

// PreviewPath returns where the rendered calendar PNG is written.
func (c *Config) PreviewPath() string {
	return filepath.Join(c.DataDir, "preview.png")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".zeitachse-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
