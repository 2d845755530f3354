package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for wet.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Thumbnails  ThumbnailConfig   `toml:"thumbnails"`
	Staging     StagingConfig     `toml:"staging"`
	History     HistoryConfig     `toml:"history"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Export      ExportConfig      `toml:"export"`
}

// ConcurrencyConfig overrides the derived worker-pool sizes. Zero means
// derive from the machine.
type ConcurrencyConfig struct {
	CPU int `toml:"cpu"`
	IO  int `toml:"io"`
}

// ThumbnailConfig holds the thumbnail policy and codec parameters. The
// parameters participate in cache keys, so changing them invalidates the
// cache by construction.
type ThumbnailConfig struct {
	// Eligible lists the file extensions that receive thumbnails. Empty
	// means the built-in default set.
	Eligible     []string `toml:"eligible,omitempty"`
	MaxDimension int      `toml:"max_dimension"`
	Quality      int      `toml:"quality"`
	CodecVersion string   `toml:"codec_version"`
	// Cache is "persistent" (default, under base_dir) or "temp" (inside the
	// run workspace, discarded afterwards).
	Cache string `toml:"cache"`
}

// StagingConfig configures where run workspaces are created. An empty
// TempRoot means the system temp directory.
type StagingConfig struct {
	TempRoot string `toml:"temp_root,omitempty"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// EncryptionConfig points at an age recipients file. Empty means encryption
// is unavailable.
type EncryptionConfig struct {
	RecipientsPath string `toml:"recipients_path,omitempty"`
}

// ExportConfig holds the default export mode flags.
type ExportConfig struct {
	Sidecar  bool `toml:"sidecar"`
	Previews bool `toml:"previews"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Thumbnails: ThumbnailConfig{
			MaxDimension: 480,
			Quality:      80,
			CodecVersion: "v1",
			Cache:        "persistent",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(baseDir, "history.db"),
		},
		Export: ExportConfig{
			Sidecar:  true,
			Previews: true,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided
// Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
