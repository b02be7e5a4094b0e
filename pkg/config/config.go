package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultPageSize    = 30
	DefaultMaxPageSize = 500
	DefaultListen      = "127.0.0.1:7755"
	DefaultDBName      = "cache.sqlite"
)

type Config struct {
	DBPath        string        `toml:"db_path"`
	ArchiveDir    string        `toml:"archive_dir"`
	Extensions    []string      `toml:"extensions"`
	StagedRebuild *bool         `toml:"staged_rebuild,omitempty"`
	Search        SearchConfig  `toml:"search"`
	Extract       ExtractConfig `toml:"extract"`
	Server        ServerConfig  `toml:"server"`
}

type SearchConfig struct {
	PageSize    int `toml:"page_size"`
	MaxPageSize int `toml:"max_page_size"`
}

type ExtractConfig struct {
	Destination string `toml:"destination"`
	// Overwrite replaces existing files at the destination. Defaults to true.
	Overwrite *bool `toml:"overwrite,omitempty"`
}

type ServerConfig struct {
	Listen          string   `toml:"listen"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// AllowedOrigins are browser origins, other than the server's own, allowed
	// to call the API.
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configPath. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DBPath == "" {
		dbPath, err := GetDefaultDBPath()
		if err != nil {
			return fmt.Errorf("getting default database path: %w", err)
		}
		c.DBPath = dbPath
	}
	c.DBPath = expandHome(c.DBPath)
	c.ArchiveDir = expandHome(c.ArchiveDir)

	if len(c.Extensions) == 0 {
		c.Extensions = []string{"zip"}
	}
	for i, ext := range c.Extensions {
		c.Extensions[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	}

	if c.StagedRebuild == nil {
		c.StagedRebuild = boolPtr(true)
	}

	if c.Search.PageSize <= 0 {
		c.Search.PageSize = DefaultPageSize
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = DefaultMaxPageSize
	}
	if c.Search.PageSize > c.Search.MaxPageSize {
		c.Search.PageSize = c.Search.MaxPageSize
	}

	if c.Extract.Destination == "" {
		c.Extract.Destination = GetDefaultDownloadDir()
	}
	c.Extract.Destination = expandHome(c.Extract.Destination)
	if c.Extract.Overwrite == nil {
		c.Extract.Overwrite = boolPtr(true)
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout = Duration{10 * time.Second}
	}
	return nil
}

// Staged reports whether builds go through the staging table.
func (c *Config) Staged() bool {
	return c.StagedRebuild == nil || *c.StagedRebuild
}

// OverwriteOnExtract reports whether extraction replaces existing files.
func (c *Config) OverwriteOnExtract() bool {
	return c.Extract.Overwrite == nil || *c.Extract.Overwrite
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the commented sample configuration, pointing
// db_path at c.DBPath.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/zipindex/cache.sqlite", c.DBPath, 1)
	if c.ArchiveDir != "" {
		template = strings.Replace(template, `archive_dir = ""`, fmt.Sprintf("archive_dir = %q", c.ArchiveDir), 1)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func boolPtr(b bool) *bool {
	return &b
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetDefaultStorageDir returns $XDG_DATA_HOME/zipindex, creating it if needed.
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "zipindex")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultDBPath returns the default catalog path in the user's data directory
func GetDefaultDBPath() (string, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(storageDir, DefaultDBName), nil
}

// GetDefaultDownloadDir returns ~/Downloads, or the working directory when
// the home directory is unknown.
func GetDefaultDownloadDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "Downloads")
}

// GetConfigDir returns $XDG_CONFIG_HOME/zipindex, creating it if needed.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "zipindex")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
