// Package config handles filescout configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	if path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return homeDir
	}
	return path
}

// Config holds all filescout configuration.
type Config struct {
	DataDir   string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Address      string        `mapstructure:"address" yaml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ScanConfig controls traversal and the search engine.
type ScanConfig struct {
	// BaseDir is the only directory tree user-supplied paths may resolve into.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	// ExcludeDirs are directory names never descended into.
	ExcludeDirs []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`

	// ExcludePatterns are doublestar globs matched against paths relative to the scan root.
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`

	// ProtectedPaths can never be deleted through filescout, nor can anything beneath them.
	ProtectedPaths []string `mapstructure:"protected_paths" yaml:"protected_paths"`

	IncludeArchives    bool  `mapstructure:"include_archives" yaml:"include_archives"`
	MaxContentSize     int64 `mapstructure:"max_content_size" yaml:"max_content_size"`
	ContextLines       int   `mapstructure:"context_lines" yaml:"context_lines"`
	PreviewRadius      int   `mapstructure:"preview_radius" yaml:"preview_radius"`
	FileMatchCap       int   `mapstructure:"file_match_cap" yaml:"file_match_cap"`
	MemberMatchCap     int   `mapstructure:"member_match_cap" yaml:"member_match_cap"`
	CheckpointInterval int   `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
}

// AnalysisConfig controls the duplicate analyzer.
type AnalysisConfig struct {
	// MaxWorkers caps the hashing pool; the effective size is min(MaxWorkers, GOMAXPROCS).
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`

	// SampleSize is the head/middle/tail window hashed for large files.
	SampleSize int64 `mapstructure:"sample_size" yaml:"sample_size"`

	// FullHashThreshold is the size below which files are hashed in full.
	FullHashThreshold int64 `mapstructure:"full_hash_threshold" yaml:"full_hash_threshold"`

	// CheckInterval is how many files phase 1 visits between cancellation checks.
	CheckInterval int `mapstructure:"check_interval" yaml:"check_interval"`
}

// DefaultExcludeDirs are version-control and dependency-cache directory names.
var DefaultExcludeDirs = []string{
	".git", ".svn", ".hg",
	"node_modules", "__pycache__", ".venv",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".filescout")

	return &Config{
		DataDir:   dataDir,
		LogLevel:  "info",
		LogFormat: "json",

		API: APIConfig{
			Address:      "127.0.0.1:8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute, // Synchronous searches over large trees
			IdleTimeout:  120 * time.Second,
		},

		Scan: ScanConfig{
			BaseDir:            "/",
			ExcludeDirs:        append([]string(nil), DefaultExcludeDirs...),
			IncludeArchives:    true,
			MaxContentSize:     10 * 1024 * 1024, // 10MB
			ContextLines:       2,
			PreviewRadius:      100,
			FileMatchCap:       10,
			MemberMatchCap:     5,
			CheckpointInterval: 100,
		},

		Analysis: AnalysisConfig{
			MaxWorkers:        8,
			SampleSize:        64 * 1024,   // 64KB
			FullHashThreshold: 1024 * 1024, // 1MB
			CheckInterval:     100,
		},
	}
}

// Load loads configuration from files and environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("filescout")
	v.SetConfigType("yaml")

	// Configuration search paths
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".filescout"))
	v.AddConfigPath("/etc/filescout")
	v.AddConfigPath(".")

	// Environment variable binding
	v.SetEnvPrefix("FILESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration file if it exists
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is OK, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.Scan.BaseDir = expandPath(cfg.Scan.BaseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that limits and sizes are usable.
func (c *Config) Validate() error {
	if c.Scan.BaseDir == "" {
		return fmt.Errorf("scan.base_dir must be set")
	}
	if c.Scan.MaxContentSize <= 0 {
		return fmt.Errorf("scan.max_content_size must be positive, got %d", c.Scan.MaxContentSize)
	}
	if c.Scan.FileMatchCap <= 0 || c.Scan.MemberMatchCap <= 0 {
		return fmt.Errorf("scan match caps must be positive")
	}
	if c.Scan.CheckpointInterval <= 0 {
		return fmt.Errorf("scan.checkpoint_interval must be positive, got %d", c.Scan.CheckpointInterval)
	}
	if c.Scan.ContextLines < 0 || c.Scan.PreviewRadius < 0 {
		return fmt.Errorf("scan.context_lines and scan.preview_radius must not be negative")
	}
	if c.Analysis.MaxWorkers <= 0 {
		return fmt.Errorf("analysis.max_workers must be positive, got %d", c.Analysis.MaxWorkers)
	}
	if c.Analysis.SampleSize <= 0 || c.Analysis.FullHashThreshold <= 0 {
		return fmt.Errorf("analysis sample sizes must be positive")
	}
	if c.Analysis.CheckInterval <= 0 {
		return fmt.Errorf("analysis.check_interval must be positive, got %d", c.Analysis.CheckInterval)
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "filescout.db")
}

// LockPath returns the path of the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "filescout.lock")
}

// LogPath returns the path to the log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "filescout.log")
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	return nil
}
