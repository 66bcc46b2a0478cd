// Package config provides unified configuration for the roverlog tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds configuration shared by the roverlog CLI binaries.
type Config struct {
	// Source selects where the log file is read from
	Source SourceConfig `json:"source" yaml:"source"`

	// Read tunes the ingestion pass
	Read ReadConfig `json:"read" yaml:"read"`
}

// SourceConfig selects the blob backing the log file.
type SourceConfig struct {
	// Type is the source type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local file path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 source configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Key is the object key of the log file
	Key string `json:"key" yaml:"key"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ReadConfig tunes the ingestion pass.
type ReadConfig struct {
	// ChunkSizeBytes is how much is pulled from the blob per read
	ChunkSizeBytes int `json:"chunk_size_bytes" yaml:"chunk_size_bytes"`

	// SizeLimitBytes overrides the unindexed-read size ceiling
	SizeLimitBytes int64 `json:"size_limit_bytes" yaml:"size_limit_bytes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Type: "local",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Read: ReadConfig{
			ChunkSizeBytes: 4 * 1024 * 1024,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "local":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required when source type is local")
		}
	case "s3":
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket is required when source type is s3")
		}
		if c.Source.S3.Key == "" {
			return fmt.Errorf("source.s3.key is required when source type is s3")
		}
	default:
		return fmt.Errorf("invalid source type: %s (must be local or s3)", c.Source.Type)
	}

	if c.Read.ChunkSizeBytes < 0 {
		return fmt.Errorf("read.chunk_size_bytes must not be negative, got %d", c.Read.ChunkSizeBytes)
	}
	if c.Read.SizeLimitBytes < 0 {
		return fmt.Errorf("read.size_limit_bytes must not be negative, got %d", c.Read.SizeLimitBytes)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ROVERLOG_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ROVERLOG_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("ROVERLOG_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("ROVERLOG_S3_BUCKET"); v != "" {
		cfg.Source.S3.Bucket = v
	}
	if v := os.Getenv("ROVERLOG_S3_KEY"); v != "" {
		cfg.Source.S3.Key = v
	}
	if v := os.Getenv("ROVERLOG_S3_REGION"); v != "" {
		cfg.Source.S3.Region = v
	}
	if v := os.Getenv("ROVERLOG_S3_ENDPOINT"); v != "" {
		cfg.Source.S3.Endpoint = v
	}
	if v := os.Getenv("ROVERLOG_S3_PATH_STYLE"); v != "" {
		cfg.Source.S3.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("ROVERLOG_READ_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Read.ChunkSizeBytes = n
		}
	}
	if v := os.Getenv("ROVERLOG_READ_SIZE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Read.SizeLimitBytes = n
		}
	}
}

// Load reads the config file if path is non-empty, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
