package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/leca/studio-images/internal/ingest"
)

const (
	backendServer     = "server"
	backendCloudinary = "cloudinary"
)

type cloudinaryConfig struct {
	CloudName    string `toml:"cloud_name"`
	UploadPreset string `toml:"upload_preset"`
	Folder       string `toml:"folder"`
	APIBase      string `toml:"api_base"`
}

type cliConfig struct {
	Server          string           `toml:"server"`
	Token           string           `toml:"token"`
	Backend         string           `toml:"backend"`
	Rehost          bool             `toml:"rehost"`
	CDNPrefixes     []string         `toml:"cdn_prefixes"`
	CompressQuality float64          `toml:"compress_quality"`
	MaxUploadBytes  int64            `toml:"max_upload_bytes"`
	Cloudinary      cloudinaryConfig `toml:"cloudinary"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Server:          "http://localhost:8080",
		Backend:         backendServer,
		Rehost:          true,
		CDNPrefixes:     []string{ingest.DefaultCDNPrefix},
		CompressQuality: 0.8,
		Cloudinary:      cloudinaryConfig{UploadPreset: "ml_default"},
	}
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "studioctl", "config.toml"), nil
}

// loadCLIConfig reads path, or the default location when path is empty.
// A missing default file yields the defaults. Flag overrides are applied by
// the caller, which validates afterwards.
func loadCLIConfig(path string) (cliConfig, string, error) {
	cfg := defaultCLIConfig()

	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err != nil {
			return cfg, "", nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, "", nil
		}
		return cliConfig{}, "", fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, "", fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, path, nil
}

func (c *cliConfig) validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	switch c.Backend {
	case backendServer:
	case backendCloudinary:
		if strings.TrimSpace(c.Cloudinary.CloudName) == "" {
			return errors.New("config: cloudinary backend requires cloudinary.cloud_name")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, backendServer, backendCloudinary)
	}
	if c.Server == "" {
		return errors.New("config: server must not be empty")
	}
	return nil
}
