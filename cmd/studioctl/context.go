package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/leca/studio-images/internal/client"
	"github.com/leca/studio-images/internal/ingest"
)

type commandContext struct {
	configFlag  string
	serverFlag  string
	tokenFlag   string
	backendFlag string
	jsonFlag    bool
	verboseFlag bool

	configOnce sync.Once
	config     cliConfig
	configErr  error
}

func (c *commandContext) ensureConfig() (cliConfig, error) {
	c.configOnce.Do(func() {
		cfg, _, err := loadCLIConfig(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if v := strings.TrimSpace(c.serverFlag); v != "" {
			cfg.Server = v
		}
		if v := strings.TrimSpace(c.tokenFlag); v != "" {
			cfg.Token = v
		} else if cfg.Token == "" {
			cfg.Token = os.Getenv("STUDIO_ADMIN_TOKEN")
		}
		if v := strings.TrimSpace(c.backendFlag); v != "" {
			cfg.Backend = v
		}
		if err := cfg.validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if c.verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (c *commandContext) apiClient() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Server, cfg.Token, nil), nil
}

func (c *commandContext) resolver(cmd *cobra.Command) (*ingest.Resolver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	var backend ingest.Backend
	switch cfg.Backend {
	case backendCloudinary:
		backend = &ingest.CloudinaryBackend{
			CloudName:    cfg.Cloudinary.CloudName,
			UploadPreset: cfg.Cloudinary.UploadPreset,
			Folder:       cfg.Cloudinary.Folder,
			APIBase:      cfg.Cloudinary.APIBase,
		}
	case backendServer:
		backend = ingest.NewServerBackend(client.New(cfg.Server, cfg.Token, nil), cfg.MaxUploadBytes)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return ingest.NewResolver(backend,
		ingest.WithCDNPrefixes(cfg.CDNPrefixes...),
		ingest.WithRehost(cfg.Rehost),
		ingest.WithCompressQuality(cfg.CompressQuality),
		ingest.WithLogger(c.logger(cmd)),
	), nil
}

// useJSON is true when asked for, or when stdout is not a terminal.
func (c *commandContext) useJSON(cmd *cobra.Command) bool {
	return c.jsonFlag || !isTerminal(cmd.OutOrStdout())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
