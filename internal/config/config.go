package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds server settings. Every key is read from a STUDIO_-prefixed
// environment variable, e.g. STUDIO_LISTEN_ADDR.
type Config struct {
	ListenAddr  string
	DBPath      string
	DatabaseURL string
	StoragePath string
	// StorageBackend is "filesystem" or "s3".
	StorageBackend string
	S3             S3Config
	AdminToken     string
	// PublicBaseURL makes upload URLs in pushed events absolute; empty keeps
	// them server-relative.
	PublicBaseURL string

	MaxUploadBytes int64
	MaxWidth       int
	MaxHeight      int
	WebPQuality    int

	// UploadRateLimit is uploads per minute per client IP; 0 disables it.
	UploadRateLimit int
	FetchTimeout    time.Duration
	AllowedOrigins  []string

	// AllowPrivateFetch lets the url upload field reach loopback and private
	// networks. Off by default.
	AllowPrivateFetch bool
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// DefaultMaxUploadBytes is the 30 MiB ceiling enforced by the upload endpoint.
const DefaultMaxUploadBytes = 30 << 20

func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("STUDIO")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "data/studio.db")
	v.SetDefault("database_url", "")
	v.SetDefault("storage_path", "public/uploads")
	v.SetDefault("storage_backend", "filesystem")
	v.SetDefault("s3_region", "auto")
	v.SetDefault("s3_prefix", "uploads")
	v.SetDefault("public_base_url", "")
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("max_width", 1920)
	v.SetDefault("max_height", 1080)
	v.SetDefault("webp_quality", 85)
	v.SetDefault("upload_rate_limit", 60)
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("allow_private_fetch", false)
	v.SetDefault("allowed_origins", "*")

	return &Config{
		ListenAddr:     v.GetString("listen_addr"),
		DBPath:         v.GetString("db_path"),
		DatabaseURL:    v.GetString("database_url"),
		StoragePath:    v.GetString("storage_path"),
		StorageBackend: strings.ToLower(v.GetString("storage_backend")),
		S3: S3Config{
			Endpoint:        v.GetString("s3_endpoint"),
			Region:          v.GetString("s3_region"),
			Bucket:          v.GetString("s3_bucket"),
			Prefix:          v.GetString("s3_prefix"),
			AccessKeyID:     v.GetString("s3_access_key_id"),
			SecretAccessKey: v.GetString("s3_secret_access_key"),
		},
		AdminToken:        v.GetString("admin_token"),
		PublicBaseURL:     strings.TrimRight(v.GetString("public_base_url"), "/"),
		MaxUploadBytes:    v.GetInt64("max_upload_bytes"),
		MaxWidth:          v.GetInt("max_width"),
		MaxHeight:         v.GetInt("max_height"),
		WebPQuality:       v.GetInt("webp_quality"),
		UploadRateLimit:   v.GetInt("upload_rate_limit"),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		AllowPrivateFetch: v.GetBool("allow_private_fetch"),
		AllowedOrigins:    splitList(v.GetString("allowed_origins")),
	}
}

// DatabaseDSN returns DatabaseURL when set, else the SQLite path.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("max dimensions must be positive, got %dx%d", c.MaxWidth, c.MaxHeight))
	}
	if c.WebPQuality < 1 || c.WebPQuality > 100 {
		errs = append(errs, fmt.Errorf("webp quality must be 1-100, got %d", c.WebPQuality))
	}
	if c.UploadRateLimit < 0 {
		errs = append(errs, fmt.Errorf("upload rate limit must not be negative, got %d", c.UploadRateLimit))
	}
	switch c.StorageBackend {
	case "filesystem":
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("STUDIO_S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
