package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/leca/studio-images/internal/config"
	"github.com/leca/studio-images/internal/database"
	"github.com/leca/studio-images/internal/display"
	"github.com/leca/studio-images/internal/events"
	"github.com/leca/studio-images/internal/imageproc"
	"github.com/leca/studio-images/internal/storage"
)

// Publisher receives change notifications.
type Publisher interface {
	Publish(e events.Event)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	DB         database.Database
	Store      storage.Storage
	Config     *config.Config
	Normalizer *imageproc.Normalizer
	Events     Publisher
	// HTTPClient fetches images for the url upload field.
	HTTPClient *http.Client

	versionMu sync.Mutex
}

// New wires a Handler with an HTTP client and normalizer derived from cfg.
func New(db database.Database, store storage.Storage, pub Publisher, cfg *config.Config) *Handler {
	return &Handler{
		DB:     db,
		Store:  store,
		Config: cfg,
		Normalizer: imageproc.NewNormalizer(imageproc.Envelope{
			MaxWidth:  cfg.MaxWidth,
			MaxHeight: cfg.MaxHeight,
			Quality:   cfg.WebPQuality,
		}, nil),
		Events:     pub,
		HTTPClient: newFetchClient(cfg.FetchTimeout, cfg.AllowPrivateFetch),
	}
}

// publicURL prefixes a server-relative path with the configured public
// base URL, if any.
func (h *Handler) publicURL(path string) string {
	if h.Config == nil || h.Config.PublicBaseURL == "" {
		return path
	}
	return strings.TrimRight(h.Config.PublicBaseURL, "/") + path
}

func (h *Handler) publish(e events.Event) {
	if h.Events != nil {
		h.Events.Publish(e)
	}
}

// bumpCacheVersion advances the stored cache-busting version once per
// successful mutation.
func (h *Handler) bumpCacheVersion(ctx context.Context) (int64, error) {
	h.versionMu.Lock()
	defer h.versionMu.Unlock()

	cur, err := h.DB.CacheVersion(ctx)
	if err != nil {
		return 0, err
	}
	next := display.NewCacheVersion(cur).Bump(time.Now())
	if err := h.DB.SetCacheVersion(ctx, next.Int64()); err != nil {
		return 0, err
	}
	return next.Int64(), nil
}
