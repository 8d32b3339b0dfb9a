package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/leca/studio-images/internal/api"
	"github.com/leca/studio-images/internal/config"
	"github.com/leca/studio-images/internal/database"
	"github.com/leca/studio-images/internal/events"
	"github.com/leca/studio-images/internal/handler"
	"github.com/leca/studio-images/internal/storage"
)

// Server holds the application dependencies and HTTP router.
type Server struct {
	DB      database.Database
	Store   storage.Storage
	Hub     *events.Hub
	Config  *config.Config
	Handler *handler.Handler
	Router  chi.Router
}

// New creates a new Server with a fully configured chi router. The hub may
// be nil, in which case the events endpoint is not mounted.
func New(db database.Database, store storage.Storage, hub *events.Hub, cfg *config.Config) *Server {
	s := &Server{DB: db, Store: store, Hub: hub, Config: cfg}

	var pub handler.Publisher
	if hub != nil {
		pub = hub
	}
	h := handler.New(db, store, pub, cfg)
	s.Handler = h

	r := chi.NewRouter()

	// CORS must run first to answer preflight OPTIONS.
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)

	// Uploaded files, read-only.
	r.Get("/uploads/{filename}", h.ServeUpload)
	r.Head("/uploads/{filename}", h.ServeUpload)

	r.Route("/api", func(r chi.Router) {
		r.Get("/uploads", h.ListUploads)
		r.Get("/cache-version", h.GetCacheVersion)
		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(api.AuthMiddleware(cfg.AdminToken))

			r.With(uploadLimiter(cfg.UploadRateLimit)...).Post("/upload", h.UploadImage)
			r.Delete("/uploads/{filename}", h.DeleteUpload)
			r.Post("/records/repair", h.RepairRecords)
		})

		r.Route("/{collection}", func(r chi.Router) {
			r.Use(api.CollectionMiddleware)

			r.Get("/", h.ListRecords)
			r.Get("/{id}", h.GetRecord)

			r.Group(func(r chi.Router) {
				r.Use(api.AuthMiddleware(cfg.AdminToken))
				r.Put("/{id}", h.PutRecord)
				r.Delete("/{id}", h.DeleteRecord)
			})
		})
	})

	s.Router = r
	return s
}

// uploadLimiter throttles uploads per client IP; perMinute <= 0 disables it.
func uploadLimiter(perMinute int) []func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return nil
	}
	return []func(http.Handler) http.Handler{
		httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(api.RateLimitHandler),
		),
	}
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
