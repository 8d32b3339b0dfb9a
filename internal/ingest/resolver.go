// Package ingest turns a selected file or a pasted string into an image
// resource whose final URL can be written to a record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/leca/studio-images/internal/imageproc"
	"github.com/leca/studio-images/internal/model"
)

// DefaultCDNPrefix is served verbatim without rehosting.
const DefaultCDNPrefix = "https://res.cloudinary.com/"

// Status messages returned alongside a resolved resource.
const (
	StatusUploaded      = "Image uploaded and optimized"
	StatusURLSet        = "Image URL has been set"
	StatusInline        = "Inline image has been set"
	StatusRehosted      = "Image copied to storage"
	StatusRehostSkipped = "Using the original URL; copying it to storage failed"
)

// ResourceReference is a resolved resource plus a message for the user.
type ResourceReference struct {
	Resource model.ImageResource `json:"resource"`
	Status   string              `json:"status"`
}

// Resolver validates, compresses and uploads images through one backend.
type Resolver struct {
	backend     Backend
	cdnPrefixes []string
	rehost      bool
	quality     float64
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCDNPrefixes replaces the URL prefixes that are used without rehosting.
func WithCDNPrefixes(prefixes ...string) Option {
	return func(r *Resolver) { r.cdnPrefixes = prefixes }
}

// WithRehost toggles copying pasted http(s) URLs into the backend.
func WithRehost(enabled bool) Option {
	return func(r *Resolver) { r.rehost = enabled }
}

// WithCompressQuality sets the first JPEG quality tried when compressing.
func WithCompressQuality(q float64) Option {
	return func(r *Resolver) { r.quality = q }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver returns a Resolver uploading through backend.
func NewResolver(backend Backend, opts ...Option) *Resolver {
	r := &Resolver{
		backend:     backend,
		cdnPrefixes: []string{DefaultCDNPrefix},
		rehost:      true,
		quality:     imageproc.DefaultCompressQuality,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePastedInput classifies a pasted string. data: URIs and CDN URLs are
// used verbatim. Other http(s) URLs are rehosted when enabled; a failed
// rehost is logged and the original URL is used instead.
func (r *Resolver) ResolvePastedInput(ctx context.Context, input string) (ResourceReference, error) {
	s := strings.TrimSpace(input)
	lower := strings.ToLower(s)

	if strings.HasPrefix(lower, "data:") {
		return reference(model.SourcePastedURL, s, int64(len(s)), model.EncodingInline, StatusInline), nil
	}
	if !isAbsoluteHTTP(s) {
		return ResourceReference{}, ErrInvalidURLFormat
	}
	for _, p := range r.cdnPrefixes {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) {
			return reference(model.SourcePastedURL, s, 0, model.EncodingRemote, StatusURLSet), nil
		}
	}
	if !r.rehost || r.backend == nil {
		return reference(model.SourcePastedURL, s, 0, model.EncodingRemote, StatusURLSet), nil
	}

	up, err := r.backend.Rehost(ctx, s)
	if err != nil {
		r.logger.Warn("rehost failed, using original URL",
			"url", s,
			"backend", r.backend.Name(),
			"error", err,
		)
		return reference(model.SourcePastedURL, s, 0, model.EncodingRemote, StatusRehostSkipped), nil
	}
	return reference(model.SourcePastedURL, up.URL, up.Size, model.EncodingRemote, StatusRehosted), nil
}

// IngestFile uploads a selected file. The type is sniffed from content.
// Files over the backend ceiling are compressed first; what is still too
// large after that is rejected with a *ValidationError before any network
// call. Backend failures are returned as *UploadError.
func (r *Resolver) IngestFile(ctx context.Context, name string, data []byte) (ResourceReference, error) {
	if r.backend == nil {
		return ResourceReference{}, errors.New("no upload backend configured")
	}
	limit := r.backend.MaxBytes()
	mime := SniffMIME(data)
	if err := ValidateFile(mime, 0, limit); err != nil {
		return ResourceReference{}, err
	}

	if int64(len(data)) > limit {
		out, stats, err := imageproc.Compress(data, limit, r.quality)
		if err != nil {
			r.logger.Warn("compression failed", "file", name, "error", err)
		} else if len(out) < len(data) {
			r.logger.Info("compressed image",
				"file", name,
				"from", stats.InputBytes,
				"to", stats.OutputBytes,
				"width", stats.Width,
				"height", stats.Height,
				"quality", stats.Quality,
				"attempts", stats.Attempts,
			)
			data = out
			mime = SniffMIME(out)
			name = withExt(name, ".jpg")
		}
	}
	if err := ValidateFile(mime, int64(len(data)), limit); err != nil {
		return ResourceReference{}, err
	}

	up, err := r.backend.Upload(ctx, uploadName(name), data)
	if err != nil {
		var ue *UploadError
		if errors.As(err, &ue) {
			return ResourceReference{}, err
		}
		return ResourceReference{}, &UploadError{Kind: NetworkFailure, Backend: r.backend.Name(), Err: err}
	}
	size := up.Size
	if size <= 0 {
		size = int64(len(data))
	}
	return reference(model.SourceUploadedFile, up.URL, size, model.EncodingRemote, StatusUploaded), nil
}

func reference(kind model.SourceKind, finalURL string, size int64, enc model.Encoding, status string) ResourceReference {
	return ResourceReference{
		Resource: model.ImageResource{
			ID:         uuid.NewString(),
			SourceKind: kind,
			FinalURL:   finalURL,
			SizeBytes:  size,
			Encoding:   enc,
		},
		Status: status,
	}
}

func isAbsoluteHTTP(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func uploadName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

func withExt(name, ext string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%s%s", base, ext)
}
