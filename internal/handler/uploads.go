package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leca/studio-images/internal/api"
	"github.com/leca/studio-images/internal/events"
	"github.com/leca/studio-images/internal/imageproc"
	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/storage"
)

const (
	uploadField    = "image"
	urlField       = "url"
	uploadsPrefix  = "/uploads/"
	multipartSlack = 1 << 20
)

var (
	errTooLarge   = errors.New("image too large")
	errBadFetch   = errors.New("url must be an absolute http or https URL")
	errNoUploadIn = errors.New("no image file provided")
)

// UploadImage handles POST /api/upload: a multipart "image" file, or a
// "url" field naming an image to fetch, normalized to WebP.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	limit := h.Config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)

	data, err := h.readUpload(r, limit)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, errTooLarge), errors.As(err, &maxErr):
			api.TooLarge(w, fmt.Sprintf("Image exceeds the %s upload limit", humanize.IBytes(uint64(limit))))
		case errors.Is(err, errNoUploadIn):
			api.BadRequest(w, "No image file provided")
		case errors.Is(err, errBadFetch):
			api.BadRequest(w, "Invalid image URL")
		case errors.Is(err, errBlockedAddress):
			slog.WarnContext(r.Context(), "blocked image fetch", "error", err)
			api.BadRequest(w, "Image URL is not allowed")
		default:
			slog.WarnContext(r.Context(), "upload input rejected", "error", err)
			api.BadRequest(w, "Could not read image")
		}
		return
	}

	res, err := h.Normalizer.Normalize(data)
	if err != nil {
		if errors.Is(err, imageproc.ErrUnsupportedFormat) {
			api.BadRequest(w, "File is not a supported image")
			return
		}
		api.InternalError(w, r, "Failed to upload image", err)
		return
	}

	filename := uuid.NewString() + ".webp"
	n, err := h.Store.Put(r.Context(), filename, bytes.NewReader(res.Data))
	if err != nil {
		api.InternalError(w, r, "Failed to upload image", err)
		return
	}

	slog.InfoContext(r.Context(), "image uploaded",
		"filename", filename,
		"source_format", res.SourceFormat,
		"input_bytes", len(data),
		"output_bytes", n,
		"width", res.Width,
		"height", res.Height,
	)

	result := model.UploadResult{
		Success:  true,
		URL:      uploadsPrefix + filename,
		Filename: filename,
		Size:     n,
		Width:    res.Width,
		Height:   res.Height,
	}
	h.publish(events.Event{Type: events.UploadCreated, Filename: filename, URL: h.publicURL(result.URL)})
	api.WriteJSON(w, http.StatusOK, result)
}

// readUpload returns the raw bytes from the file field, falling back to
// fetching the url field.
func (h *Handler) readUpload(r *http.Request, limit int64) ([]byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	file, header, err := r.FormFile(uploadField)
	if err == nil {
		defer file.Close()
		if header.Size > limit {
			return nil, errTooLarge
		}
		return readLimited(file, limit)
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return nil, fmt.Errorf("reading form file: %w", err)
	}

	rawURL := strings.TrimSpace(r.FormValue(urlField))
	if rawURL == "" {
		return nil, errNoUploadIn
	}
	return h.fetchImage(r, rawURL, limit)
}

func (h *Handler) fetchImage(r *http.Request, rawURL string, limit int64) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errBadFetch
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", u.Host, resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return nil, errTooLarge
	}
	return readLimited(resp.Body, limit)
}

func readLimited(rd io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

// ListUploads handles GET /api/uploads, newest first.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	objects, err := h.Store.List(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to list images", err)
		return
	}

	images := make([]model.UploadedImage, 0, len(objects))
	for _, o := range objects {
		if !strings.HasSuffix(o.Name, ".webp") {
			continue
		}
		images = append(images, model.UploadedImage{
			Filename:   o.Name,
			URL:        uploadsPrefix + o.Name,
			UploadDate: o.ModTime.UTC(),
			Size:       o.Size,
		})
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].UploadDate.Equal(images[j].UploadDate) {
			return images[i].Filename < images[j].Filename
		}
		return images[i].UploadDate.After(images[j].UploadDate)
	})

	api.WriteJSON(w, http.StatusOK, map[string]any{"images": images})
}

// DeleteUpload handles DELETE /api/uploads/{filename}. Repeating the call
// after the file is gone returns 404.
func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !storage.ValidName(filename) {
		api.NotFound(w, "Image not found")
		return
	}

	if err := h.Store.Delete(r.Context(), filename); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			api.NotFound(w, "Image not found")
			return
		}
		api.InternalError(w, r, "Failed to delete image", err)
		return
	}

	h.publish(events.Event{Type: events.UploadDeleted, Filename: filename, URL: h.publicURL(uploadsPrefix + filename)})
	api.WriteJSON(w, http.StatusOK, api.MessageResponse("Image deleted successfully"))
}

// ServeUpload handles GET /uploads/{filename}. Names are never reused, so
// responses are cacheable forever.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !storage.ValidName(filename) {
		api.NotFound(w, "Image not found")
		return
	}

	rc, err := h.Store.Open(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			api.NotFound(w, "Image not found")
			return
		}
		api.InternalError(w, r, "Failed to read image", err)
		return
	}
	defer rc.Close()

	// Read up to 512 bytes for content-type detection.
	buf := make([]byte, 512)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		api.InternalError(w, r, "Failed to read image", err)
		return
	}
	buf = buf[:n]

	contentType := imageproc.ContentType(imageproc.DetectFormat(buf))
	if contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buf)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Disposition", "inline; filename=\""+path.Base(filename)+"\"")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf); err != nil {
		slog.Debug("failed to write upload", "filename", filename, "error", err)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Debug("failed to stream upload", "filename", filename, "error", err)
	}
}
