package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leca/studio-images/internal/api"
	"github.com/leca/studio-images/internal/database"
	"github.com/leca/studio-images/internal/events"
	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/resolve"
)

type recordsResponse struct {
	Records      []*model.Record `json:"records"`
	CacheVersion int64           `json:"cacheVersion"`
}

type recordResponse struct {
	Success      bool          `json:"success"`
	Record       *model.Record `json:"record"`
	CacheVersion int64         `json:"cacheVersion"`
}

// recordInput accepts url as any JSON value so legacy clients that send the
// {"url": "..."} object shape are repaired on the way in.
type recordInput struct {
	URL         any     `json:"url"`
	Title       *string `json:"title"`
	Subtitle    *string `json:"subtitle"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
}

// ListRecords handles GET /api/{collection}.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	c := api.GetCollection(r.Context())

	records, err := h.DB.ListRecords(r.Context(), c)
	if err != nil {
		api.InternalError(w, r, "Failed to list records", err)
		return
	}
	v, err := h.DB.CacheVersion(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to list records", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, recordsResponse{Records: records, CacheVersion: v})
}

// GetRecord handles GET /api/{collection}/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	c := api.GetCollection(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.DB.GetRecord(r.Context(), c, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api.NotFound(w, "Record not found")
			return
		}
		api.InternalError(w, r, "Failed to get record", err)
		return
	}
	v, err := h.DB.CacheVersion(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to get record", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, recordResponse{Success: true, Record: rec, CacheVersion: v})
}

// PutRecord handles PUT /api/{collection}/{id}. Only fields present in the
// body change; the write is last-write-wins.
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	c := api.GetCollection(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		api.BadRequest(w, "Record id is required")
		return
	}

	var in recordInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.BadRequest(w, "Invalid JSON body")
		return
	}
	finalURL := resolve.DisplayURL(in.URL)
	if !resolve.IsFinal(finalURL) {
		api.BadRequest(w, "url must be an absolute http(s) URL or a data URI")
		return
	}

	now := time.Now().UTC()
	rec, err := h.DB.GetRecord(r.Context(), c, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		rec = &model.Record{ID: id, Collection: c, CreatedAt: now}
	case err != nil:
		api.InternalError(w, r, "Failed to save record", err)
		return
	}

	rec.URL = resolve.Parse(finalURL)
	rec.UpdatedAt = now
	applyString(&rec.Title, in.Title)
	applyString(&rec.Subtitle, in.Subtitle)
	applyString(&rec.Category, in.Category)
	applyString(&rec.Description, in.Description)
	if in.Position != nil {
		rec.Position = *in.Position
	}

	if err := h.DB.UpsertRecord(r.Context(), rec); err != nil {
		api.InternalError(w, r, "Failed to save record", err)
		return
	}
	v, err := h.bumpCacheVersion(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to save record", err)
		return
	}

	h.publish(events.Event{Type: events.RecordUpdated, Collection: c, ID: id, URL: finalURL, CacheVersion: v})
	api.WriteJSON(w, http.StatusOK, recordResponse{Success: true, Record: rec, CacheVersion: v})
}

// DeleteRecord handles DELETE /api/{collection}/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	c := api.GetCollection(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.DB.DeleteRecord(r.Context(), c, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api.NotFound(w, "Record not found")
			return
		}
		api.InternalError(w, r, "Failed to delete record", err)
		return
	}
	v, err := h.bumpCacheVersion(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to delete record", err)
		return
	}

	h.publish(events.Event{Type: events.RecordDeleted, Collection: c, ID: id, CacheVersion: v})
	api.WriteJSON(w, http.StatusOK, api.MessageResponse("Record deleted successfully"))
}

// RepairRecords handles POST /api/records/repair: rewrites every stored URL
// that still holds the JSON-encoded object shape as its plain URL.
func (h *Handler) RepairRecords(w http.ResponseWriter, r *http.Request) {
	repaired := 0
	now := time.Now().UTC()

	for _, c := range model.Collections {
		records, err := h.DB.ListRecords(r.Context(), c)
		if err != nil {
			api.InternalError(w, r, "Failed to repair records", err)
			return
		}
		for _, rec := range records {
			if !rec.URL.NeedsRepair() {
				continue
			}
			// A concurrent save wins: the rewrite only applies while the
			// stored value is still the one read above.
			fixed := resolve.Parse(rec.URL.Display())
			ok, err := h.DB.ReplaceURL(r.Context(), c, rec.ID, rec.URL.Raw, fixed.Raw, now)
			if err != nil {
				api.InternalError(w, r, "Failed to repair records", err)
				return
			}
			if ok {
				repaired++
			}
		}
	}

	v, err := h.DB.CacheVersion(r.Context())
	if err == nil && repaired > 0 {
		v, err = h.bumpCacheVersion(r.Context())
	}
	if err != nil {
		api.InternalError(w, r, "Failed to repair records", err)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"repaired":     repaired,
		"cacheVersion": v,
	})
}

// GetCacheVersion handles GET /api/cache-version.
func (h *Handler) GetCacheVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.DB.CacheVersion(r.Context())
	if err != nil {
		api.InternalError(w, r, "Failed to read cache version", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]int64{"cacheVersion": v})
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
