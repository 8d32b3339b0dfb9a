package model

import (
	"time"

	"github.com/leca/studio-images/internal/resolve"
)

// SourceKind records where an image resource came from.
type SourceKind string

const (
	SourceUploadedFile SourceKind = "uploaded_file"
	SourcePastedURL    SourceKind = "pasted_url"
)

// Encoding records how the final URL references the image bytes.
type Encoding string

const (
	// EncodingRemote points at an upload host or CDN.
	EncodingRemote Encoding = "remote"
	// EncodingInline carries the bytes in a data URI.
	EncodingInline Encoding = "inline"
)

// ImageResource is the outcome of ingesting one user input. FinalURL is the
// only part written to a record.
type ImageResource struct {
	ID         string     `json:"id,omitempty"`
	SourceKind SourceKind `json:"sourceKind"`
	FinalURL   string     `json:"finalUrl"`
	SizeBytes  int64      `json:"sizeBytes,omitempty"`
	Encoding   Encoding   `json:"encoding"`
}

// UploadedImage is one transcoded file held by the upload store.
type UploadedImage struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	UploadDate time.Time `json:"uploadDate"`
	Size       int64     `json:"size"`
}

// UploadResult is the body returned by the upload endpoint.
type UploadResult struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Collection names a set of records that own image URLs.
type Collection string

const (
	CollectionCarousel Collection = "carousel"
	CollectionGallery  Collection = "gallery"
)

// Collections lists every known collection.
var Collections = []Collection{CollectionCarousel, CollectionGallery}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, bool) {
	for _, c := range Collections {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Record is a carousel slide or gallery item. URL is classified once when
// the record is read from the store.
type Record struct {
	ID          string            `json:"id"`
	Collection  Collection        `json:"collection"`
	URL         resolve.StoredURL `json:"url"`
	Title       string            `json:"title,omitempty"`
	Subtitle    string            `json:"subtitle,omitempty"`
	Category    string            `json:"category,omitempty"`
	Description string            `json:"description,omitempty"`
	Position    int               `json:"position"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
