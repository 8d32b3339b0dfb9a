// Package client talks to the studio-images server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/leca/studio-images/internal/model"
)

// HTTPDoer describes the HTTP client used to reach the server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx response. Message is the server's error text.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the server's upload and record endpoints.
type Client struct {
	baseURL string
	token   string
	http    HTTPDoer
}

// New returns a client for baseURL. token is sent as a bearer token when
// non-empty; a nil doer uses http.DefaultClient.
func New(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    doer,
	}
}

// BaseURL returns the server origin requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resolve joins a server-relative path such as "/uploads/x.webp" with the
// server origin. Absolute URLs are returned unchanged.
func (c *Client) Resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// Upload sends data as the multipart "image" field.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (*model.UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var out model.UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadURL asks the server to fetch and transcode a remote image.
func (c *Client) UploadURL(ctx context.Context, imageURL string) (*model.UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("url", imageURL); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var out model.UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUploads returns stored uploads, newest first.
func (c *Client) ListUploads(ctx context.Context) ([]model.UploadedImage, error) {
	var out struct {
		Images []model.UploadedImage `json:"images"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/uploads", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// DeleteUpload removes a stored upload by filename.
func (c *Client) DeleteUpload(ctx context.Context, filename string) error {
	return c.do(ctx, http.MethodDelete, "/api/uploads/"+url.PathEscape(filename), "", nil, nil)
}

// RecordList is the body of GET /api/{collection}.
type RecordList struct {
	Records      []model.Record `json:"records"`
	CacheVersion int64          `json:"cacheVersion"`
}

// RecordUpdate is the body of PUT /api/{collection}/{id}. Nil fields are
// left unchanged on the server.
type RecordUpdate struct {
	URL         string  `json:"url"`
	Title       *string `json:"title,omitempty"`
	Subtitle    *string `json:"subtitle,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// SavedRecord is the server's reply to a record write.
type SavedRecord struct {
	Record       model.Record `json:"record"`
	CacheVersion int64        `json:"cacheVersion"`
}

// ListRecords returns a collection's records and the current cache version.
func (c *Client) ListRecords(ctx context.Context, collection model.Collection) (*RecordList, error) {
	var out RecordList
	if err := c.do(ctx, http.MethodGet, "/api/"+url.PathEscape(string(collection)), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutRecord writes a record. The server bumps the cache version.
func (c *Client) PutRecord(ctx context.Context, collection model.Collection, id string, upd RecordUpdate) (*SavedRecord, error) {
	body, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out SavedRecord
	p := "/api/" + url.PathEscape(string(collection)) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, p, "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RepairRecords rewrites double-encoded stored URLs and returns how many
// records changed.
func (c *Client) RepairRecords(ctx context.Context) (int, error) {
	var out struct {
		Repaired int `json:"repaired"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/records/repair", "", nil, &out); err != nil {
		return 0, err
	}
	return out.Repaired, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
