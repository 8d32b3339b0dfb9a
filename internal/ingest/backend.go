package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/leca/studio-images/internal/client"
)

// Uploaded is what a backend stored.
type Uploaded struct {
	URL  string
	Size int64
}

// Backend stores image bytes somewhere that yields a public URL.
type Backend interface {
	Name() string
	// MaxBytes is the largest file the backend accepts.
	MaxBytes() int64
	Upload(ctx context.Context, filename string, data []byte) (Uploaded, error)
	// Rehost copies a remote image into the backend.
	Rehost(ctx context.Context, imageURL string) (Uploaded, error)
}

// classifyStatus maps an HTTP failure status onto an upload failure kind.
func classifyStatus(code int) UploadKind {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
		return TranscodeFailure
	case code >= 500:
		return TranscodeFailure
	default:
		return Rejected
	}
}

// ---------------------------------------------------------------------------
// Local server backend
// ---------------------------------------------------------------------------

// ServerBackend uploads to the studio server's transcode endpoint.
type ServerBackend struct {
	client   *client.Client
	maxBytes int64
}

// NewServerBackend wraps an API client. maxBytes <= 0 uses ServerMaxBytes.
func NewServerBackend(c *client.Client, maxBytes int64) *ServerBackend {
	if maxBytes <= 0 {
		maxBytes = ServerMaxBytes
	}
	return &ServerBackend{client: c, maxBytes: maxBytes}
}

func (b *ServerBackend) Name() string    { return "server" }
func (b *ServerBackend) MaxBytes() int64 { return b.maxBytes }

// Upload returns an absolute URL; the server itself answers with a path.
func (b *ServerBackend) Upload(ctx context.Context, filename string, data []byte) (Uploaded, error) {
	res, err := b.client.Upload(ctx, filename, data)
	if err != nil {
		return Uploaded{}, b.wrap(err)
	}
	return Uploaded{URL: b.client.Resolve(res.URL), Size: res.Size}, nil
}

func (b *ServerBackend) Rehost(ctx context.Context, imageURL string) (Uploaded, error) {
	res, err := b.client.UploadURL(ctx, imageURL)
	if err != nil {
		return Uploaded{}, b.wrap(err)
	}
	return Uploaded{URL: b.client.Resolve(res.URL), Size: res.Size}, nil
}

func (b *ServerBackend) wrap(err error) error {
	kind := NetworkFailure
	var se *client.StatusError
	if errors.As(err, &se) {
		kind = classifyStatus(se.StatusCode)
	}
	return &UploadError{Kind: kind, Backend: b.Name(), Err: err}
}

// ---------------------------------------------------------------------------
// Cloudinary backend
// ---------------------------------------------------------------------------

// DefaultCloudinaryAPI is the upload API origin.
const DefaultCloudinaryAPI = "https://api.cloudinary.com"

// CloudinaryBackend performs unsigned uploads to a Cloudinary-compatible
// API, which transcodes and serves from its CDN.
type CloudinaryBackend struct {
	CloudName    string
	UploadPreset string
	Folder       string
	// APIBase overrides DefaultCloudinaryAPI.
	APIBase string
	HTTP    client.HTTPDoer
}

func (b *CloudinaryBackend) Name() string    { return "cloudinary" }
func (b *CloudinaryBackend) MaxBytes() int64 { return CloudinaryMaxBytes }

func (b *CloudinaryBackend) Upload(ctx context.Context, filename string, data []byte) (Uploaded, error) {
	return b.post(ctx, func(w *multipart.Writer) error {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = fw.Write(data)
		return err
	})
}

// Rehost passes the remote URL as the file field; the API fetches it.
func (b *CloudinaryBackend) Rehost(ctx context.Context, imageURL string) (Uploaded, error) {
	return b.post(ctx, func(w *multipart.Writer) error {
		return w.WriteField("file", imageURL)
	})
}

func (b *CloudinaryBackend) post(ctx context.Context, writeFile func(*multipart.Writer) error) (Uploaded, error) {
	if strings.TrimSpace(b.CloudName) == "" {
		return Uploaded{}, &UploadError{Kind: Rejected, Backend: b.Name(), Err: errors.New("cloud name not configured")}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeFile(w); err != nil {
		return Uploaded{}, fmt.Errorf("build multipart body: %w", err)
	}
	preset := b.UploadPreset
	if preset == "" {
		preset = "ml_default"
	}
	if err := w.WriteField("upload_preset", preset); err != nil {
		return Uploaded{}, fmt.Errorf("build multipart body: %w", err)
	}
	if b.Folder != "" {
		if err := w.WriteField("folder", b.Folder); err != nil {
			return Uploaded{}, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return Uploaded{}, fmt.Errorf("build multipart body: %w", err)
	}

	base := strings.TrimRight(b.APIBase, "/")
	if base == "" {
		base = DefaultCloudinaryAPI
	}
	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", base, b.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return Uploaded{}, fmt.Errorf("build cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	doer := b.HTTP
	if doer == nil {
		doer = http.DefaultClient
	}
	resp, err := doer.Do(req)
	if err != nil {
		return Uploaded{}, &UploadError{Kind: NetworkFailure, Backend: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return Uploaded{}, &UploadError{
			Kind:    classifyStatus(resp.StatusCode),
			Backend: b.Name(),
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}

	var out struct {
		SecureURL string `json:"secure_url"`
		Bytes     int64  `json:"bytes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Uploaded{}, &UploadError{Kind: NetworkFailure, Backend: b.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.SecureURL == "" {
		return Uploaded{}, &UploadError{Kind: TranscodeFailure, Backend: b.Name(), Err: errors.New("response has no secure_url")}
	}
	return Uploaded{URL: out.SecureURL, Size: out.Bytes}, nil
}
