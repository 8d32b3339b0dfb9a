package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leca/studio-images/internal/config"
	"github.com/leca/studio-images/internal/database"
	"github.com/leca/studio-images/internal/events"
	"github.com/leca/studio-images/internal/imageproc"
	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/router"
	"github.com/leca/studio-images/internal/storage"
)

const testToken = "test-token"

type testEnv struct {
	ts       *httptest.Server
	srv      *router.Server
	dir      string
	recorder *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func testConfig() *config.Config {
	return &config.Config{
		MaxUploadBytes: config.DefaultMaxUploadBytes,
		MaxWidth:       1920,
		MaxHeight:      1080,
		WebPQuality:    85,
		FetchTimeout:   5 * time.Second,
		AllowedOrigins: []string{"*"},
		StorageBackend: "filesystem",
	}
}

// testServer creates a test HTTP server backed by a temporary SQLite file
// and a temporary filesystem storage directory.
func testServer(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := filepath.Join(t.TempDir(), "uploads")
	store := storage.NewFileSystem(dir)

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	srv := router.New(db, store, nil, cfg)
	rec := &recordingPublisher{}
	srv.Handler.Events = rec

	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, srv: srv, dir: dir, recorder: rec}
}

func withToken(cfg *config.Config) { cfg.AdminToken = testToken }

// allowPrivateFetch lets URL uploads reach loopback httptest origins.
func allowPrivateFetch(cfg *config.Config) { cfg.AllowPrivateFetch = true }

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

func createTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func createTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xAA
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a multipart request body from file and text fields.
func multipartBody(t *testing.T, fileField, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postUpload(t *testing.T, client *http.Client, env *testEnv, body io.Reader, contentType string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func uploadFile(t *testing.T, env *testEnv, fileName string, content []byte) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, "image", fileName, content, nil)
	return postUpload(t, http.DefaultClient, env, body, ct, "")
}

func uploadAndDecode(t *testing.T, env *testEnv, content []byte) model.UploadResult {
	t.Helper()
	resp := uploadFile(t, env, "photo.jpg", content)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result model.UploadResult
	decodeResponse(t, resp, &result)
	return result
}

// decodeResponse decodes the JSON body into the provided target.
func decodeResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), string(data))
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type stubEncoder struct{}

func (stubEncoder) EncodeWebP(image.Image, int) ([]byte, error) {
	return []byte("RIFF\x00\x00\x00\x00WEBPVP8 stub"), nil
}

type brokenEncoder struct{}

func (brokenEncoder) EncodeWebP(image.Image, int) ([]byte, error) {
	return nil, errors.New("libwebp: /srv/private/path exploded")
}

// ---------------------------------------------------------------------------
// POST /api/upload
// ---------------------------------------------------------------------------

func TestUploadImage_DownscalesToWebP(t *testing.T) {
	env := testServer(t)

	result := uploadAndDecode(t, env, createTestJPEG(t, 2400, 1600))

	assert.True(t, result.Success)
	assert.True(t, strings.HasSuffix(result.Filename, ".webp"))
	assert.Equal(t, "/uploads/"+result.Filename, result.URL)
	assert.Equal(t, 1620, result.Width)
	assert.Equal(t, 1080, result.Height)

	stored, err := os.ReadFile(filepath.Join(env.dir, result.Filename))
	require.NoError(t, err)
	assert.Equal(t, "webp", imageproc.DetectFormat(stored))
	assert.Equal(t, int64(len(stored)), result.Size)

	// Served back read-only from the same path space.
	resp, err := http.Get(env.ts.URL + result.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/webp", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, stored, served)
}

func TestUploadImage_NeverEnlarges(t *testing.T) {
	env := testServer(t)

	result := uploadAndDecode(t, env, createTestPNG(t, 100, 50))
	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 50, result.Height)
}

func TestUploadImage_FilenameIgnoresClientName(t *testing.T) {
	env := testServer(t)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})

	body, ct := multipartBody(t, "image", "../../etc/passwd.jpg", createTestJPEG(t, 10, 10), nil)
	resp := postUpload(t, http.DefaultClient, env, body, ct, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.UploadResult
	decodeResponse(t, resp, &result)
	assert.NotContains(t, result.Filename, "passwd")
	assert.True(t, storage.ValidName(result.Filename))
	assert.Equal(t, []string{result.Filename}, storedFiles(t, env.dir))
}

func TestUploadImage_MissingFile(t *testing.T) {
	env := testServer(t)

	body, ct := multipartBody(t, "", "", nil, map[string]string{"title": "no file"})
	resp := postUpload(t, http.DefaultClient, env, body, ct, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e errorBody
	decodeResponse(t, resp, &e)
	assert.False(t, e.Success)
	assert.Equal(t, "No image file provided", e.Error)
	assert.Empty(t, storedFiles(t, env.dir))
}

func TestUploadImage_WrongFieldName(t *testing.T) {
	env := testServer(t)

	body, ct := multipartBody(t, "file", "photo.jpg", createTestJPEG(t, 10, 10), nil)
	resp := postUpload(t, http.DefaultClient, env, body, ct, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadImage_NotAnImage(t *testing.T) {
	env := testServer(t)

	// The .jpg extension does not matter, content is sniffed.
	resp := uploadFile(t, env, "photo.jpg", []byte("%PDF-1.7 definitely not an image"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e errorBody
	decodeResponse(t, resp, &e)
	assert.Equal(t, "File is not a supported image", e.Error)
	assert.Empty(t, storedFiles(t, env.dir))
}

func TestUploadImage_TextStartingWithBMIsRejected(t *testing.T) {
	env := testServer(t)

	resp := uploadFile(t, env, "notes.bmp", []byte("BM this is a plain text note"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e errorBody
	decodeResponse(t, resp, &e)
	assert.Equal(t, "File is not a supported image", e.Error)
	assert.Empty(t, storedFiles(t, env.dir))
}

func TestUploadImage_TranscodeFailureIsGeneric(t *testing.T) {
	env := testServer(t)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, brokenEncoder{})

	resp := uploadFile(t, env, "photo.jpg", createTestJPEG(t, 20, 20))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var e errorBody
	decodeResponse(t, resp, &e)
	assert.Equal(t, "Failed to upload image", e.Error)
	assert.NotContains(t, e.Error, "/srv/private")
	assert.Empty(t, storedFiles(t, env.dir))
}

func TestUploadImage_TooLarge(t *testing.T) {
	env := testServer(t, func(cfg *config.Config) { cfg.MaxUploadBytes = 2048 })

	resp := uploadFile(t, env, "big.png", bytes.Repeat([]byte{0x89}, 8192))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var e errorBody
	decodeResponse(t, resp, &e)
	assert.Contains(t, e.Error, "2.0 KiB")
}

func TestUploadImage_FromURL(t *testing.T) {
	jpg := createTestJPEG(t, 64, 48)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	defer origin.Close()

	env := testServer(t, allowPrivateFetch)

	body, ct := multipartBody(t, "", "", nil, map[string]string{"url": origin.URL + "/photo.jpg"})
	resp := postUpload(t, http.DefaultClient, env, body, ct, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.UploadResult
	decodeResponse(t, resp, &result)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 48, result.Height)

	// Upstream errors are rejected, not stored.
	body, ct = multipartBody(t, "", "", nil, map[string]string{"url": origin.URL + "/missing.jpg"})
	resp = postUpload(t, http.DefaultClient, env, body, ct, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, storedFiles(t, env.dir), 1)
}

func TestUploadImage_FromURLBlocksPrivateAddresses(t *testing.T) {
	var hits atomic.Int32
	jpg := createTestJPEG(t, 8, 8)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	defer origin.Close()

	env := testServer(t)

	for _, u := range []string{
		origin.URL + "/photo.jpg",
		strings.Replace(origin.URL, "127.0.0.1", "localhost", 1) + "/photo.jpg",
	} {
		body, ct := multipartBody(t, "", "", nil, map[string]string{"url": u})
		resp := postUpload(t, http.DefaultClient, env, body, ct, "")
		var e errorBody
		decodeResponse(t, resp, &e)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, u)
		assert.Equal(t, "Image URL is not allowed", e.Error, u)
	}
	assert.Zero(t, hits.Load())
	assert.Empty(t, storedFiles(t, env.dir))
}

func TestUploadImage_FromURLRejectsOtherSchemes(t *testing.T) {
	env := testServer(t)

	for _, u := range []string{"file:///etc/passwd", "ftp://example.com/a.jpg", "not a url"} {
		body, ct := multipartBody(t, "", "", nil, map[string]string{"url": u})
		resp := postUpload(t, http.DefaultClient, env, body, ct, "")
		var e errorBody
		decodeResponse(t, resp, &e)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, u)
		assert.Equal(t, "Invalid image URL", e.Error, u)
	}
}

func TestUploadImage_RequiresTokenWhenConfigured(t *testing.T) {
	env := testServer(t, withToken)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})

	body, ct := multipartBody(t, "image", "a.jpg", createTestJPEG(t, 8, 8), nil)
	resp := postUpload(t, http.DefaultClient, env, body, ct, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body, ct = multipartBody(t, "image", "a.jpg", createTestJPEG(t, 8, 8), nil)
	resp = postUpload(t, http.DefaultClient, env, body, ct, testToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadImage_PublishesEvent(t *testing.T) {
	env := testServer(t)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})

	result := uploadAndDecode(t, env, createTestJPEG(t, 8, 8))

	evs := env.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.UploadCreated, evs[0].Type)
	assert.Equal(t, result.Filename, evs[0].Filename)
	assert.Equal(t, "/uploads/"+result.Filename, evs[0].URL)
}

func TestUploadImage_EventURLUsesPublicBase(t *testing.T) {
	env := testServer(t, func(cfg *config.Config) { cfg.PublicBaseURL = "https://studio.example.com" })
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})

	result := uploadAndDecode(t, env, createTestJPEG(t, 8, 8))
	assert.Equal(t, "/uploads/"+result.Filename, result.URL)

	resp := deleteUpload(t, env, result.Filename)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	evs := env.recorder.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "https://studio.example.com/uploads/"+result.Filename, evs[0].URL)
	assert.Equal(t, "https://studio.example.com/uploads/"+result.Filename, evs[1].URL)
}

func TestUploadImage_ConcurrentUploadsGetDistinctNames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1000-upload run in short mode")
	}
	env := testServer(t)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})

	const total, workers = 1000, 50
	jpg := createTestJPEG(t, 16, 16)
	client := &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: workers}}

	var (
		mu    sync.Mutex
		names = make(map[string]struct{}, total)
		wg    sync.WaitGroup
		sem   = make(chan struct{}, workers)
	)
	for range total {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			body, ct := multipartBody(t, "image", "same-name.jpg", jpg, nil)
			resp := postUpload(t, client, env, body, ct, "")
			var result model.UploadResult
			decodeResponse(t, resp, &result)
			if !assert.Equal(t, http.StatusOK, resp.StatusCode) {
				return
			}
			mu.Lock()
			names[result.Filename] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, names, total)
	assert.Len(t, storedFiles(t, env.dir), total)
}

// ---------------------------------------------------------------------------
// GET /api/uploads
// ---------------------------------------------------------------------------

func TestListUploads_Empty(t *testing.T) {
	env := testServer(t)

	resp, err := http.Get(env.ts.URL + "/api/uploads")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	decodeResponse(t, resp, &body)
	assert.JSONEq(t, `[]`, string(body["images"]))
}

func TestListUploads_NewestFirst(t *testing.T) {
	env := testServer(t)
	require.NoError(t, os.MkdirAll(env.dir, 0755))

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	files := map[string]time.Time{
		"old.webp":    base,
		"newest.webp": base.Add(30 * time.Minute),
		"middle.webp": base.Add(10 * time.Minute),
		"legacy.jpg":  base.Add(40 * time.Minute),
	}
	for name, mtime := range files {
		p := filepath.Join(env.dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	resp, err := http.Get(env.ts.URL + "/api/uploads")
	require.NoError(t, err)

	var body struct {
		Images []model.UploadedImage `json:"images"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Images, 3)
	assert.Equal(t, "newest.webp", body.Images[0].Filename)
	assert.Equal(t, "middle.webp", body.Images[1].Filename)
	assert.Equal(t, "old.webp", body.Images[2].Filename)
	assert.Equal(t, "/uploads/newest.webp", body.Images[0].URL)
	assert.True(t, body.Images[0].UploadDate.Equal(base.Add(30*time.Minute)))
}

// ---------------------------------------------------------------------------
// DELETE /api/uploads/{filename}
// ---------------------------------------------------------------------------

func deleteUpload(t *testing.T, env *testEnv, name string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/uploads/"+url.PathEscape(name), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestDeleteUpload(t *testing.T) {
	env := testServer(t)
	env.srv.Handler.Normalizer = imageproc.NewNormalizer(imageproc.DefaultEnvelope, stubEncoder{})
	result := uploadAndDecode(t, env, createTestJPEG(t, 8, 8))

	resp := deleteUpload(t, env, result.Filename)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ok map[string]any
	decodeResponse(t, resp, &ok)
	assert.Equal(t, true, ok["success"])
	assert.Empty(t, storedFiles(t, env.dir))

	// Repeating is a clean 404, not a crash.
	resp = deleteUpload(t, env, result.Filename)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	evs := env.recorder.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.UploadDeleted, evs[1].Type)
}

func TestDeleteUpload_RejectsTraversal(t *testing.T) {
	env := testServer(t)

	resp := deleteUpload(t, env, "..%2Fstudio.db")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// GET /uploads/{filename}
// ---------------------------------------------------------------------------

func TestServeUpload_NotFound(t *testing.T) {
	env := testServer(t)

	resp, err := http.Get(env.ts.URL + "/uploads/missing.webp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
