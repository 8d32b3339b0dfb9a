//go:build conformance

package conformance

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
)

// serverURL builds a full URL for a path such as "/api/upload".
func serverURL(path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// doRequest performs an HTTP request and returns the response.
func doRequest(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	if authToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// decodeBody reads a JSON object response.
func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal JSON: %v\nbody: %s", err, string(data))
	}
	return raw
}

// doJSON performs a request with an optional JSON body and decodes the reply.
func doJSON(t *testing.T, method, url string, body io.Reader) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := doRequest(t, req)
	return resp.StatusCode, decodeBody(t, resp)
}

// doUpload posts content as the multipart "image" field.
func doUpload(t *testing.T, content []byte, fileName string) (int, map[string]any) {
	t.Helper()
	body, contentType := multipartBody(t, "image", fileName, content)
	req, err := http.NewRequest("POST", serverURL("/api/upload"), body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp := doRequest(t, req)
	return resp.StatusCode, decodeBody(t, resp)
}

// multipartBody builds a multipart form body with a single file field.
func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// assertErrorShape checks the {"success":false,"error":"..."} body.
func assertErrorShape(t *testing.T, raw map[string]any) {
	t.Helper()
	if success, ok := raw["success"].(bool); !ok || success {
		t.Errorf("'success' should be false, got %v", raw["success"])
	}
	if msg, ok := raw["error"].(string); !ok || msg == "" {
		t.Errorf("'error' should be a non-empty string, got %v", raw["error"])
	}
}

// assertField validates a field exists in an object and has the expected Go type.
func assertField[T any](t *testing.T, obj map[string]any, field string) T {
	t.Helper()
	val, ok := obj[field]
	if !ok {
		var zero T
		t.Errorf("missing field %q", field)
		return zero
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		t.Errorf("field %q: expected %T, got %T (%v)", field, zero, val, val)
		return zero
	}
	return typed
}

// uploadAndCleanup uploads a test image and deletes it when the test ends.
func uploadAndCleanup(t *testing.T) map[string]any {
	t.Helper()
	status, raw := doUpload(t, makePNG(t, 64, 48), "test.png")
	if status != http.StatusOK {
		t.Fatalf("upload failed with status %d: %v", status, raw)
	}
	filename, ok := raw["filename"].(string)
	if !ok {
		t.Fatalf("upload result missing filename")
	}
	t.Cleanup(func() {
		req, _ := http.NewRequest("DELETE", serverURL("/api/uploads/"+filename), nil)
		resp, err := http.DefaultClient.Do(withToken(req))
		if err == nil {
			resp.Body.Close()
		}
	})
	return raw
}

// putRecordAndCleanup writes a record and deletes it when the test ends.
func putRecordAndCleanup(t *testing.T, collection, id, body string) map[string]any {
	t.Helper()
	status, raw := doJSON(t, "PUT", serverURL("/api/"+collection+"/"+id), strings.NewReader(body))
	if status != http.StatusOK {
		t.Fatalf("put record failed with status %d: %v", status, raw)
	}
	t.Cleanup(func() {
		req, _ := http.NewRequest("DELETE", serverURL("/api/"+collection+"/"+id), nil)
		resp, err := http.DefaultClient.Do(withToken(req))
		if err == nil {
			resp.Body.Close()
		}
	})
	return raw
}

func withToken(req *http.Request) *http.Request {
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	return req
}

// skipWithoutToken skips tests that need the admin guard switched on.
func skipWithoutToken(t *testing.T) {
	t.Helper()
	if authToken == "" {
		t.Skip("STUDIO_ADMIN_TOKEN not set")
	}
}
