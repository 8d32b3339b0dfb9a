//go:build conformance

package conformance

import (
	"net/http"
	"strings"
	"testing"
)

func TestAuth_UploadWithoutToken_401(t *testing.T) {
	skipWithoutToken(t)

	body, contentType := multipartBody(t, "image", "a.png", makePNG(t, 4, 4))
	req, _ := http.NewRequest("POST", serverURL("/api/upload"), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer wrong-token-xxx")
	resp := doRequest(t, req)
	raw := decodeBody(t, resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	assertErrorShape(t, raw)
}

func TestAuth_PutRecordWithoutToken_401(t *testing.T) {
	skipWithoutToken(t)

	req, _ := http.NewRequest("PUT", serverURL("/api/carousel/x"), strings.NewReader(`{"url":"https://cdn.example.com/a.jpg"}`))
	req.Header.Set("Authorization", "Bearer wrong-token-xxx")
	resp := doRequest(t, req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuth_ReadsAreOpen(t *testing.T) {
	req, _ := http.NewRequest("GET", serverURL("/api/uploads"), nil)
	req.Header.Set("Authorization", "Bearer wrong-token-xxx")
	resp := doRequest(t, req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	status, raw := doJSON(t, "GET", serverURL("/health"), nil)
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if raw["status"] != "ok" {
		t.Errorf("expected status ok, got %v", raw["status"])
	}
}
