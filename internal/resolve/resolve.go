// Package resolve turns stored image URL fields into display-ready strings.
//
// Some historical records carry a JSON-serialized {"url": "..."} object in
// their url column instead of a plain string. DisplayURL repairs those on
// read; Parse classifies a stored value once at the data-access boundary so
// callers never have to sniff it again.
package resolve

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// NoImage is returned when a field holds no usable URL. Display code must
// render its "no image" state instead of handing this to an <img> element.
const NoImage = ""

// Kind classifies how a URL was stored.
type Kind int

const (
	// Plain is a URL or data URI stored as-is.
	Plain Kind = iota
	// Encoded is a legacy JSON object wrapping the real URL.
	Encoded
)

func (k Kind) String() string {
	if k == Encoded {
		return "encoded"
	}
	return "plain"
}

// StoredURL is the url column of a record, classified once on read.
type StoredURL struct {
	Kind Kind
	Raw  string
}

// Parse classifies a raw stored value.
func Parse(raw string) StoredURL {
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return StoredURL{Kind: Encoded, Raw: raw}
	}
	return StoredURL{Kind: Plain, Raw: raw}
}

// Display returns the display-ready URL for the stored value.
func (s StoredURL) Display() string {
	return DisplayURL(s.Raw)
}

// NeedsRepair reports whether rewriting the stored value would change it.
func (s StoredURL) NeedsRepair() bool {
	return s.Kind == Encoded && s.Display() != s.Raw
}

// MarshalJSON always emits the repaired string, never the wrapped object.
func (s StoredURL) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Display())
}

// UnmarshalJSON accepts either a string or a legacy object.
func (s *StoredURL) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Parse(str)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Parse(DisplayURL(v))
	return nil
}

// DisplayURL returns a clean URL string for any stored field value.
//
// Plain strings are returned unchanged. Strings beginning with "{" are
// JSON-decoded and their "url" property extracted; undecodable strings are
// returned unchanged. Objects yield their "url" property. Empty values and
// the placeholders "undefined" and "null" resolve to NoImage. DisplayURL
// never panics and DisplayURL(DisplayURL(x)) == DisplayURL(x).
func DisplayURL(raw any) (out string) {
	defer func() {
		if recover() != nil {
			out = NoImage
		}
	}()

	switch v := raw.(type) {
	case nil:
		return NoImage
	case string:
		return fromString(v)
	case *string:
		if v == nil {
			return NoImage
		}
		return fromString(*v)
	case []byte:
		return fromString(string(v))
	case json.RawMessage:
		var decoded any
		if json.Unmarshal(v, &decoded) == nil {
			return DisplayURL(decoded)
		}
		return fromString(string(v))
	case StoredURL:
		return fromString(v.Raw)
	case map[string]any:
		return fromObject(v)
	case map[string]string:
		u, ok := v["url"]
		if !ok {
			return fromString(fmt.Sprint(v))
		}
		return fromString(u)
	case fmt.Stringer:
		return fromString(v.String())
	}

	// Structs and other maps: look for a "url" property through their JSON form.
	if data, err := json.Marshal(raw); err == nil {
		var obj map[string]any
		if json.Unmarshal(data, &obj) == nil {
			return fromObject(obj)
		}
		var str string
		if json.Unmarshal(data, &str) == nil {
			return fromString(str)
		}
	}
	return fromString(fmt.Sprint(raw))
}

func fromObject(obj map[string]any) string {
	if u, ok := obj["url"]; ok {
		return DisplayURL(u)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return NoImage
	}
	return fromString(string(data))
}

func fromString(s string) string {
	trimmed := strings.TrimSpace(s)
	if isPlaceholder(trimmed) {
		return NoImage
	}
	if !strings.HasPrefix(trimmed, "{") {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return s
	}
	u, ok := obj["url"]
	if !ok {
		return s
	}
	return DisplayURL(u)
}

func isPlaceholder(s string) bool {
	switch s {
	case "", "undefined", "null":
		return true
	}
	return false
}

// IsFinal reports whether s may be written to a record: a data URI or an
// absolute http(s) URL with a host.
func IsFinal(s string) bool {
	if strings.HasPrefix(s, "data:") {
		return len(s) > len("data:")
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
