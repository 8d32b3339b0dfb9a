// Package display holds helpers used when rendering stored image URLs.
package display

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CacheParam is the query parameter carrying the cache version.
const CacheParam = "cb"

// CacheVersion is a token appended to image URLs so clients refetch images
// after a mutation. It is a value: Bump returns a new version and the
// receiver is left untouched.
type CacheVersion struct {
	v int64
}

// NewCacheVersion wraps a stored version value.
func NewCacheVersion(v int64) CacheVersion {
	return CacheVersion{v: v}
}

// Int64 returns the raw version value.
func (c CacheVersion) Int64() int64 {
	return c.v
}

func (c CacheVersion) String() string {
	return strconv.FormatInt(c.v, 10)
}

// Bump returns a version strictly greater than c. Versions track wall-clock
// milliseconds so they stay increasing across server restarts.
func (c CacheVersion) Bump(now time.Time) CacheVersion {
	next := now.UnixMilli()
	if next <= c.v {
		next = c.v + 1
	}
	return CacheVersion{v: next}
}

// Apply returns u with the cache parameter set to this version. Empty
// strings and data URIs are returned unchanged. An existing cache parameter
// is replaced rather than repeated.
func (c CacheVersion) Apply(u string) string {
	if u == "" || strings.HasPrefix(u, "data:") {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		return u + sep + CacheParam + "=" + c.String()
	}
	q := parsed.Query()
	q.Set(CacheParam, c.String())
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
