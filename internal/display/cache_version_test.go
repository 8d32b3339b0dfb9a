package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheVersion_Apply(t *testing.T) {
	v := NewCacheVersion(42)

	assert.Equal(t, "https://cdn/x.jpg?cb=42", v.Apply("https://cdn/x.jpg"))
	assert.Equal(t, "https://cdn/x.jpg?cb=42&w=100", v.Apply("https://cdn/x.jpg?w=100"))
	assert.Equal(t, "https://cdn/x.jpg?cb=42", v.Apply("https://cdn/x.jpg?cb=7"))
	assert.Equal(t, "data:image/png;base64,AAAA", v.Apply("data:image/png;base64,AAAA"))
	assert.Equal(t, "", v.Apply(""))
}

func TestCacheVersion_BumpIsMonotonic(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	v := NewCacheVersion(0).Bump(now)
	assert.Equal(t, now.UnixMilli(), v.Int64())

	// Same millisecond, or a clock that went backwards, still moves forward.
	again := v.Bump(now)
	assert.Equal(t, v.Int64()+1, again.Int64())
	back := again.Bump(now.Add(-time.Hour))
	assert.Greater(t, back.Int64(), again.Int64())
}

func TestCacheVersion_BumpDoesNotMutate(t *testing.T) {
	v := NewCacheVersion(5)
	_ = v.Bump(time.Now())
	assert.Equal(t, int64(5), v.Int64())
	assert.Equal(t, "5", v.String())
}
