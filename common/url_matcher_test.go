package common

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewURLMatcher(t *testing.T) {
	t.Parallel()

	t.Run("nil matches everything", func(t *testing.T) {
		t.Parallel()
		m := NewURLMatcher(nil)
		assert.True(t, m.Match("https://example.com/"))
		assert.True(t, m.Match(""))
	})

	t.Run("literal string matches exactly", func(t *testing.T) {
		t.Parallel()
		m := NewURLMatcher("https://example.com/")
		assert.True(t, m.Match("https://example.com/"))
		assert.False(t, m.Match("https://example.com/other"))
	})

	t.Run("glob pattern", func(t *testing.T) {
		t.Parallel()
		m := NewURLMatcher("https://example.com/api/*")
		assert.True(t, m.Match("https://example.com/api/users"))
		assert.False(t, m.Match("https://example.com/other"))
	})

	t.Run("regexp", func(t *testing.T) {
		t.Parallel()
		m := NewURLMatcher(regexp.MustCompile(`/api/\d+$`))
		assert.True(t, m.Match("https://example.com/api/42"))
		assert.False(t, m.Match("https://example.com/api/users"))
	})

	t.Run("predicate", func(t *testing.T) {
		t.Parallel()
		m := NewURLMatcher(func(url string) bool { return url == "x" })
		assert.True(t, m.Match("x"))
		assert.False(t, m.Match("y"))
	})
}
