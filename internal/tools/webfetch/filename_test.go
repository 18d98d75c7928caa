package webfetch_test

import (
	"testing"
	"time"

	"github.com/sammcj/mcp-context/internal/tools/webfetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/docs/intro.html", "intro_20240309_140507.md"},
		{"https://www.example.com/", "example.com_20240309_140507.md"},
		{"https://example.com", "example.com_20240309_140507.md"},
		{"https://example.com/blog/my post/", "my_20post_20240309_140507.md"},
		{"https://example.com/archive.tar.gz", "archive.tar_20240309_140507.md"},
		{"https://example.com/a/b?q=1", "b_20240309_140507.md"},
		{"https://example.com/blog/my-post.html", "my-post_20240309_140507.md"},
		{"https://www.example.com/blog/my-post.html", "my-post_20240309_140507.md"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := webfetch.GenerateFilename(tt.url, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePath(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	workDir := t.TempDir()

	t.Run("absolute path used as is", func(t *testing.T) {
		abs := workDir + "/elsewhere/out.md"
		got, err := webfetch.ResolvePath("https://example.com", abs, "data", now)
		require.NoError(t, err)
		assert.Equal(t, abs, got)
	})

	t.Run("relative path joined under work dir", func(t *testing.T) {
		got, err := webfetch.ResolvePath("https://example.com", "notes/page.md", workDir, now)
		require.NoError(t, err)
		assert.Equal(t, workDir+"/notes/page.md", got)
	})

	t.Run("relative path may not escape", func(t *testing.T) {
		_, err := webfetch.ResolvePath("https://example.com", "../outside.md", workDir, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must stay inside the working directory")
	})

	t.Run("blank path generates a name", func(t *testing.T) {
		got, err := webfetch.ResolvePath("https://example.com/guide", "  ", workDir, now)
		require.NoError(t, err)
		assert.Equal(t, workDir+"/guide_20240309_140507.md", got)
	})
}
