package webfetch_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sammcj/mcp-context/internal/tools/webfetch"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T, opts config.Options) config.Config {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	cfg, err := config.New(opts)
	require.NoError(t, err)
	return cfg
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"html content type", "text/html; charset=utf-8", "plain", true},
		{"uppercase content type", "TEXT/HTML", "", true},
		{"missing content type", "", `{"a":1}`, true},
		{"html tag early in body", "text/plain", "<!doctype html><html><body>x</body></html>", true},
		{"html tag too late", "text/plain", strings.Repeat(" ", 100) + "<html>", false},
		{"json", "application/json", `{"a":1}`, false},
		{"plain text", "text/plain", "just text", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, webfetch.IsHTML(tt.contentType, tt.body))
		})
	}
}

func TestFetcher_NonHTMLReturnedRawWithPrefix(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hello":"world"}`))
	}))
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	result, err := fetcher.Fetch(context.Background(), server.URL, "test-agent/1.0", false)
	require.NoError(t, err)

	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, `{"hello":"world"}`, result.Body)
	assert.Equal(t, "Content type application/json cannot be simplified to markdown, but here is the raw content:\n", result.Prefix)
	assert.Equal(t, "application/json", result.ContentType)
}

func TestFetcher_RawHTML(t *testing.T) {
	page := "<html><body><h1>Title</h1><p>Body</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	result, err := fetcher.Fetch(context.Background(), server.URL, "ua", true)
	require.NoError(t, err)

	assert.Equal(t, page, result.Body)
	assert.Contains(t, result.Prefix, "Content type text/html cannot be simplified")
}

func TestFetcher_HTMLIsSimplified(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Guide</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Guide</h1>
<p>` + strings.Repeat("This paragraph explains how the library should be configured for production use. ", 12) + `</p>
<p>` + strings.Repeat("A second paragraph covers the deployment steps and common mistakes. ", 12) + `</p>
</article></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	result, err := fetcher.Fetch(context.Background(), server.URL+"/guide", "ua", false)
	require.NoError(t, err)

	assert.Empty(t, result.Prefix)
	assert.NotContains(t, result.Body, "<p>")
	assert.NotContains(t, result.Body, "<body")
	assert.NotEmpty(t, result.Body)
}

func TestFetcher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL+"/missing", "ua", false)
	require.Error(t, err)

	assert.True(t, tools.IsKind(err, tools.KindFetch))
	assert.Equal(t, "Failed to fetch "+server.URL+"/missing - status code 404", err.Error())
}

func TestFetcher_RedirectStatusBelow400IsFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("moved here"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	result, err := fetcher.Fetch(context.Background(), server.URL+"/old", "ua", false)
	require.NoError(t, err)
	assert.Equal(t, "moved here", result.Body)
}

func TestFetcher_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	_, err := fetcher.Fetch(context.Background(), target, "ua", false)
	require.Error(t, err)

	assert.True(t, tools.IsKind(err, tools.KindFetch))
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to fetch "+target+": "))
}

func TestFetcher_DecodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		// "café" in Latin-1
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer server.Close()

	fetcher := webfetch.NewFetcher(testConfig(t, config.Options{}), quietLogger())
	result, err := fetcher.Fetch(context.Background(), server.URL, "ua", false)
	require.NoError(t, err)
	assert.Equal(t, "café", result.Body)
}
