package webfetch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sammcj/mcp-context/internal/tools/webfetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestFetchTool_Definition(t *testing.T) {
	tool := webfetch.NewFetchTool(testConfig(t, config.Options{}), &stubFetcher{})
	def := tool.Definition()

	assert.Equal(t, "fetch", def.Name)
	assert.Equal(t, []string{"url"}, def.InputSchema.Required)
	for _, param := range []string{"url", "max_length", "start_index", "raw"} {
		assert.Contains(t, def.InputSchema.Properties, param)
	}
}

func TestFetchTool_Execute(t *testing.T) {
	cfg := testConfig(t, config.Options{})
	fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "0123456789", Prefix: "P:\n"}}
	tool := webfetch.NewFetchTool(cfg, fetcher)

	result, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
		"url":        "https://example.com/doc",
		"max_length": float64(4),
	})
	require.NoError(t, err)

	assert.Equal(t,
		"P:\nContents of https://example.com/doc:\n0123\n\n<error>Content truncated. Call the fetch tool with a start_index of 4 to get more content.</error>",
		resultText(t, result))
	assert.Equal(t, []stubCall{{URL: "https://example.com/doc", UserAgent: cfg.UserAgentAutonomous}}, fetcher.Calls())
}

func TestFetchTool_PastEnd(t *testing.T) {
	fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "short"}}
	tool := webfetch.NewFetchTool(testConfig(t, config.Options{}), fetcher)

	result, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
		"url":         "https://example.com",
		"start_index": float64(50),
	})
	require.NoError(t, err)
	assert.Equal(t, "Contents of https://example.com:\n"+webfetch.NoMoreContentMarker, resultText(t, result))
}

func TestFetchTool_StartIndexBeyondInt32(t *testing.T) {
	fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "short"}}
	tool := webfetch.NewFetchTool(testConfig(t, config.Options{}), fetcher)

	result, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
		"url":         "https://example.com",
		"start_index": float64(1e15),
	})
	require.NoError(t, err)
	assert.Equal(t, "Contents of https://example.com:\n"+webfetch.NoMoreContentMarker, resultText(t, result))
}

func TestFetchTool_RawFlagPassedThrough(t *testing.T) {
	fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "<html></html>"}}
	tool := webfetch.NewFetchTool(testConfig(t, config.Options{UserAgent: "custom/2"}), fetcher)

	_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{"url": "https://example.com", "raw": true})
	require.NoError(t, err)
	assert.Equal(t, []stubCall{{URL: "https://example.com", UserAgent: "custom/2", ForceRaw: true}}, fetcher.Calls())
}

func TestFetchTool_Errors(t *testing.T) {
	t.Run("validation happens before fetching", func(t *testing.T) {
		fetcher := &stubFetcher{}
		tool := webfetch.NewFetchTool(testConfig(t, config.Options{}), fetcher)

		_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{"url": "https://example.com", "max_length": float64(-5)})
		require.Error(t, err)
		assert.True(t, tools.IsKind(err, tools.KindInvalidParams))
		assert.Empty(t, fetcher.Calls())
	})

	t.Run("fetch errors propagate", func(t *testing.T) {
		fetchErr := tools.FetchError(nil, "Failed to fetch https://example.com - status code 500")
		tool := webfetch.NewFetchTool(testConfig(t, config.Options{}), &stubFetcher{err: fetchErr})

		_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{"url": "https://example.com"})
		require.Error(t, err)
		assert.Equal(t, "Failed to fetch https://example.com - status code 500", err.Error())
	})
}

func TestFetchAndSaveTool_ExplicitPath(t *testing.T) {
	workDir := t.TempDir()
	cfg := testConfig(t, config.Options{WorkDir: workDir})
	fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "# Saved page", Prefix: webfetch.ReaderPrefix}}
	tool := webfetch.NewFetchAndSaveTool(cfg, fetcher)

	result, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
		"url":       "https://example.com/page",
		"file_path": "out/page.md",
	})
	require.NoError(t, err)

	path := filepath.Join(workDir, "out", "page.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Saved page", string(data))

	assert.Equal(t,
		"Successfully fetched content from https://example.com/page and saved to "+path+
			"\n\nContent fetched via Jina Reader API:\nContent preview (first 500 chars):\n# Saved page",
		resultText(t, result))
}

func TestFetchAndSaveTool_GeneratedPathKeepsFullContent(t *testing.T) {
	workDir := t.TempDir()
	body := strings.Repeat("word ", 400)
	tool := webfetch.NewFetchAndSaveTool(testConfig(t, config.Options{WorkDir: workDir}), &stubFetcher{result: webfetch.FetchResult{Body: body}})

	result, err := tool.Execute(context.Background(), quietLogger(), map[string]any{"url": "https://example.com/guide.html"})
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(workDir, "guide_*.md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	text := resultText(t, result)
	assert.Contains(t, text, "saved to "+matches[0])
	assert.True(t, strings.HasSuffix(text, body[:webfetch.PreviewLength]+"..."))
}

func TestFetchAndSaveTool_Errors(t *testing.T) {
	t.Run("path escaping work dir", func(t *testing.T) {
		fetcher := &stubFetcher{}
		tool := webfetch.NewFetchAndSaveTool(testConfig(t, config.Options{}), fetcher)

		_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
			"url":       "https://example.com",
			"file_path": "../../etc/passwd",
		})
		require.Error(t, err)
		assert.True(t, tools.IsKind(err, tools.KindInvalidParams))
		assert.Empty(t, fetcher.Calls())
	})

	t.Run("fetch failure", func(t *testing.T) {
		cause := errors.New("Failed to fetch https://example.com - status code 404")
		workDir := t.TempDir()
		tool := webfetch.NewFetchAndSaveTool(testConfig(t, config.Options{WorkDir: workDir}), &stubFetcher{err: cause})

		_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{"url": "https://example.com"})
		require.Error(t, err)
		assert.Equal(t, "Failed to fetch and save: Failed to fetch https://example.com - status code 404", err.Error())
		assert.ErrorIs(t, err, cause)

		entries, err := os.ReadDir(workDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("write failure", func(t *testing.T) {
		workDir := t.TempDir()
		blocker := filepath.Join(workDir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

		tool := webfetch.NewFetchAndSaveTool(testConfig(t, config.Options{WorkDir: workDir}), &stubFetcher{result: webfetch.FetchResult{Body: "x"}})
		_, err := tool.Execute(context.Background(), quietLogger(), map[string]any{
			"url":       "https://example.com",
			"file_path": "blocker/page.md",
		})
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "Failed to fetch and save: "))
		assert.True(t, tools.IsKind(err, tools.KindFetch))
	})
}

func TestFetchPrompt(t *testing.T) {
	cfg := testConfig(t, config.Options{})

	t.Run("definition", func(t *testing.T) {
		def := webfetch.NewFetchPrompt(cfg, &stubFetcher{}).Definition()
		assert.Equal(t, "fetch", def.Name)
		require.Len(t, def.Arguments, 1)
		assert.Equal(t, "url", def.Arguments[0].Name)
		assert.True(t, def.Arguments[0].Required)
	})

	t.Run("success uses manual identity", func(t *testing.T) {
		fetcher := &stubFetcher{result: webfetch.FetchResult{Body: "# Title", Prefix: "P:\n"}}
		result, err := webfetch.NewFetchPrompt(cfg, fetcher).Get(context.Background(), quietLogger(), map[string]string{"url": "https://example.com"})
		require.NoError(t, err)

		assert.Equal(t, "Contents of https://example.com", result.Description)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, mcp.RoleUser, result.Messages[0].Role)
		assert.Equal(t, "P:\n# Title", result.Messages[0].Content.(mcp.TextContent).Text)
		assert.Equal(t, []stubCall{{URL: "https://example.com", UserAgent: cfg.UserAgentManual}}, fetcher.Calls())
	})

	t.Run("fetch failure becomes message", func(t *testing.T) {
		fetcher := &stubFetcher{err: tools.FetchError(nil, "Failed to fetch https://example.com - status code 503")}
		result, err := webfetch.NewFetchPrompt(cfg, fetcher).Get(context.Background(), quietLogger(), map[string]string{"url": "https://example.com"})
		require.NoError(t, err)

		assert.Equal(t, "Failed to fetch https://example.com", result.Description)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, "Failed to fetch https://example.com - status code 503", result.Messages[0].Content.(mcp.TextContent).Text)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := webfetch.NewFetchPrompt(cfg, &stubFetcher{}).Get(context.Background(), quietLogger(), map[string]string{})
		require.Error(t, err)
		assert.Equal(t, "URL is required", err.Error())
		assert.True(t, tools.IsKind(err, tools.KindInvalidParams))
	})
}

func TestNew(t *testing.T) {
	set := webfetch.New(testConfig(t, config.Options{}), quietLogger())

	var names []string
	for _, tool := range set.Tools {
		names = append(names, tool.Definition().Name)
	}
	assert.Equal(t, []string{"fetch", "fetch_and_save"}, names)
	require.NotNil(t, set.Prompt)
	assert.Equal(t, "fetch", set.Prompt.Definition().Name)
}
