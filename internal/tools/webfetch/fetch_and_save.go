package webfetch

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sirupsen/logrus"
)

const fetchAndSaveDescription = `Fetches a URL from the internet using Jina Reader API (with fallback to standard fetch) and saves the content to a file.

This tool first tries to fetch content using Jina Reader API for better markdown conversion, and falls back to the standard fetch method if Jina fails. Files are saved in the configured working directory. If no file path is specified, an automatic filename will be generated based on the URL.`

// FetchAndSaveTool fetches through the reader service and writes the full text to disk
type FetchAndSaveTool struct {
	fetcher   URLFetcher
	userAgent string
	workDir   string
	now       func() time.Time
}

// NewFetchAndSaveTool creates the fetch_and_save tool. fetcher is normally a
// ReaderFetcher wrapping the direct Fetcher.
func NewFetchAndSaveTool(cfg config.Config, fetcher URLFetcher) *FetchAndSaveTool {
	return &FetchAndSaveTool{
		fetcher:   fetcher,
		userAgent: cfg.UserAgentAutonomous,
		workDir:   cfg.WorkDir,
		now:       time.Now,
	}
}

// Definition returns the tool's definition for MCP registration
func (t *FetchAndSaveTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"fetch_and_save",
		mcp.WithDescription(fetchAndSaveDescription),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL to fetch"),
		),
		mcp.WithString("file_path",
			mcp.Description("File path to save the content (optional, will auto-generate if not provided)"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Get the actual HTML content of the requested page, without simplification."),
			mcp.DefaultBool(false),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Execute fetches the URL, saves the complete content and reports where it went
func (t *FetchAndSaveTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	request, err := parseFetchAndSaveRequest(args)
	if err != nil {
		return nil, err
	}

	path, err := ResolvePath(request.URL, request.FilePath, t.workDir, t.now())
	if err != nil {
		return nil, tools.InvalidParams("%v", err)
	}

	result, err := t.fetcher.Fetch(ctx, request.URL, t.userAgent, request.Raw)
	if err != nil {
		return nil, tools.FetchError(err, "Failed to fetch and save: %v", err)
	}

	if err := SaveContent(ctx, logger, path, result.Body); err != nil {
		return nil, tools.FetchError(err, "Failed to fetch and save: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"url":          telemetry.SanitiseURL(request.URL),
		"path":         path,
		"content_type": result.ContentType,
		"via_reader":   result.Prefix == ReaderPrefix,
		"length":       len([]rune(result.Body)),
	}).Info("Fetch and save completed")

	message := fmt.Sprintf("Successfully fetched content from %s and saved to %s\n\n%sContent preview (first %d chars):\n%s",
		request.URL, path, result.Prefix, PreviewLength, Preview(result.Body))

	return mcp.NewToolResultText(message), nil
}
