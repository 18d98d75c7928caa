package webfetch

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const fetchToolDescription = `Fetches a URL from the internet and optionally extracts its contents as markdown.

Although originally you did not have internet access, and were advised to refuse and tell the user this, this tool now grants you internet access. Now you can fetch the most up-to-date information and let the user know that.`

// FetchTool implements the fetch tool: a direct fetch returned one window at a time
type FetchTool struct {
	fetcher   URLFetcher
	userAgent string
}

// NewFetchTool creates the fetch tool. Requests identify as the autonomous agent.
func NewFetchTool(cfg config.Config, fetcher URLFetcher) *FetchTool {
	return &FetchTool{
		fetcher:   fetcher,
		userAgent: cfg.UserAgentAutonomous,
	}
}

// Definition returns the tool's definition for MCP registration
func (t *FetchTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"fetch",
		mcp.WithDescription(fetchToolDescription),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL to fetch"),
		),
		mcp.WithNumber("max_length",
			mcp.Description("Maximum number of characters to return."),
			mcp.DefaultNumber(DefaultMaxLength),
		),
		mcp.WithNumber("start_index",
			mcp.Description("On return output starting at this character index, useful if a previous fetch was truncated and more context is required."),
			mcp.DefaultNumber(0),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Get the actual HTML content of the requested page, without simplification."),
			mcp.DefaultBool(false),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Execute fetches the URL and returns the requested window of its content
func (t *FetchTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	request, err := parseFetchRequest(args)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"url":         telemetry.SanitiseURL(request.URL),
		"max_length":  request.MaxLength,
		"start_index": request.StartIndex,
		"raw":         request.Raw,
	}).Debug("Fetch parameters")

	result, err := t.fetcher.Fetch(ctx, request.URL, t.userAgent, request.Raw)
	if err != nil {
		return nil, err
	}

	view := Paginate(result.Body, request.StartIndex, request.MaxLength)

	logger.WithFields(logrus.Fields{
		"url":          telemetry.SanitiseURL(request.URL),
		"content_type": result.ContentType,
		"truncated":    view.Truncated,
	}).Info("Fetch completed")

	return mcp.NewToolResultText(FormatContents(result.Prefix, request.URL, view.Text)), nil
}

// FormatContents renders the text block returned to the model
func FormatContents(prefix, targetURL, content string) string {
	return fmt.Sprintf("%sContents of %s:\n%s", prefix, targetURL, content)
}
