package webfetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sirupsen/logrus"
)

// FetchPrompt lets a user pull a page into the conversation by hand
type FetchPrompt struct {
	fetcher   URLFetcher
	userAgent string
}

// NewFetchPrompt creates the fetch prompt. Requests identify as user initiated.
func NewFetchPrompt(cfg config.Config, fetcher URLFetcher) *FetchPrompt {
	return &FetchPrompt{
		fetcher:   fetcher,
		userAgent: cfg.UserAgentManual,
	}
}

// Definition returns the prompt's definition for MCP registration
func (p *FetchPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt(
		"fetch",
		mcp.WithPromptDescription("Fetch a URL and extract its contents as markdown"),
		mcp.WithArgument("url",
			mcp.ArgumentDescription("URL to fetch"),
			mcp.RequiredArgument(),
		),
	)
}

// Get fetches the page in full. A failed fetch still produces a prompt whose
// message explains the failure.
func (p *FetchPrompt) Get(ctx context.Context, logger *logrus.Logger, args map[string]string) (*mcp.GetPromptResult, error) {
	targetURL := strings.TrimSpace(args["url"])
	if targetURL == "" {
		return nil, tools.InvalidParams("URL is required")
	}

	result, err := p.fetcher.Fetch(ctx, targetURL, p.userAgent, false)
	if err != nil {
		logger.WithError(err).WithField("url", telemetry.SanitiseURL(targetURL)).Info("Prompt fetch failed")
		return mcp.NewGetPromptResult(
			fmt.Sprintf("Failed to fetch %s", targetURL),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(err.Error())),
			},
		), nil
	}

	return mcp.NewGetPromptResult(
		fmt.Sprintf("Contents of %s", targetURL),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(result.Prefix+result.Body)),
		},
	), nil
}
