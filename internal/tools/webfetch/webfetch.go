// Package webfetch implements the fetch and fetch_and_save tools and the fetch prompt.
package webfetch

import (
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sirupsen/logrus"
)

// Set is everything this package exposes over MCP
type Set struct {
	Tools  []tools.Tool
	Prompt tools.Prompt
}

// New wires the fetchers and builds the tools and prompt for cfg.
// fetch and the prompt use the direct fetcher; fetch_and_save goes through the reader service.
func New(cfg config.Config, logger *logrus.Logger) Set {
	direct := NewFetcher(cfg, logger)
	reader := NewReaderFetcher(cfg, direct, logger)

	return Set{
		Tools: []tools.Tool{
			NewFetchTool(cfg, direct),
			NewFetchAndSaveTool(cfg, reader),
		},
		Prompt: NewFetchPrompt(cfg, direct),
	}
}
