package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// Tool is the interface that all MCP tool implementations must satisfy
type Tool interface {
	// Definition returns the tool's definition for MCP registration
	Definition() mcp.Tool

	// Execute runs the tool against already decoded arguments. Each call is
	// independent: implementations hold only immutable configuration.
	Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error)
}

// Prompt is implemented by components that expose an MCP prompt
type Prompt interface {
	Definition() mcp.Prompt
	Get(ctx context.Context, logger *logrus.Logger, args map[string]string) (*mcp.GetPromptResult, error)
}
