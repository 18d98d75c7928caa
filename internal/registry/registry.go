package registry

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sirupsen/logrus"
)

// Registry holds the tools and prompts exposed by the server and routes calls to them
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]tools.Tool
	prompts       map[string]tools.Prompt
	disabledTools map[string]bool
	logger        *logrus.Logger
	errorLogger   *tools.ToolErrorLogger
	transport     string
}

// Option configures a Registry
type Option func(*Registry)

// WithErrorLogger records failed tool calls to the given error log
func WithErrorLogger(errorLogger *tools.ToolErrorLogger) Option {
	return func(r *Registry) {
		r.errorLogger = errorLogger
	}
}

// WithTransport sets the transport name attached to metrics and error log entries
func WithTransport(transport string) Option {
	return func(r *Registry) {
		r.transport = transport
	}
}

// New creates a registry. Tools named in DISABLED_TOOLS are never registered.
func New(logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		tools:     make(map[string]tools.Tool),
		prompts:   make(map[string]tools.Prompt),
		logger:    logger,
		transport: "stdio",
	}
	for _, opt := range opts {
		opt(r)
	}
	r.disabledTools = parseDisabledTools(logger, os.Getenv("DISABLED_TOOLS"))
	return r
}

// parseDisabledTools parses a comma separated list of tool names
func parseDisabledTools(logger *logrus.Logger, value string) map[string]bool {
	disabled := make(map[string]bool)
	for tool := range strings.SplitSeq(value, ",") {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			continue
		}
		disabled[tool] = true
		logger.WithField("tool", tool).Debug("Tool disabled")
	}
	return disabled
}

// Register adds a tool unless it has been disabled
func (r *Registry) Register(tool tools.Tool) {
	name := tool.Definition().Name

	if r.disabledTools[name] {
		r.logger.WithField("tool", name).Debug("Tool not registered (disabled)")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.logger.WithField("tool", name).Debug("Tool successfully registered")
}

// RegisterPrompt adds a prompt
func (r *Registry) RegisterPrompt(prompt tools.Prompt) {
	name := prompt.Definition().Name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[name] = prompt
	r.logger.WithField("prompt", name).Debug("Prompt successfully registered")
}

// GetTool retrieves a tool by name
func (r *Registry) GetTool(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetEnabledTools returns all registered tools
func (r *Registry) GetEnabledTools() map[string]tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make(map[string]tools.Tool, len(r.tools))
	for name, tool := range r.tools {
		enabled[name] = tool
	}
	return enabled
}

// GetPrompts returns all registered prompts
func (r *Registry) GetPrompts() map[string]tools.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompts := make(map[string]tools.Prompt, len(r.prompts))
	for name, prompt := range r.prompts {
		prompts[name] = prompt
	}
	return prompts
}

// EnabledToolNames returns a sorted list of registered tool names
func (r *Registry) EnabledToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named tool. Unknown names yield an UnknownTool error.
// Every call is traced, counted and, on failure, written to the error log.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result *mcp.CallToolResult, err error) {
	tool, ok := r.GetTool(name)
	if !ok {
		err = tools.UnknownTool(name)
		r.recordFailure(ctx, name, args, err)
		return nil, err
	}

	ctx, span := telemetry.StartToolSpan(ctx, name, args)
	start := time.Now()
	defer func() {
		telemetry.EndToolSpan(span, err)
		telemetry.RecordToolCall(ctx, name, r.transport, err == nil, time.Since(start))
	}()

	r.logger.WithField("tool", name).Debug("Executing tool")

	result, err = tool.Execute(ctx, r.logger, args)
	if err != nil {
		r.recordFailure(ctx, name, args, err)
		return nil, err
	}
	return result, nil
}

// GetPrompt renders the named prompt
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	r.mu.RLock()
	prompt, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, tools.InvalidParams("Unknown prompt: %s", name)
	}
	return prompt.Get(ctx, r.logger, args)
}

func (r *Registry) recordFailure(ctx context.Context, name string, args map[string]any, err error) {
	category := tools.ErrorCategory(err)

	// stdout/stderr belong to the protocol in stdio mode
	if r.transport != "stdio" {
		entry := r.logger.WithError(err).WithFields(logrus.Fields{
			"tool":     name,
			"category": category,
		})
		if tools.IsKind(err, tools.KindInvalidParams) {
			entry.Warn("Tool call rejected")
		} else {
			entry.Error("Tool execution failed")
		}
	}

	telemetry.RecordToolError(ctx, name, category)
	r.errorLogger.LogToolError(name, args, err, r.transport)
}
