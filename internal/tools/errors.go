package tools

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorKind classifies errors that are reported back to the MCP client
type ErrorKind string

const (
	// KindInvalidParams covers argument validation failures
	KindInvalidParams ErrorKind = "invalid_params"
	// KindFetch covers transport failures, HTTP error statuses and save failures
	KindFetch ErrorKind = "fetch"
	// KindUnknownTool is returned when a call names a tool that is not registered
	KindUnknownTool ErrorKind = "unknown_tool"
)

// ToolError is a caller-visible error with a kind and a message.
// Err holds the underlying cause, if any.
type ToolError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Code maps the kind onto a JSON-RPC error code
func (e *ToolError) Code() int {
	switch e.Kind {
	case KindInvalidParams, KindUnknownTool:
		return mcp.INVALID_PARAMS
	default:
		return mcp.INTERNAL_ERROR
	}
}

// InvalidParams builds a validation error
func InvalidParams(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// FetchError builds a fetch error that wraps cause
func FetchError(cause error, format string, args ...any) *ToolError {
	return &ToolError{Kind: KindFetch, Message: fmt.Sprintf(format, args...), Err: cause}
}

// UnknownTool builds the error returned for an unregistered tool name
func UnknownTool(name string) *ToolError {
	return &ToolError{Kind: KindUnknownTool, Message: "Unknown tool: " + name}
}

// ForClient returns err in the form sent to MCP clients. mcp-go reports every
// handler error with the INTERNAL_ERROR code, so errors whose code would be
// INVALID_PARAMS carry their kind as a message prefix instead.
func ForClient(err error) error {
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Code() != mcp.INVALID_PARAMS {
		return err
	}
	return fmt.Errorf("%s: %w", KindInvalidParams, err)
}

// IsKind reports whether err is a ToolError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr) && toolErr.Kind == kind
}

// ErrorCategory returns a low-cardinality label for metrics and the error log
func ErrorCategory(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return string(toolErr.Kind)
	}
	return "internal"
}
