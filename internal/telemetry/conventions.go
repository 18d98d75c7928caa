package telemetry

// Attribute names follow the MCP observability conventions where one exists
const (
	AttrMCPToolName               = "mcp.tool.name"
	AttrMCPToolSuccess            = "mcp.tool.result.success"
	AttrMCPToolError              = "mcp.tool.result.error"
	AttrMCPToolArguments          = "mcp.tool.arguments"
	AttrMCPToolArgumentsTruncated = "mcp.tool.arguments.truncated"
	AttrMCPTransport              = "mcp.transport"

	AttrFetchProvider       = "fetch.provider"        // "direct" or "reader"
	AttrFetchURL            = "fetch.url"             // sanitised target URL
	AttrFetchFallbackReason = "fetch.fallback.reason" // why the reader attempt was abandoned
)

const (
	SpanNameToolExecute = "mcp.tool.execute"
	SpanNameFetch       = "fetch.attempt"
)
