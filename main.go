package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/registry"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sammcj/mcp-context/internal/tools/webfetch"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const appName = "mcp-context"

// Global resources that need cleanup
// Using atomic operations to prevent race conditions between signal handlers and cleanup
var (
	debugLogFile   atomic.Pointer[lumberjack.Logger]
	toolErrorLog   atomic.Pointer[tools.ToolErrorLogger]
	isStdioMode    atomic.Bool
	shutdownMu     sync.Mutex
	shutdownHooks  []func() error
	cleanupStarted atomic.Bool
)

const (
	// DefaultMemoryLimit is the default memory limit for the Go application (1GB)
	DefaultMemoryLimit = 1024 * 1024 * 1024
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))

	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// setMemoryLimit configures the Go runtime memory limit
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit

	if memLimitStr := os.Getenv("MCP_CONTEXT_MEMORY_LIMIT"); memLimitStr != "" {
		if parsed, err := strconv.ParseInt(memLimitStr, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}

	// Soft limit: the runtime adjusts GC to stay under it
	debug.SetMemoryLimit(memLimit)
}

// logDirectory returns ~/.mcp-context/logs
func logDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "."+appName, "logs"), nil
}

// configureLogging sends all log output to a size-rotated file. Nothing may be written to
// stdout or stderr in stdio mode, so if the file cannot be opened output is
// discarded there and only other transports fall back to stderr.
func configureLogging(logger *logrus.Logger, stdio bool) {
	logLevel := parseLogLevel()
	if stdio && logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)

	var output io.Writer = os.Stderr
	if stdio {
		output = io.Discard
	}

	if logDir, err := logDirectory(); err == nil {
		if err := os.MkdirAll(logDir, 0o700); err == nil {
			logFile := filepath.Join(logDir, appName+".log")
			// Probe first: lumberjack opens lazily and a failed write would go to stderr
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
				_ = file.Close()
				rotating := &lumberjack.Logger{
					Filename:   logFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     30, // days
				}
				debugLogFile.Store(rotating)
				output = rotating
			}
		}
	}

	logger.SetOutput(output)
	logrus.SetOutput(output)
	logger.WithField("level", logLevel.String()).Debug("Logging configured")
}

func addShutdownHook(hook func() error) {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

// loadConfig layers the optional YAML file under CLI flags and environment variables
func loadConfig(cmd *cli.Command) (config.Config, error) {
	fileOpts, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	flagOpts := config.Options{
		UserAgent:       cmd.String("user-agent"),
		ProxyURL:        cmd.String("proxy-url"),
		ReaderURL:       cmd.String("reader-url"),
		ReaderAPIKey:    cmd.String("reader-api-key"),
		ReaderRateLimit: cmd.Float("reader-rate-limit"),
		Timeout:         cmd.Duration("timeout"),
	}
	// work-dir has a non-empty default, so only an explicit value beats the config file
	if cmd.IsSet("work-dir") || fileOpts.WorkDir == "" {
		flagOpts.WorkDir = cmd.String("work-dir")
	}

	return config.New(fileOpts.Merge(flagOpts))
}

// newMCPServer exposes every enabled tool and prompt in reg over MCP
func newMCPServer(reg *registry.Registry) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer(appName, Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
	)

	for name, tool := range reg.GetEnabledTools() {
		mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if request.Params.Arguments != nil {
				var ok bool
				args, ok = request.Params.Arguments.(map[string]any)
				if !ok {
					return nil, tools.ForClient(tools.InvalidParams("invalid arguments type: expected object, got %T", request.Params.Arguments))
				}
			}
			result, err := reg.Dispatch(toolCtx, name, args)
			if err != nil {
				return nil, tools.ForClient(err)
			}
			return result, nil
		})
	}

	for name, prompt := range reg.GetPrompts() {
		mcpSrv.AddPrompt(prompt.Definition(), func(promptCtx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			result, err := reg.GetPrompt(promptCtx, name, request.Params.Arguments)
			if err != nil {
				return nil, tools.ForClient(err)
			}
			return result, nil
		})
	}

	return mcpSrv
}

// buildRegistry registers the fetch tools and prompt for cfg
func buildRegistry(cfg config.Config, logger *logrus.Logger, opts ...registry.Option) *registry.Registry {
	reg := registry.New(logger, opts...)

	set := webfetch.New(cfg, logger)
	for _, tool := range set.Tools {
		reg.Register(tool)
	}
	reg.RegisterPrompt(set.Prompt)

	return reg
}

func main() {
	setMemoryLimit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard output until the transport is known
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// A missing .env is fine
	_ = godotenv.Load()

	defer performCleanup(logger)

	app := &cli.Command{
		Name:    appName,
		Usage:   "MCP server that fetches web content for language models",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("MCP_CONTEXT_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "user-agent",
				Usage:   "Custom User-Agent for all outbound requests",
				Sources: cli.EnvVars("MCP_CONTEXT_USER_AGENT"),
			},
			&cli.StringFlag{
				Name:    "proxy-url",
				Usage:   "Proxy URL for outbound requests (defaults to HTTPS_PROXY/HTTP_PROXY)",
				Sources: cli.EnvVars("MCP_CONTEXT_PROXY_URL"),
			},
			&cli.StringFlag{
				Name:    "work-dir",
				Value:   config.DefaultWorkDir,
				Usage:   "Directory fetch_and_save writes relative paths into",
				Sources: cli.EnvVars("CONTEXT_DIR"),
			},
			&cli.StringFlag{
				Name:    "reader-url",
				Usage:   "Reader service base URL, the target URL is appended to it",
				Sources: cli.EnvVars("JINA_READER_URL"),
			},
			&cli.StringFlag{
				Name:    "reader-api-key",
				Usage:   "API key sent to the reader service",
				Sources: cli.EnvVars("JINA_API_KEY"),
			},
			&cli.FloatFlag{
				Name:    "reader-rate-limit",
				Usage:   "Maximum reader service requests per second (0 for unlimited)",
				Sources: cli.EnvVars("JINA_RATE_LIMIT"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Timeout for outbound HTTP requests",
				Sources: cli.EnvVars("MCP_CONTEXT_TIMEOUT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("%s version %s\n", appName, Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			port := cmd.String("port")
			baseURL := cmd.String("base-url")

			isStdioMode.Store(transport == "stdio")
			configureLogging(logger, isStdioMode.Load())

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			tracerShutdown, err := telemetry.InitTracer(logger)
			if err != nil {
				logger.WithError(err).Warn("Failed to initialise tracing")
			} else {
				addShutdownHook(tracerShutdown)
			}
			metricsShutdown, err := telemetry.InitMetrics(logger)
			if err != nil {
				logger.WithError(err).Warn("Failed to initialise metrics")
			} else {
				addShutdownHook(metricsShutdown)
			}

			opts := []registry.Option{registry.WithTransport(transport)}
			if strings.EqualFold(os.Getenv("LOG_TOOL_ERRORS"), "true") {
				if logDir, err := logDirectory(); err == nil {
					errorLogger, err := tools.NewToolErrorLogger(logger, logDir)
					if err != nil {
						logger.WithError(err).Warn("Failed to initialise tool error logger")
					} else {
						toolErrorLog.Store(errorLogger)
						logger.WithField("path", errorLogger.Path()).Info("Tool error logging enabled")
						opts = append(opts, registry.WithErrorLogger(errorLogger))
					}
				}
			}

			reg := buildRegistry(cfg, logger, opts...)

			if transport != "stdio" {
				logger.Infof("Starting %s version %s (commit: %s, built: %s)", appName, Version, Commit, BuildDate)
				logger.WithFields(logrus.Fields{
					"tools":    reg.EnabledToolNames(),
					"work_dir": cfg.WorkDir,
					"reader":   cfg.ReaderBaseURL,
				}).Info("Registered tools")
			}

			mcpSrv := newMCPServer(reg)

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				logger.WithField("port", port).Debug("Starting SSE server")
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(baseURL+"/sse"))
				return sseServer.Start(":" + port)
			case "http":
				return startStreamableHTTPServer(cliCtx, cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// stdio mode must not write anything outside the protocol stream
		if !isStdioMode.Load() {
			logger.Errorf("Error: %v", err)
		}
		performCleanup(logger)
		os.Exit(1)
	}
}

// performCleanup handles cleanup of resources on shutdown
func performCleanup(logger *logrus.Logger) {
	if !cleanupStarted.CompareAndSwap(false, true) {
		return
	}

	shutdownMu.Lock()
	hooks := shutdownHooks
	shutdownHooks = nil
	shutdownMu.Unlock()

	for _, hook := range hooks {
		if err := hook(); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}

	if errorLogger := toolErrorLog.Load(); errorLogger != nil {
		if err := errorLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}

	// Closed last since the logger may still be writing to it
	if file := debugLogFile.Load(); file != nil {
		_ = file.Close()
	}
}

// startStreamableHTTPServer configures and starts the Streamable HTTP server
func startStreamableHTTPServer(ctx context.Context, cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	}

	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		sessions := NewTimeoutSessionManager(sessionTimeout, "http", logger)
		go sessions.RunJanitor(ctx, sessionTimeout/2)
		opts = append(opts, mcpserver.WithSessionIdManager(sessions))
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start(":" + port)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	logger.Info("HTTP server stopped gracefully")
	return nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Debugf(format string, args ...any) {
	l.logger.Debugf(format, args...)
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Warnf(format string, args ...any) {
	l.logger.Warnf(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
