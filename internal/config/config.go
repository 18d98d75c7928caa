package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgentAutonomous identifies requests made on behalf of the model (tool calls)
	DefaultUserAgentAutonomous = "ModelContextProtocol/1.0 (Autonomous; +https://github.com/modelcontextprotocol/servers)"

	// DefaultUserAgentManual identifies requests made on behalf of the user (prompts)
	DefaultUserAgentManual = "ModelContextProtocol/1.0 (User-Specified; +https://github.com/modelcontextprotocol/servers)"

	// DefaultReaderBaseURL is the reader service that the target URL is appended to
	DefaultReaderBaseURL = "https://r.jina.ai/"

	// DefaultWorkDir is where fetch_and_save writes relative paths
	DefaultWorkDir = "data"

	// DefaultTimeout for outbound HTTP requests
	DefaultTimeout = 30 * time.Second
)

// Config is the resolved server configuration. It is built once at startup and
// copied by value into every component, so nothing can change it mid-call.
type Config struct {
	UserAgentAutonomous string
	UserAgentManual     string
	ProxyURL            string
	WorkDir             string
	ReaderBaseURL       string
	ReaderAPIKey        string
	// ReaderRateLimit is requests per second to the reader service, zero means unlimited
	ReaderRateLimit float64
	Timeout         time.Duration
}

// Options holds user supplied settings from the config file, environment and flags.
// Zero values mean "not set".
type Options struct {
	UserAgent       string        `yaml:"user_agent" toml:"user_agent"`
	ProxyURL        string        `yaml:"proxy_url" toml:"proxy_url"`
	WorkDir         string        `yaml:"work_dir" toml:"work_dir"`
	ReaderURL       string        `yaml:"reader_url" toml:"reader_url"`
	ReaderAPIKey    string        `yaml:"reader_api_key" toml:"reader_api_key"`
	ReaderRateLimit float64       `yaml:"reader_rate_limit" toml:"reader_rate_limit"`
	Timeout         time.Duration `yaml:"timeout" toml:"timeout"`
}

// LoadFile reads options from a YAML file, or TOML when the name ends in .toml.
// A missing file is not an error.
func LoadFile(path string) (Options, error) {
	var opts Options
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return opts, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return opts, nil
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return opts, nil
}

// Merge returns o with every non-zero field of override applied on top
func (o Options) Merge(override Options) Options {
	merged := o
	if override.UserAgent != "" {
		merged.UserAgent = override.UserAgent
	}
	if override.ProxyURL != "" {
		merged.ProxyURL = override.ProxyURL
	}
	if override.WorkDir != "" {
		merged.WorkDir = override.WorkDir
	}
	if override.ReaderURL != "" {
		merged.ReaderURL = override.ReaderURL
	}
	if override.ReaderAPIKey != "" {
		merged.ReaderAPIKey = override.ReaderAPIKey
	}
	if override.ReaderRateLimit != 0 {
		merged.ReaderRateLimit = override.ReaderRateLimit
	}
	if override.Timeout != 0 {
		merged.Timeout = override.Timeout
	}
	return merged
}

// New validates the options and resolves them into a Config with defaults applied.
// A custom user agent replaces both the autonomous and the manual identity.
func New(opts Options) (Config, error) {
	cfg := Config{
		UserAgentAutonomous: DefaultUserAgentAutonomous,
		UserAgentManual:     DefaultUserAgentManual,
		ProxyURL:            strings.TrimSpace(opts.ProxyURL),
		WorkDir:             strings.TrimSpace(opts.WorkDir),
		ReaderBaseURL:       strings.TrimSpace(opts.ReaderURL),
		ReaderAPIKey:        strings.TrimSpace(opts.ReaderAPIKey),
		ReaderRateLimit:     opts.ReaderRateLimit,
		Timeout:             opts.Timeout,
	}

	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		cfg.UserAgentAutonomous = ua
		cfg.UserAgentManual = ua
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultWorkDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReaderBaseURL == "" {
		cfg.ReaderBaseURL = DefaultReaderBaseURL
	}

	if cfg.ReaderRateLimit < 0 {
		return Config{}, fmt.Errorf("reader rate limit must be >= 0, got %v", cfg.ReaderRateLimit)
	}

	if cfg.ProxyURL != "" {
		if err := validateHTTPURL(cfg.ProxyURL); err != nil {
			return Config{}, fmt.Errorf("invalid proxy URL: %w", err)
		}
	}

	if err := validateHTTPURL(cfg.ReaderBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid reader URL: %w", err)
	}
	if !strings.HasSuffix(cfg.ReaderBaseURL, "/") {
		cfg.ReaderBaseURL += "/"
	}

	return cfg, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q (only http and https are supported)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
