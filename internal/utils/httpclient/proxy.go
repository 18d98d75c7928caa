package httpclient

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// MaxRedirects is the number of redirects followed before giving up
const MaxRedirects = 10

// ErrTooManyRedirects is returned when a request exceeds MaxRedirects
var ErrTooManyRedirects = errors.New("too many redirects")

// ProxyEnvironmentVariables defines the order of preference for proxy environment variables
// Following standard conventions used by curl, wget, and other tools
var ProxyEnvironmentVariables = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

// New creates an HTTP client that follows redirects, routes through proxyURL when set
// (falling back to the proxy environment variables), and is wrapped with OTEL
// instrumentation when tracing is enabled.
func New(timeout time.Duration, proxyURL string, logger *logrus.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	fromEnv := false
	if proxyURL == "" {
		proxyURL = getProxyURL()
		fromEnv = proxyURL != ""
	}

	if proxyURL != "" {
		if parsedProxy, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsedProxy)
			if fromEnv {
				transport.Proxy = bypassLoopback(transport.Proxy)
			}
			if logger != nil {
				logger.WithField("proxy_url", redactProxyCredentials(proxyURL)).Debug("HTTP client configured with proxy")
			}
		} else if logger != nil {
			logger.WithError(err).WithField("proxy_url", redactProxyCredentials(proxyURL)).Warn("Failed to parse proxy URL, using direct connection")
		}
	} else {
		// Ignore the environment entirely when nothing is configured
		transport.Proxy = nil
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     telemetry.WrapHTTPTransport(transport),
		CheckRedirect: checkRedirect,
	}
}

// bypassLoopback sends loopback destinations direct, matching the usual
// behaviour of environment-configured proxies
func bypassLoopback(proxy func(*http.Request) (*url.URL, error)) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		host := req.URL.Hostname()
		if host == "localhost" {
			return nil, nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil, nil
		}
		return proxy(req)
	}
}

// checkRedirect caps the redirect chain and keeps the caller's identity on every hop
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return ErrTooManyRedirects
	}
	if ua := via[0].Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	return nil
}

// getProxyURL returns the first valid proxy URL from environment variables
// Returns empty string if no proxy is configured
func getProxyURL() string {
	for _, envVar := range ProxyEnvironmentVariables {
		if proxyURL := os.Getenv(envVar); proxyURL != "" {
			// Skip placeholder values that some tools use
			if proxyURL != "$HTTPS_PROXY" && proxyURL != "$HTTP_PROXY" {
				return proxyURL
			}
		}
	}
	return ""
}

// redactProxyCredentials removes credentials from proxy URL for safe logging
func redactProxyCredentials(proxyURL string) string {
	if parsed, err := url.Parse(proxyURL); err == nil {
		if parsed.User != nil {
			parsed.User = url.UserPassword("***", "***")
		}
		return parsed.String()
	}
	return "[invalid-url]"
}
