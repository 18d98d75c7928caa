package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/tools"
	"github.com/sammcj/mcp-context/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Fetcher retrieves a URL directly and simplifies HTML responses
type Fetcher struct {
	httpClient *http.Client
	simplifier ContentSimplifier
	logger     *logrus.Logger
}

// NewFetcher creates a Fetcher using the configured timeout and proxy
func NewFetcher(cfg config.Config, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		httpClient: httpclient.New(cfg.Timeout, cfg.ProxyURL, logger),
		simplifier: NewSimplifier(logger),
		logger:     logger,
	}
}

// Fetch performs a single GET. Transport failures and statuses >= 400 are
// returned as fetch errors. HTML is simplified unless forceRaw is set; anything
// else is returned verbatim behind an advisory prefix.
func (f *Fetcher) Fetch(ctx context.Context, targetURL, userAgent string, forceRaw bool) (result FetchResult, err error) {
	ctx, span := telemetry.StartFetchSpan(ctx, "direct", targetURL)
	defer func() { telemetry.EndFetchSpan(span, err, "") }()

	f.logger.WithField("url", telemetry.SanitiseURL(targetURL)).Debug("Fetching URL")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return FetchResult{}, tools.FetchError(err, "Failed to fetch %s: %v", targetURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, tools.FetchError(err, "Failed to fetch %s: %v", targetURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return FetchResult{}, tools.FetchError(nil, "Failed to fetch %s - status code %d", targetURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentSize))
	if err != nil {
		return FetchResult{}, tools.FetchError(err, "Failed to fetch %s: %v", targetURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := decodeBody(raw, contentType)

	f.logger.WithFields(logrus.Fields{
		"url":          telemetry.SanitiseURL(targetURL),
		"status_code":  resp.StatusCode,
		"content_type": contentType,
		"body_size":    len(raw),
	}).Debug("Received HTTP response")

	if IsHTML(contentType, page) && !forceRaw {
		return FetchResult{
			Body:        f.simplifier.Simplify(page, targetURL),
			ContentType: contentType,
		}, nil
	}

	return FetchResult{
		Body:        page,
		Prefix:      fmt.Sprintf(rawContentPrefix, contentType),
		ContentType: contentType,
	}, nil
}

// IsHTML reports whether a response should be treated as an HTML page: the
// content type mentions text/html, the first 100 characters contain "<html",
// or there is no content type at all.
func IsHTML(contentType, body string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return strings.Contains(firstRunes(body, 100), "<html")
}

func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// decodeBody converts a response body to UTF-8 using the declared or sniffed charset
func decodeBody(body []byte, contentType string) string {
	if utf8.Valid(body) && !declaresForeignCharset(contentType) {
		return string(body)
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return strings.ToValidUTF8(string(body), "�")
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return strings.ToValidUTF8(string(body), "�")
	}
	return string(decoded)
}

func declaresForeignCharset(contentType string) bool {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	cs := strings.ToLower(strings.TrimSpace(params["charset"]))
	return cs != "" && cs != "utf-8" && cs != "utf8" && cs != "us-ascii"
}
