package webfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sammcj/mcp-context/internal/config"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sammcj/mcp-context/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type outcomeKind int

const (
	readerSucceeded outcomeKind = iota
	readerNeedsFallback
)

// readerOutcome is the tagged result of one attempt against the reader service
type readerOutcome struct {
	kind   outcomeKind
	result FetchResult
	reason string
}

// ReaderFetcher asks a reader service (r.jina.ai by default) to render the page
// and falls back to a direct fetch whenever that attempt does not succeed.
// Only the fallback's error is ever returned.
type ReaderFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	fallback   URLFetcher
	logger     *logrus.Logger
}

// NewReaderFetcher creates a ReaderFetcher that falls back to fallback
func NewReaderFetcher(cfg config.Config, fallback URLFetcher, logger *logrus.Logger) *ReaderFetcher {
	limit := rate.Inf
	if cfg.ReaderRateLimit > 0 {
		limit = rate.Limit(cfg.ReaderRateLimit)
	}

	return &ReaderFetcher{
		baseURL:    cfg.ReaderBaseURL,
		apiKey:     cfg.ReaderAPIKey,
		httpClient: httpclient.New(cfg.Timeout, cfg.ProxyURL, logger),
		limiter:    rate.NewLimiter(limit, 1),
		fallback:   fallback,
		logger:     logger,
	}
}

// Fetch tries the reader service first, then the direct fetcher with identical parameters
func (r *ReaderFetcher) Fetch(ctx context.Context, targetURL, userAgent string, forceRaw bool) (FetchResult, error) {
	outcome := r.tryReader(ctx, targetURL, userAgent)
	if outcome.kind == readerSucceeded {
		return outcome.result, nil
	}

	r.logger.WithFields(logrus.Fields{
		"url":    telemetry.SanitiseURL(targetURL),
		"reason": outcome.reason,
	}).Debug("Reader service unavailable, falling back to direct fetch")
	telemetry.RecordFetchFallback(ctx, outcome.reason)

	return r.fallback.Fetch(ctx, targetURL, userAgent, forceRaw)
}

func (r *ReaderFetcher) tryReader(ctx context.Context, targetURL, userAgent string) (outcome readerOutcome) {
	ctx, span := telemetry.StartFetchSpan(ctx, "reader", targetURL)
	defer func() { telemetry.EndFetchSpan(span, nil, outcome.reason) }()

	needsFallback := func(format string, args ...any) readerOutcome {
		return readerOutcome{kind: readerNeedsFallback, reason: fmt.Sprintf(format, args...)}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return needsFallback("rate limiter: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+targetURL, nil)
	if err != nil {
		return needsFallback("build request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return needsFallback("transport: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return needsFallback("status code %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentSize))
	if err != nil {
		return needsFallback("read body: %v", err)
	}

	content := decodeBody(raw, resp.Header.Get("Content-Type"))
	if message, isError := providerError(content); isError {
		return needsFallback("provider error: %s", message)
	}

	return readerOutcome{
		kind: readerSucceeded,
		result: FetchResult{
			Body:        content,
			Prefix:      ReaderPrefix,
			ContentType: resp.Header.Get("Content-Type"),
		},
	}
}

// providerError detects the reader service's error envelope: a JSON object with
// a "code" key whose "data" is null or missing. Anything that is not a JSON
// object is page content.
func providerError(body string) (string, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return "", false
	}

	if _, hasCode := envelope["code"]; !hasCode {
		return "", false
	}
	if data, hasData := envelope["data"]; hasData && string(data) != "null" {
		return "", false
	}

	message := "Unknown error"
	var text string
	if raw, ok := envelope["message"]; ok && json.Unmarshal(raw, &text) == nil && text != "" {
		message = text
	}
	return message, true
}
