package webfetch

import (
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/sammcj/mcp-context/internal/tools"
)

// parseURLArg validates the required url argument. Only absolute http(s) URLs are accepted.
func parseURLArg(args map[string]any) (string, error) {
	raw, ok := args["url"].(string)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", tools.InvalidParams("missing or invalid required parameter: url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", tools.InvalidParams("invalid url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", tools.InvalidParams("invalid url %q: must be an absolute http or https URL", raw)
	}
	if u.Host == "" {
		return "", tools.InvalidParams("invalid url %q: missing host", raw)
	}

	return raw, nil
}

// intArg reads an optional integer. JSON numbers arrive as float64 and must be
// whole; numeric strings are accepted as well. Values beyond the int32 range are
// clamped to it so callers apply their own bounds.
func intArg(args map[string]any, name string, def int) (int, error) {
	value, ok := args[name]
	if !ok || value == nil {
		return def, nil
	}

	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, tools.InvalidParams("%s must be an integer", name)
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, tools.InvalidParams("%s must be an integer", name)
		}
		f = n
	default:
		return 0, tools.InvalidParams("%s must be an integer", name)
	}

	if math.IsNaN(f) || (!math.IsInf(f, 0) && f != math.Trunc(f)) {
		return 0, tools.InvalidParams("%s must be an integer", name)
	}
	return int(min(max(f, math.MinInt32), math.MaxInt32)), nil
}

// boolArg reads an optional boolean
func boolArg(args map[string]any, name string, def bool) (bool, error) {
	value, ok := args[name]
	if !ok || value == nil {
		return def, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, tools.InvalidParams("%s must be a boolean", name)
		}
		return b, nil
	default:
		return false, tools.InvalidParams("%s must be a boolean", name)
	}
}

// stringArg reads an optional string
func stringArg(args map[string]any, name string) (string, error) {
	value, ok := args[name]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", tools.InvalidParams("%s must be a string", name)
	}
	return s, nil
}

func parseFetchRequest(args map[string]any) (FetchRequest, error) {
	targetURL, err := parseURLArg(args)
	if err != nil {
		return FetchRequest{}, err
	}

	maxLength, err := intArg(args, "max_length", DefaultMaxLength)
	if err != nil {
		return FetchRequest{}, err
	}
	if maxLength <= 0 {
		return FetchRequest{}, tools.InvalidParams("max_length must be greater than 0")
	}
	if maxLength >= MaxLengthLimit {
		return FetchRequest{}, tools.InvalidParams("max_length must be less than %d", MaxLengthLimit)
	}

	startIndex, err := intArg(args, "start_index", 0)
	if err != nil {
		return FetchRequest{}, err
	}
	if startIndex < 0 {
		return FetchRequest{}, tools.InvalidParams("start_index must be greater than or equal to 0")
	}

	raw, err := boolArg(args, "raw", false)
	if err != nil {
		return FetchRequest{}, err
	}

	return FetchRequest{
		URL:        targetURL,
		MaxLength:  maxLength,
		StartIndex: startIndex,
		Raw:        raw,
	}, nil
}

func parseFetchAndSaveRequest(args map[string]any) (FetchAndSaveRequest, error) {
	targetURL, err := parseURLArg(args)
	if err != nil {
		return FetchAndSaveRequest{}, err
	}

	filePath, err := stringArg(args, "file_path")
	if err != nil {
		return FetchAndSaveRequest{}, err
	}

	raw, err := boolArg(args, "raw", false)
	if err != nil {
		return FetchAndSaveRequest{}, err
	}

	return FetchAndSaveRequest{
		URL:      targetURL,
		FilePath: filePath,
		Raw:      raw,
	}, nil
}
