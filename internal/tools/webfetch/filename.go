package webfetch

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const timestampLayout = "20060102_150405"

// GenerateFilename derives a markdown filename from a URL: the last path segment
// without its extension (or the host when the path is empty), restricted to
// letters, digits, '_', '-' and '.', then suffixed with a timestamp.
func GenerateFilename(rawURL string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	base := strings.TrimPrefix(u.Host, "www.")
	if path := strings.Trim(u.EscapedPath(), "/"); path != "" {
		segment := path[strings.LastIndex(path, "/")+1:]
		if dot := strings.LastIndex(segment, "."); dot >= 0 {
			segment = segment[:dot]
		}
		base = segment
	}

	return fmt.Sprintf("%s_%s.md", sanitiseFilename(base), now.Format(timestampLayout)), nil
}

func sanitiseFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, name)
}

// ResolvePath picks where fetch_and_save writes. A non-blank explicit path is used
// as-is when absolute and joined under workDir when relative; relative paths may
// not climb out of workDir. Otherwise a filename is generated from the URL.
func ResolvePath(rawURL, explicitPath, workDir string, now time.Time) (string, error) {
	if p := strings.TrimSpace(explicitPath); p != "" {
		if filepath.IsAbs(p) {
			return p, nil
		}
		if !filepath.IsLocal(p) {
			return "", fmt.Errorf("file_path %q must stay inside the working directory", p)
		}
		return filepath.Join(workDir, p), nil
	}

	name, err := GenerateFilename(rawURL, now)
	if err != nil {
		return "", err
	}
	return filepath.Join(workDir, name), nil
}

// EnsureParentDir creates every missing directory above path
func EnsureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
