package webfetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const lockRetryDelay = 50 * time.Millisecond

// SaveContent writes content to path in one piece, creating parent directories
// first. A path+".lock" sidecar is flocked for the duration of the write so two
// calls saving to the same path cannot interleave.
func SaveContent(ctx context.Context, logger *logrus.Logger, path, content string) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}

	fileLock := flock.New(LockPath(path))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("could not acquire lock on %s", path)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logger.WithError(err).Warn("Failed to release file lock")
		}
	}()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(content),
	}).Debug("Saved fetched content")

	return nil
}

// LockPath returns the sidecar lock file guarding writes to path
func LockPath(path string) string {
	return path + ".lock"
}

// Preview returns the first PreviewLength characters of content, with "..."
// appended when anything was cut
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}
