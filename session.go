package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sammcj/mcp-context/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// TimeoutSessionManager implements the mcp-go SessionIdManager. Sessions idle
// for longer than timeout are treated as terminated.
type TimeoutSessionManager struct {
	timeout   time.Duration
	transport string
	logger    *logrus.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewTimeoutSessionManager creates a session manager for the given transport
func NewTimeoutSessionManager(timeout time.Duration, transport string, logger *logrus.Logger) *TimeoutSessionManager {
	return &TimeoutSessionManager{
		timeout:   timeout,
		transport: transport,
		logger:    logger,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
	}
}

func (t *TimeoutSessionManager) Generate() string {
	sessionID := uuid.NewString()

	t.mu.Lock()
	t.lastSeen[sessionID] = t.now()
	t.mu.Unlock()

	telemetry.RecordSessionStart(context.Background(), t.transport)
	t.logger.WithField("session_id", sessionID).Debug("Session started")
	return sessionID
}

// Validate reports isTerminated for expired sessions. A well-formed ID that is
// no longer tracked (ended, reaped by the janitor, or issued before a restart)
// is also terminated so clients re-initialise; only malformed IDs are errors.
func (t *TimeoutSessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen, ok := t.lastSeen[sessionID]
	if !ok {
		if _, err := uuid.Parse(sessionID); err != nil {
			return false, fmt.Errorf("invalid session ID: %s", sessionID)
		}
		return true, nil
	}

	now := t.now()
	if now.Sub(seen) > t.timeout {
		t.endLocked(sessionID, "expired")
		return true, nil
	}
	t.lastSeen[sessionID] = now
	return false, nil
}

func (t *TimeoutSessionManager) Terminate(sessionID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lastSeen[sessionID]; ok {
		t.endLocked(sessionID, "terminated")
	}
	return false, nil
}

// Expire ends every session idle for longer than the timeout and returns how many it removed
func (t *TimeoutSessionManager) Expire() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	expired := 0
	for sessionID, seen := range t.lastSeen {
		if now.Sub(seen) > t.timeout {
			t.endLocked(sessionID, "expired")
			expired++
		}
	}
	return expired
}

// RunJanitor calls Expire every interval until ctx is done
func (t *TimeoutSessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Expire(); n > 0 {
				t.logger.WithField("count", n).Debug("Expired idle sessions")
			}
		}
	}
}

// ActiveSessions returns the number of live sessions
func (t *TimeoutSessionManager) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}

func (t *TimeoutSessionManager) endLocked(sessionID, reason string) {
	delete(t.lastSeen, sessionID)
	telemetry.RecordSessionEnd(context.Background(), t.transport)
	t.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reason":     reason,
	}).Debug("Session ended")
}
