package agent

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = time.Minute

// CleanupCallback is called for every conversation removed by the TTL worker.
type CleanupCallback func(userID, sessionID string)

// StartTTLWorker runs a background goroutine that periodically closes
// conversations idle for longer than the service's SessionTTL.
func (s *Service) StartTTLWorker(ctx context.Context, onCleanup CleanupCallback) {
	if s.cfg.SessionTTL <= 0 {
		slog.Info("TTL worker disabled")
		return
	}
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", s.cfg.SessionTTL)

		for {
			select {
			case <-ticker.C:
				s.Sweep(onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep closes conversations neither looked up nor given input within
// SessionTTL and returns how many were removed.
func (s *Service) Sweep(onCleanup CleanupCallback) int {
	if s.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := s.cfg.Now().Add(-s.cfg.SessionTTL)

	type expired struct {
		userID, sessionID string
		conv              *Conversation
	}
	var stale []expired

	s.mu.Lock()
	for key, e := range s.conversations {
		seen := e.lastSeen
		if active := e.conv.LastActive(); active.After(seen) {
			seen = active
		}
		if seen.Before(cutoff) {
			stale = append(stale, expired{userID: e.conv.userID, sessionID: e.conv.sessionID, conv: e.conv})
			delete(s.conversations, key)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	slog.Info("[SWEEP] Found idle conversations", "count", len(stale))

	for _, x := range stale {
		x.conv.Close()
		if onCleanup != nil {
			onCleanup(x.userID, x.sessionID)
		}
		slog.Info("[SWEEP] Closed idle conversation", "user_id", x.userID, "session_id", x.sessionID)
	}
	return len(stale)
}
