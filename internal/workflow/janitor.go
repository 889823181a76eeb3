package workflow

import (
	"context"
	"time"

	"minewatch/internal/logging"
)

func (m *Manager) runJanitor(ctx context.Context) {
	defer m.wg.Done()
	interval := m.janitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}

// Prune removes finished tasks older than the configured TTL and returns the
// number removed.
func (m *Manager) Prune() int {
	removed := m.registry.prune(m.ttl)
	if removed > 0 {
		m.logger.Debug("pruned finished tasks",
			logging.Int("removed", removed),
			logging.Duration("ttl", m.ttl),
		)
	}
	return removed
}
