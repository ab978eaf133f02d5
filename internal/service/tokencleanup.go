package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
)

// TokenCleanupService periodically deletes expired magic tokens so the
// table does not grow without bound.
type TokenCleanupService struct {
	store    registrystore.PortalStore
	interval time.Duration
}

func NewTokenCleanupService(store registrystore.PortalStore, interval time.Duration) *TokenCleanupService {
	return &TokenCleanupService{store: store, interval: interval}
}

func (s *TokenCleanupService) Start(ctx context.Context) {
	if s == nil || s.store == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.store.DeleteExpiredMagicTokens(ctx, time.Now())
			if err != nil {
				log.Error("Magic token cleanup failed", "err", err)
				continue
			}
			if deleted > 0 {
				log.Debug("Deleted expired magic tokens", "count", deleted)
			}
		}
	}
}
