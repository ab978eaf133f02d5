package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/missive"
	"github.com/chirino/portal-service/internal/model"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
)

// SyncService reconciles the local label directory with the Missive
// shared-label taxonomy. It is the only writer of client_labels. Runs
// are idempotent; callers are expected to invoke Sync serially (the
// ticker in Start, a CLI run, or the admin endpoint).
type SyncService struct {
	store     registrystore.PortalStore
	client    *missive.Client
	namespace string
	interval  time.Duration
}

// NewSyncService wires the reconciliation path. namespace is the label
// prefix that identifies the client taxonomy, with a trailing slash.
func NewSyncService(store registrystore.PortalStore, client *missive.Client, namespace string, interval time.Duration) *SyncService {
	return &SyncService{
		store:     store,
		client:    client,
		namespace: namespace,
		interval:  interval,
	}
}

// Sync fetches the complete remote taxonomy and applies it to the
// directory in one transaction. Any fetch or write failure leaves the
// directory untouched; retry and backoff are the caller's concern.
func (s *SyncService) Sync(ctx context.Context) (*model.LabelSyncStats, error) {
	labels, err := s.client.ListSharedLabels(ctx)
	if err != nil {
		security.RecordLabelSync("fetch_error", 0, 0, 0, 0)
		return nil, fmt.Errorf("label sync: %w", err)
	}

	remote := make([]registrystore.RemoteClientLabel, 0, len(labels))
	for _, label := range labels {
		if !strings.HasPrefix(label.NameWithParentNames, s.namespace) {
			continue
		}
		remote = append(remote, registrystore.RemoteClientLabel{
			Code:           strings.TrimPrefix(label.NameWithParentNames, s.namespace),
			Name:           label.Name,
			MissiveLabelID: label.ID,
		})
	}

	stats, err := s.store.ReconcileLabels(ctx, remote)
	if err != nil {
		security.RecordLabelSync("store_error", 0, 0, 0, 0)
		return nil, fmt.Errorf("label sync: %w", err)
	}
	security.RecordLabelSync("success", stats.Inserted, stats.Updated, stats.Reactivated, stats.Deactivated)
	log.Info("Label sync complete",
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"reactivated", stats.Reactivated,
		"deactivated", stats.Deactivated,
		"total", stats.Total,
	)
	return stats, nil
}

// SyncIfEmpty runs a sync when the directory has no rows yet, so a fresh
// deployment bootstraps itself. Failures are logged, not fatal; the
// operator can run sync-labels manually.
func (s *SyncService) SyncIfEmpty(ctx context.Context) {
	count, err := s.store.CountLabels(ctx)
	if err != nil {
		log.Error("Label bootstrap count failed", "err", err)
		return
	}
	if count > 0 {
		return
	}
	log.Info("Label directory empty, running initial sync")
	if _, err := s.Sync(ctx); err != nil {
		log.Error("Initial label sync failed; run the sync-labels command manually", "err", err)
	}
}

// Start runs Sync on the configured interval until the context ends.
// A zero interval disables periodic syncing.
func (s *SyncService) Start(ctx context.Context) {
	if s == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				log.Error("Scheduled label sync failed", "err", err)
			}
		}
	}
}
