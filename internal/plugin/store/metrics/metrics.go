package metrics

import (
	"context"
	"time"

	"github.com/chirino/portal-service/internal/model"
	"github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
)

// Wrap returns a PortalStore that records StoreLatency for every operation.
func Wrap(inner store.PortalStore) store.PortalStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.PortalStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) GetLabelByCode(ctx context.Context, code string) (*model.ClientLabel, error) {
	defer observe("get_label_by_code", time.Now())
	return m.inner.GetLabelByCode(ctx, code)
}

func (m *metricsStore) GetMissiveLabelID(ctx context.Context, code string) (string, error) {
	defer observe("get_missive_label_id", time.Now())
	return m.inner.GetMissiveLabelID(ctx, code)
}

func (m *metricsStore) ListLabels(ctx context.Context) ([]model.ClientLabel, error) {
	defer observe("list_labels", time.Now())
	return m.inner.ListLabels(ctx)
}

func (m *metricsStore) ListCodes(ctx context.Context) ([]string, error) {
	defer observe("list_codes", time.Now())
	return m.inner.ListCodes(ctx)
}

func (m *metricsStore) ListAllLabels(ctx context.Context) ([]model.ClientLabel, error) {
	defer observe("list_all_labels", time.Now())
	return m.inner.ListAllLabels(ctx)
}

func (m *metricsStore) CountLabels(ctx context.Context) (int64, error) {
	defer observe("count_labels", time.Now())
	return m.inner.CountLabels(ctx)
}

func (m *metricsStore) ReconcileLabels(ctx context.Context, remote []store.RemoteClientLabel) (*model.LabelSyncStats, error) {
	defer observe("reconcile_labels", time.Now())
	return m.inner.ReconcileLabels(ctx, remote)
}

func (m *metricsStore) IsClientAllowed(ctx context.Context, email string) (bool, error) {
	defer observe("is_client_allowed", time.Now())
	return m.inner.IsClientAllowed(ctx, email)
}

func (m *metricsStore) AddAllowedClient(ctx context.Context, email, name, code string) (*model.AllowedClient, error) {
	defer observe("add_allowed_client", time.Now())
	return m.inner.AddAllowedClient(ctx, email, name, code)
}

func (m *metricsStore) RemoveAllowedClient(ctx context.Context, email string) error {
	defer observe("remove_allowed_client", time.Now())
	return m.inner.RemoveAllowedClient(ctx, email)
}

func (m *metricsStore) GetClientCode(ctx context.Context, email string) (string, error) {
	defer observe("get_client_code", time.Now())
	return m.inner.GetClientCode(ctx, email)
}

func (m *metricsStore) GetClientLabel(ctx context.Context, email string) (*model.ClientLabel, error) {
	defer observe("get_client_label", time.Now())
	return m.inner.GetClientLabel(ctx, email)
}

func (m *metricsStore) CreateMagicToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	defer observe("create_magic_token", time.Now())
	return m.inner.CreateMagicToken(ctx, email, tokenHash, expiresAt)
}

func (m *metricsStore) ConsumeMagicToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	defer observe("consume_magic_token", time.Now())
	return m.inner.ConsumeMagicToken(ctx, tokenHash, now)
}

func (m *metricsStore) DeleteExpiredMagicTokens(ctx context.Context, now time.Time) (int64, error) {
	defer observe("delete_expired_magic_tokens", time.Now())
	return m.inner.DeleteExpiredMagicTokens(ctx, now)
}

var _ store.PortalStore = (*metricsStore)(nil)
