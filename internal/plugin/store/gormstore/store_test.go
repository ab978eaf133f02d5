package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A pooled second connection would see a different empty in-memory
	// database, so pin the pool to one.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, autoMigrate(db))

	return New(db), context.Background()
}

func remoteSet(pairs ...[2]string) []registrystore.RemoteClientLabel {
	var out []registrystore.RemoteClientLabel
	for _, p := range pairs {
		out = append(out, registrystore.RemoteClientLabel{
			Code:           p[0],
			Name:           p[0],
			MissiveLabelID: p[1],
		})
	}
	return out
}

func TestReconcileInsertsNewCodes(t *testing.T) {
	s, ctx := newTestStore(t)

	stats, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Total)

	// ACME unchanged, BETA inserted.
	stats, err = s.ReconcileLabels(ctx, remoteSet(
		[2]string{"ACME", "ext-1"},
		[2]string{"BETA", "ext-2"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Deactivated)
	assert.Equal(t, 2, stats.Total)

	codes, err := s.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "BETA"}, codes)
}

func TestReconcileIsIdempotent(t *testing.T) {
	s, ctx := newTestStore(t)
	remote := remoteSet([2]string{"ACME", "ext-1"}, [2]string{"BETA", "ext-2"})

	_, err := s.ReconcileLabels(ctx, remote)
	require.NoError(t, err)

	stats, err := s.ReconcileLabels(ctx, remote)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Reactivated)
	assert.Equal(t, 0, stats.Deactivated)
	assert.Equal(t, 2, stats.Total)
}

func TestReconcileRename(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-1"}))
	require.NoError(t, err)

	stats, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-9"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 0, stats.Deactivated)

	id, err := s.GetMissiveLabelID(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "ext-9", id)
}

func TestReconcileDeactivateAndReactivate(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.ReconcileLabels(ctx, remoteSet(
		[2]string{"ACME", "ext-1"},
		[2]string{"BETA", "ext-2"},
	))
	require.NoError(t, err)

	stats, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deactivated)

	// The deactivated code is gone from active lookups...
	_, err = s.GetLabelByCode(ctx, "BETA")
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = s.GetMissiveLabelID(ctx, "BETA")
	var unknown *registrystore.UnknownClientError
	assert.ErrorAs(t, err, &unknown)

	codes, err := s.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, codes)

	// ...but the row is retained for audit.
	all, err := s.ListAllLabels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// A code restored upstream reactivates instead of inserting.
	stats, err = s.ReconcileLabels(ctx, remoteSet(
		[2]string{"ACME", "ext-1"},
		[2]string{"BETA", "ext-2b"},
	))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 1, stats.Reactivated)

	id, err := s.GetMissiveLabelID(ctx, "BETA")
	require.NoError(t, err)
	assert.Equal(t, "ext-2b", id)
}

func TestReconcileRollsBackOnFailure(t *testing.T) {
	s, ctx := newTestStore(t)

	// Duplicate missive label ids violate the unique index on the second
	// insert; the first insert must not survive.
	_, err := s.ReconcileLabels(ctx, remoteSet(
		[2]string{"ACME", "ext-1"},
		[2]string{"BETA", "ext-1"},
	))
	require.Error(t, err)

	count, err := s.CountLabels(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAllowedClientResolution(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-1"}))
	require.NoError(t, err)

	_, err = s.AddAllowedClient(ctx, "Alice@Example.COM ", "Alice", "ACME")
	require.NoError(t, err)

	allowed, err := s.IsClientAllowed(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	code, err := s.GetClientCode(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ACME", code)

	// Deactivating the label cuts the email's portal access.
	_, err = s.ReconcileLabels(ctx, nil)
	require.NoError(t, err)
	_, err = s.GetClientCode(ctx, "alice@example.com")
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAddAllowedClientErrors(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.ReconcileLabels(ctx, remoteSet([2]string{"ACME", "ext-1"}))
	require.NoError(t, err)

	_, err = s.AddAllowedClient(ctx, "not-an-email", "X", "ACME")
	var validation *registrystore.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = s.AddAllowedClient(ctx, "x@example.com", "X", "NOPE")
	var unknown *registrystore.UnknownClientError
	assert.ErrorAs(t, err, &unknown)

	_, err = s.AddAllowedClient(ctx, "x@example.com", "X", "ACME")
	require.NoError(t, err)
	_, err = s.AddAllowedClient(ctx, "x@example.com", "X again", "ACME")
	var conflict *registrystore.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestMagicTokenLifecycle(t *testing.T) {
	s, ctx := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateMagicToken(ctx, "alice@example.com", "hash-1", now.Add(15*time.Minute)))

	email, err := s.ConsumeMagicToken(ctx, "hash-1", now)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	// Single use: the second redeem fails.
	_, err = s.ConsumeMagicToken(ctx, "hash-1", now)
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	// Expired tokens never verify.
	require.NoError(t, s.CreateMagicToken(ctx, "bob@example.com", "hash-2", now.Add(-time.Minute)))
	_, err = s.ConsumeMagicToken(ctx, "hash-2", now)
	assert.ErrorAs(t, err, &notFound)

	deleted, err := s.DeleteExpiredMagicTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestIsUniqueViolationFallback(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: client_labels.code")))
	assert.False(t, isUniqueViolation(errors.New("no such table")))
	assert.False(t, isUniqueViolation(nil))
}
