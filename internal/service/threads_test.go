package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chirino/portal-service/internal/config"
	"github.com/chirino/portal-service/internal/missive"
	"github.com/chirino/portal-service/internal/plugin/cache/memory"
	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (registrystore.PortalStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SQLitePath = ":memory:"
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	return store, ctx
}

func seedLabel(t *testing.T, store registrystore.PortalStore, ctx context.Context, code, labelID string) {
	t.Helper()
	_, err := store.ReconcileLabels(ctx, []registrystore.RemoteClientLabel{
		{Code: code, Name: code, MissiveLabelID: labelID},
	})
	require.NoError(t, err)
}

func newMissiveClient(baseURL string, messagePageLimit int) *missive.Client {
	cfg := config.DefaultConfig()
	cfg.MissiveBaseURL = baseURL
	cfg.MissiveAPIToken = "test-token"
	if messagePageLimit > 0 {
		cfg.MessagePageLimit = messagePageLimit
	}
	return missive.NewClient(&cfg)
}

func TestListThreadsUnknownCodeFailsBeforeRemoteCall(t *testing.T) {
	store, ctx := newTestStore(t)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	svc := service.NewThreadService(store, memory.New(time.Minute), newMissiveClient(server.URL, 0), time.Minute, "[CLIENT]")

	_, err := svc.ListThreads(ctx, "NOPE")
	var unknown *registrystore.UnknownClientError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "NOPE", unknown.Code)
	assert.Zero(t, calls, "no Missive call may be made for an unknown code")
}

func TestListThreadsFetchesAndCaches(t *testing.T) {
	store, ctx := newTestStore(t)
	seedLabel(t, store, ctx, "ACME", "ext-1")

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "ext-1", r.URL.Query().Get("shared_label"))
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{
				{
					"id":                     "conv-1",
					"latest_message_subject": "Invoice question",
					"last_activity_at":       1700000000,
					"messages_count":         4,
					"users":                  []map[string]any{{"closed": true}},
				},
				{
					"id":               "conv-2",
					"last_activity_at": 1700000100,
				},
			},
		})
	}))
	defer server.Close()

	svc := service.NewThreadService(store, memory.New(time.Minute), newMissiveClient(server.URL, 0), time.Minute, "[CLIENT]")

	threads, err := svc.ListThreads(ctx, "ACME")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "Invoice question", threads[0].Subject)
	assert.True(t, threads[0].Closed)
	assert.Equal(t, "(No subject)", threads[1].Subject)
	assert.False(t, threads[1].Closed)

	// Second read is served from cache.
	again, err := svc.ListThreads(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, threads, again)
	assert.Equal(t, 1, calls)
}

func TestListThreadsRefetchesAfterTTL(t *testing.T) {
	store, ctx := newTestStore(t)
	seedLabel(t, store, ctx, "ACME", "ext-1")

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"conversations": []map[string]any{{"id": "conv-1"}}})
	}))
	defer server.Close()

	now := time.Unix(0, 0)
	cache := memory.NewWithClock(time.Minute, func() time.Time { return now })
	svc := service.NewThreadService(store, cache, newMissiveClient(server.URL, 0), time.Minute, "[CLIENT]")

	_, err := svc.ListThreads(ctx, "ACME")
	require.NoError(t, err)

	now = time.Unix(59, 0)
	_, err = svc.ListThreads(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "within the TTL the cached value is served")

	now = time.Unix(61, 0)
	_, err = svc.ListThreads(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "after the TTL a fresh fetch is made")
}

func TestGetThreadMessagesOrderedOldestFirst(t *testing.T) {
	store, ctx := newTestStore(t)

	// Pages arrive newest-first: [30], [20], [10]. A short (empty) page
	// ends the walk.
	pages := map[string][]map[string]any{
		"":   {{"id": "m30", "preview": "[CLIENT] newest", "delivered_at": 30}},
		"30": {{"id": "m20", "preview": "[CLIENT] middle", "delivered_at": 20}},
		"20": {{"id": "m10", "preview": "[CLIENT] oldest", "delivered_at": 10}},
		"10": {},
	}
	var untilSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		until := r.URL.Query().Get("until")
		untilSeen = append(untilSeen, until)
		json.NewEncoder(w).Encode(map[string]any{"messages": pages[until]})
	}))
	defer server.Close()

	svc := service.NewThreadService(store, memory.New(time.Minute), newMissiveClient(server.URL, 1), time.Minute, "[CLIENT]")

	messages, err := svc.GetThreadMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"", "30", "20", "10"}, untilSeen)
	assert.EqualValues(t, 10, messages[0].DeliveredAt)
	assert.EqualValues(t, 20, messages[1].DeliveredAt)
	assert.EqualValues(t, 30, messages[2].DeliveredAt)
	assert.Equal(t, "oldest", messages[0].Preview)
}

func TestGetThreadMessagesFiltersUnmarked(t *testing.T) {
	store, ctx := newTestStore(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{
			{"id": "m1", "preview": "[CLIENT] hello", "delivered_at": 1},
			{"id": "m2", "preview": "internal chatter", "delivered_at": 2},
		}})
	}))
	defer server.Close()

	svc := service.NewThreadService(store, memory.New(time.Minute), newMissiveClient(server.URL, 10), time.Minute, "[CLIENT]")

	messages, err := svc.GetThreadMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Preview)
}

func TestGetThreadNotFound(t *testing.T) {
	store, ctx := newTestStore(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	svc := service.NewThreadService(store, memory.New(time.Minute), newMissiveClient(server.URL, 0), time.Minute, "[CLIENT]")

	thread, err := svc.GetThread(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, thread)
}
