package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/missive"
	"github.com/chirino/portal-service/internal/model"
	registrycache "github.com/chirino/portal-service/internal/registry/cache"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
)

// ThreadService serves client-facing conversation data. Reads resolve
// the client code through the label directory, probe the response cache,
// and only on a miss call the Missive API. The directory is read-only
// here; only the reconciliation path writes it.
type ThreadService struct {
	store  registrystore.PortalStore
	cache  registrycache.ResponseCache
	client *missive.Client
	ttl    time.Duration
	marker string
}

// NewThreadService wires the thread read path.
func NewThreadService(store registrystore.PortalStore, cache registrycache.ResponseCache, client *missive.Client, ttl time.Duration, marker string) *ThreadService {
	return &ThreadService{
		store:  store,
		cache:  cache,
		client: client,
		ttl:    ttl,
		marker: marker,
	}
}

// cacheGet probes the cache and decodes into out. Cache failures degrade
// silently to a miss; the caller then re-fetches.
func (s *ThreadService) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("Cache read failed", "key", key, "err", err)
		security.RecordCacheMiss()
		return false
	}
	if !ok {
		security.RecordCacheMiss()
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn("Cache entry corrupt", "key", key, "err", err)
		security.RecordCacheMiss()
		return false
	}
	security.RecordCacheHit()
	return true
}

func (s *ThreadService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		log.Warn("Cache write failed", "key", key, "err", err)
	}
}

func projectThread(conv *missive.Conversation) model.ThreadSummary {
	subject := conv.LatestMessageSubject
	if subject == "" {
		subject = conv.Subject
	}
	if subject == "" {
		subject = "(No subject)"
	}
	closed := false
	if len(conv.Users) > 0 {
		closed = conv.Users[0].Closed
	}
	authors := make([]model.Author, 0, len(conv.Authors))
	for _, a := range conv.Authors {
		authors = append(authors, model.Author{Name: a.Name, Address: a.Address})
	}
	return model.ThreadSummary{
		ID:             conv.ID,
		Subject:        subject,
		LastActivityAt: conv.LastActivityAt,
		MessagesCount:  conv.MessagesCount,
		Closed:         closed,
		Authors:        authors,
	}
}

// ListThreads returns the thread summaries for a client code. An unknown
// or deactivated code fails before any Missive call is made. The result
// is not pre-sorted; ordering and filtering are the caller's business
// rules.
func (s *ThreadService) ListThreads(ctx context.Context, clientCode string) ([]model.ThreadSummary, error) {
	labelID, err := s.store.GetMissiveLabelID(ctx, clientCode)
	if err != nil {
		return nil, err
	}

	key := "threads:" + clientCode
	var cached []model.ThreadSummary
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	conversations, err := s.client.ListConversations(ctx, labelID)
	if err != nil {
		return nil, err
	}
	threads := make([]model.ThreadSummary, 0, len(conversations))
	for i := range conversations {
		threads = append(threads, projectThread(&conversations[i]))
	}

	s.cacheSet(ctx, key, threads)
	return threads, nil
}

// GetThread returns one thread summary, or nil when Missive no longer
// has the conversation.
func (s *ThreadService) GetThread(ctx context.Context, threadID string) (*model.ThreadSummary, error) {
	key := "thread:" + threadID
	var cached model.ThreadSummary
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	conv, err := s.client.GetConversation(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	thread := projectThread(conv)

	s.cacheSet(ctx, key, thread)
	return &thread, nil
}

// GetThreadMessages returns the client-visible messages of a thread,
// ordered oldest to newest. Missive delivers pages newest-first, so the
// accumulated set is re-sorted before it is cached or returned.
func (s *ThreadService) GetThreadMessages(ctx context.Context, threadID string) ([]model.VisibleMessage, error) {
	key := "messages:" + threadID
	var cached []model.VisibleMessage
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	raw, err := s.client.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	messages := ExtractClientVisible(raw, s.marker)
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].DeliveredAt < messages[j].DeliveredAt
	})

	s.cacheSet(ctx, key, messages)
	return messages, nil
}

// FlushCache drops all cached responses so the next reads hit Missive.
func (s *ThreadService) FlushCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.FlushAll(ctx)
}
