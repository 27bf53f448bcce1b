package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/port/database"
)

var _ database.Store = (*memStore)(nil)

// memStore is an in-memory database.Store for service tests.
type memStore struct {
	mu       sync.Mutex
	channels []channel.Channel
	replies  []reply.Reply
	listErr  error
	lists    int
}

func (m *memStore) ListEnabledChannels(_ context.Context, projectKeyID string) ([]channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []channel.Channel{}
	for _, ch := range m.channels {
		if ch.ProjectKeyID == projectKeyID && ch.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *memStore) GetChannel(_ context.Context, id int64) (*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.channels {
		if m.channels[i].ID == id {
			ch := m.channels[i]
			return &ch, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) MarkChannelVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.channels {
		if m.channels[i].ID == id {
			m.channels[i].Verified = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) CreateReply(_ context.Context, req reply.CreateRequest) (*reply.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := reply.Reply{
		ID:           int64(len(m.replies) + 1),
		ProjectKeyID: req.ProjectKeyID,
		SessionID:    req.SessionID,
		Text:         req.Text,
		CreatedAt:    time.Date(2026, 10, 16, 12, 0, len(m.replies), 0, time.UTC),
	}
	m.replies = append(m.replies, r)
	return &r, nil
}

func (m *memStore) ListReplies(_ context.Context, sessionID string) ([]reply.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []reply.Reply{}
	for _, r := range m.replies {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

var errStoreDown = errors.New("store down")

// memCache is a simple in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func webhookAndSlack() []channel.Type {
	return []channel.Type{channel.TypeWebhook, channel.TypeSlack}
}
