package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/port/cache"
	"github.com/Strob0t/echobox/internal/port/database"
)

var _ database.ChannelStore = (*CachedChannelStore)(nil)

// CachedChannelStore caches the enabled-channel list of each project key so
// a burst of widget submissions does not hit the database per request.
type CachedChannelStore struct {
	inner database.ChannelStore
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedChannelStore wraps inner. A non-positive ttl disables caching.
func NewCachedChannelStore(inner database.ChannelStore, c cache.Cache, ttl time.Duration) *CachedChannelStore {
	return &CachedChannelStore{inner: inner, cache: c, ttl: ttl}
}

func enabledKey(projectKeyID string) string { return "channels:enabled:" + projectKeyID }

// ListEnabledChannels serves from the cache and falls back to the store.
// Cache errors are logged and never fail the lookup.
func (s *CachedChannelStore) ListEnabledChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error) {
	if s.ttl <= 0 {
		return s.inner.ListEnabledChannels(ctx, projectKeyID)
	}
	key := enabledKey(projectKeyID)
	chans, ok, err := cache.GetJSON[[]channel.Channel](ctx, s.cache, key)
	if err != nil {
		slog.WarnContext(ctx, "channel cache read failed", "key", key, "error", err)
	}
	if ok {
		return chans, nil
	}

	chans, err = s.inner.ListEnabledChannels(ctx, projectKeyID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, chans, s.ttl); err != nil {
		slog.WarnContext(ctx, "channel cache write failed", "key", key, "error", err)
	}
	return chans, nil
}

func (s *CachedChannelStore) GetChannel(ctx context.Context, id int64) (*channel.Channel, error) {
	return s.inner.GetChannel(ctx, id)
}

// MarkChannelVerified updates the store and drops the cached list of the
// channel's project key.
func (s *CachedChannelStore) MarkChannelVerified(ctx context.Context, id int64) error {
	if err := s.inner.MarkChannelVerified(ctx, id); err != nil {
		return err
	}
	ch, err := s.inner.GetChannel(ctx, id)
	if err != nil {
		return nil //nolint:nilerr // the update succeeded; the entry expires on its own
	}
	s.Invalidate(ctx, ch.ProjectKeyID)
	return nil
}

// Invalidate drops the cached channel list of projectKeyID.
func (s *CachedChannelStore) Invalidate(ctx context.Context, projectKeyID string) {
	if err := s.cache.Delete(ctx, enabledKey(projectKeyID)); err != nil {
		slog.WarnContext(ctx, "channel cache delete failed", "project_key_id", projectKeyID, "error", err)
	}
}
