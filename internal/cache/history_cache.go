// Package cache keeps recent conversation transcripts in Redis so the
// chat loop does not hit MySQL on every turn.
//
// Persistence is asynchronous: a turn is queued before its rows exist.
// The producer marks the conversation dirty for a short window, readers
// skip the cache while the marker lives, and the persist worker evicts
// the snapshot once the rows land.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"swissknife-chat/internal/model"
)

const (
	defaultHistoryTTL = time.Minute
	defaultDirtyTTL   = 5 * time.Second
)

type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

// NewHistoryCache builds the cache. Non-positive TTLs fall back to
// defaults sized for a chat turn round trip.
func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = defaultHistoryTTL
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = defaultDirtyTTL
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// GetHistory returns the cached transcript and whether it was present.
// A miss is not an error.
func (c *HistoryCache) GetHistory(ctx context.Context, conversationID uint) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, key(conversationID, "history")).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// SetHistory snapshots a transcript read from MySQL. Callers check the
// dirty marker first so a snapshot taken mid-persist never lingers past
// the marker window.
func (c *HistoryCache) SetHistory(ctx context.Context, conversationID uint, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key(conversationID, "history"), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// DeleteHistory evicts the snapshot. The persist worker calls this once
// queued rows reach MySQL; conversation deletion calls it as well.
func (c *HistoryCache) DeleteHistory(ctx context.Context, conversationID uint) error {
	if err := c.client.Del(ctx, key(conversationID, "history")).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// MarkDirty fences readers while a turn's rows are still in flight.
func (c *HistoryCache) MarkDirty(ctx context.Context, conversationID uint) error {
	if err := c.client.Set(ctx, key(conversationID, "dirty"), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, conversationID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, key(conversationID, "dirty")).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func key(conversationID uint, kind string) string {
	return fmt.Sprintf("swissknife:conv:%d:%s", conversationID, kind)
}
