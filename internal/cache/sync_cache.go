package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dperhar/Karma-app-sub001/internal/models"
)

// TTL constants for different cache types
const (
	OverviewTTL         = 1 * time.Minute
	ConversationListTTL = 2 * time.Minute
)

// SyncCache caches per-user sync overview payloads and conversation lists
// so operational reads do not hit the database on every poll.
type SyncCache struct {
	redis *RedisCache
}

// NewSyncCache creates a new sync cache
func NewSyncCache(redis *RedisCache) *SyncCache {
	return &SyncCache{redis: redis}
}

func overviewKey(userID uint) string {
	return fmt.Sprintf("syncview:%d", userID)
}

func conversationListKey(userID uint) string {
	return fmt.Sprintf("convlist:%d", userID)
}

// GetOverview retrieves a cached sync overview payload
func (sc *SyncCache) GetOverview(userID uint) (map[string]interface{}, bool) {
	if sc == nil || sc.redis == nil {
		return nil, false
	}
	data, err := sc.redis.Get(overviewKey(userID))
	if err != nil || data == nil {
		return nil, false
	}

	var payload map[string]interface{}
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// SetOverview caches a sync overview payload
func (sc *SyncCache) SetOverview(userID uint, payload map[string]interface{}) error {
	if sc == nil || sc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return err
	}
	return sc.redis.Set(overviewKey(userID), data, OverviewTTL)
}

// InvalidateOverview removes a cached overview after a sync run changes it
func (sc *SyncCache) InvalidateOverview(userID uint) error {
	if sc == nil || sc.redis == nil {
		return nil
	}
	return sc.redis.Delete(overviewKey(userID))
}

// GetConversationList retrieves cached conversation responses for a user
func (sc *SyncCache) GetConversationList(userID uint) ([]models.ConversationResponse, bool) {
	if sc == nil || sc.redis == nil {
		return nil, false
	}
	data, err := sc.redis.Get(conversationListKey(userID))
	if err != nil || data == nil {
		return nil, false
	}

	var convs []models.ConversationResponse
	if err := msgpack.Unmarshal(data, &convs); err != nil {
		return nil, false
	}
	return convs, true
}

// SetConversationList caches conversation responses for a user
func (sc *SyncCache) SetConversationList(userID uint, convs []models.ConversationResponse) error {
	if sc == nil || sc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(convs)
	if err != nil {
		return err
	}
	return sc.redis.Set(conversationListKey(userID), data, ConversationListTTL)
}

// InvalidateConversationList removes the cached conversation list
func (sc *SyncCache) InvalidateConversationList(userID uint) error {
	if sc == nil || sc.redis == nil {
		return nil
	}
	return sc.redis.Delete(conversationListKey(userID))
}
