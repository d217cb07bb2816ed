package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	UnreadCountTTL = 1 * time.Minute
	// Generations must outlive every value stamped with them.
	unreadGenTTL = 24 * time.Hour
)

// UnreadCache memoizes per-user unread summaries. A nil cache, or one without
// a Redis backend, misses on every read and ignores writes.
//
// Values are keyed by a per-user generation. Invalidate bumps the generation
// instead of deleting, so a fill computed before the bump lands on a key no
// reader will look at again.
type UnreadCache struct {
	redis *RedisCache
	ttl   time.Duration
}

func NewUnreadCache(redis *RedisCache) *UnreadCache {
	return &UnreadCache{redis: redis, ttl: UnreadCountTTL}
}

func unreadGenKey(userID uint) string {
	return fmt.Sprintf("unread:gen:%d", userID)
}

func unreadKey(userID uint, gen int64) string {
	return fmt.Sprintf("unread:%d:%d", userID, gen)
}

func (uc *UnreadCache) generation(ctx context.Context, userID uint) (int64, error) {
	data, err := uc.redis.Get(ctx, unreadGenKey(userID))
	if err != nil {
		return -1, err
	}
	if data == nil {
		return 0, nil
	}
	return strconv.ParseInt(string(data), 10, 64)
}

// Get returns the cached summary and the generation a fill must be stamped
// with. The generation is -1 when the cache cannot be used.
func (uc *UnreadCache) Get(ctx context.Context, userID uint) (models.UnreadSummary, int64, bool) {
	if uc == nil || uc.redis == nil {
		return models.UnreadSummary{}, -1, false
	}
	gen, err := uc.generation(ctx, userID)
	if err != nil {
		return models.UnreadSummary{}, -1, false
	}
	data, err := uc.redis.Get(ctx, unreadKey(userID, gen))
	if err != nil {
		return models.UnreadSummary{}, -1, false
	}
	if data == nil {
		return models.UnreadSummary{}, gen, false
	}

	var summary models.UnreadSummary
	if err := msgpack.Unmarshal(data, &summary); err != nil {
		return models.UnreadSummary{}, gen, false
	}
	if summary.Conversations == nil {
		summary.Conversations = map[uint]int64{}
	}
	return summary, gen, true
}

func (uc *UnreadCache) Set(ctx context.Context, userID uint, gen int64, summary models.UnreadSummary) error {
	if uc == nil || uc.redis == nil || gen < 0 {
		return nil
	}
	data, err := msgpack.Marshal(summary)
	if err != nil {
		return err
	}
	return uc.redis.Set(ctx, unreadKey(userID, gen), data, uc.ttl)
}

func (uc *UnreadCache) Invalidate(ctx context.Context, userIDs ...uint) error {
	if uc == nil || uc.redis == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadGenKey(id))
	}
	return uc.redis.Incr(ctx, unreadGenTTL, keys...)
}
