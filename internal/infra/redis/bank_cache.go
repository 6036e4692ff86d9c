package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"arena-quiz-service/internal/content"
)

// BankCache caches question-bank reads in Redis and falls back to the wrapped
// provider on a miss. Category listings are stored as a comma-joined id list,
// full questions as JSON:
//
//	SET bank:cat:{categoryID}:{deep|flat} {id,id,...}
//	SET bank:q:{questionID}               {json}
//
// Misses collapse through singleflight so a cold cache triggers one loader
// call per key, and TTLs carry 10% jitter to spread expiry.
type BankCache struct {
	client   *redis.Client
	provider content.Provider
	ttl      time.Duration
	sf       singleflight.Group
	rnd      *rand.Rand
}

func NewBankCache(client *redis.Client, provider content.Provider, ttl time.Duration) *BankCache {
	return &BankCache{
		client:   client,
		provider: provider,
		ttl:      ttl,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BankCache) QuestionIDs(ctx context.Context, categoryID int64, subcategories bool) ([]int64, error) {
	key := c.categoryKey(categoryID, subcategories)
	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		return splitIDs(raw), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if raw, err := c.client.Get(ctx, key).Result(); err == nil {
			return splitIDs(raw), nil
		}
		ids, err := c.provider.QuestionIDs(ctx, categoryID, subcategories)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, key, joinIDs(ids), c.ttlWithJitter()).Err()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]int64), nil
}

func (c *BankCache) Question(ctx context.Context, id int64) (content.BankQuestion, error) {
	key := c.questionKey(id)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var q content.BankQuestion
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var q content.BankQuestion
			if err := json.Unmarshal(raw, &q); err == nil {
				return q, nil
			}
		}
		q, err := c.provider.Question(ctx, id)
		if err != nil {
			return content.BankQuestion{}, err
		}
		if raw, err := json.Marshal(q); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return q, nil
	})
	if err != nil {
		return content.BankQuestion{}, err
	}
	return result.(content.BankQuestion), nil
}

func (c *BankCache) categoryKey(categoryID int64, subcategories bool) string {
	depth := "flat"
	if subcategories {
		depth = "deep"
	}
	return "bank:cat:" + strconv.FormatInt(categoryID, 10) + ":" + depth
}

func (c *BankCache) questionKey(id int64) string {
	return "bank:q:" + strconv.FormatInt(id, 10)
}

func (c *BankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func joinIDs(ids []int64) string {
	out := make([]byte, 0, len(ids)*8)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, id, 10)
	}
	return string(out)
}

func splitIDs(raw string) []int64 {
	if raw == "" {
		return []int64{}
	}
	var ids []int64
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if id, err := strconv.ParseInt(raw[start:i], 10, 64); err == nil {
				ids = append(ids, id)
			}
			start = i + 1
		}
	}
	return ids
}
