package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "insights:session:"

// RedisStore keeps session history in a Redis list per session, trimmed to
// the window and expired after the TTL.
type RedisStore struct {
	rdb    *goredis.Client
	window int
	ttl    time.Duration
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(rdb *goredis.Client, window int, ttl time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisStore{rdb: rdb, window: window, ttl: ttl}
}

func sessionKey(sessionID string) string { return keyPrefix + sessionID }

// AppendTurn pushes turn onto the session list and trims it in one
// transaction.
func (r *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn) error {
	turn, err := prepare(sessionID, turn, time.Now().UTC())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("AppendTurn: marshal: %w", err)
	}

	key := sessionKey(sessionID)
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.LTrim(ctx, key, int64(-r.window), -1)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("AppendTurn: %w", err)
	}
	return nil
}

// RecentHistory returns the session's turns, oldest first.
func (r *RedisStore) RecentHistory(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	vals, err := r.rdb.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("RecentHistory: %w", err)
	}
	out := make([]domain.ConversationTurn, 0, len(vals))
	for _, v := range vals {
		var t domain.ConversationTurn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("RecentHistory: decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
