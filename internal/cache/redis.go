package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "leaderboard:"
	generationKey = keyPrefix + "generation"
)

var boards = []string{accuracy.BoardModels, accuracy.BoardUsers}

// Leaderboards caches projected leaderboards in Redis as JSON.
type Leaderboards struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLeaderboards connects to Redis at addr and verifies the connection.
func NewLeaderboards(ctx context.Context, addr string, ttl time.Duration) (*Leaderboards, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Leaderboards{rdb: rdb, ttl: ttl}, nil
}

// Get decodes the cached board into dst. It reports false on a miss.
func (l *Leaderboards) Get(ctx context.Context, board string, dst any) (bool, error) {
	raw, err := l.rdb.Get(ctx, keyPrefix+board).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", board, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", board, err)
	}
	return true, nil
}

// Generation returns the invalidation counter; a missing key reads as zero.
func (l *Leaderboards) Generation(ctx context.Context) (int64, error) {
	return readGeneration(ctx, l.rdb)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, c getter) (int64, error) {
	gen, err := c.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration stores v under board until the TTL expires or Invalidate
// is called, but only if no invalidation happened since gen was read. The
// generation key is watched, so an Invalidate racing with the write aborts it.
func (l *Leaderboards) SetIfGeneration(ctx context.Context, board string, v any, gen int64) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", board, err)
	}

	stored := false
	err = l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+board, raw, l.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("writing %s: %w", board, err)
	}
	return stored, nil
}

// Invalidate advances the generation and drops every cached board in one
// transaction.
func (l *Leaderboards) Invalidate(ctx context.Context) error {
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		for _, b := range boards {
			pipe.Del(ctx, keyPrefix+b)
		}
		return nil
	})
	return err
}

var _ accuracy.LeaderboardCache = (*Leaderboards)(nil)

// Close releases the Redis connection.
func (l *Leaderboards) Close() error {
	return l.rdb.Close()
}
