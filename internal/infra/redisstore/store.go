// Package redisstore provides a redis implementation of the callback store,
// for setups where several relays share one correlation table.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/runoshun/termux-tasker/internal/domain"
)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 50

// Store implements domain.CallbackStore on redis.
// The counter is a string key updated with WATCH/MULTI; callbacks live in a
// hash keyed by request code with JSON values.
type Store struct {
	client       *redis.Client
	counterKey   string
	callbacksKey string
}

// Ensure Store implements the store ports.
var (
	_ domain.CallbackStore    = (*Store)(nil)
	_ domain.StoreInitializer = (*Store)(nil)
)

// New connects to the redis server at url and verifies the connection.
func New(url, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Set connection timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, keyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = domain.DefaultRedisKeyPrefix
	}
	return &Store{
		client:       client,
		counterKey:   keyPrefix + ":request_code",
		callbacksKey: keyPrefix + ":callbacks",
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// IsInitialized reports whether the counter key exists.
func (s *Store) IsInitialized() bool {
	n, err := s.client.Exists(context.Background(), s.counterKey).Result()
	return err == nil && n > 0
}

// Initialize creates the counter key if it doesn't exist.
func (s *Store) Initialize() error {
	if err := s.client.SetNX(context.Background(), s.counterKey, domain.DefaultRequestCode, 0).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

// NextRequestCode increments the counter inside an optimistic transaction.
// Wrap-around follows domain.NextRequestCode.
func (s *Store) NextRequestCode(ctx context.Context) (int, error) {
	var code int
	txf := func(tx *redis.Tx) error {
		last, err := tx.Get(ctx, s.counterKey).Int()
		if err == redis.Nil {
			last = domain.DefaultRequestCode
		} else if err != nil {
			return err
		}

		code = domain.NextRequestCode(last)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.counterKey, code, 0)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, s.counterKey); err != nil {
		return 0, fmt.Errorf("redis increment failed: %w", err)
	}
	return code, nil
}

// Register stores a pending callback under its request code.
func (s *Store) Register(ctx context.Context, cb domain.PendingCallback) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}
	if err := s.client.HSet(ctx, s.callbacksKey, strconv.Itoa(cb.RequestCode), data).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// Take removes and returns the pending callback for a request code.
func (s *Store) Take(ctx context.Context, requestCode int) (*domain.PendingCallback, error) {
	field := strconv.Itoa(requestCode)
	var raw string
	txf := func(tx *redis.Tx) error {
		v, err := tx.HGet(ctx, s.callbacksKey, field).Result()
		if err == redis.Nil {
			return fmt.Errorf("%w: %d", domain.ErrCallbackNotFound, requestCode)
		} else if err != nil {
			return err
		}
		raw = v
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.callbacksKey, field)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, s.callbacksKey); err != nil {
		if errors.Is(err, domain.ErrCallbackNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("redis take failed: %w", err)
	}

	var cb domain.PendingCallback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal callback: %w", err)
	}
	cb.RequestCode = requestCode
	return &cb, nil
}

// List returns all pending callbacks ordered by request code.
func (s *Store) List(ctx context.Context) ([]domain.PendingCallback, error) {
	all, err := s.client.HGetAll(ctx, s.callbacksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	callbacks := make([]domain.PendingCallback, 0, len(all))
	for field, raw := range all {
		code, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var cb domain.PendingCallback
		if err := json.Unmarshal([]byte(raw), &cb); err != nil {
			// Corrupt entries can never be relayed
			s.client.HDel(ctx, s.callbacksKey, field)
			continue
		}
		cb.RequestCode = code
		callbacks = append(callbacks, cb)
	}

	slices.SortFunc(callbacks, func(a, b domain.PendingCallback) int {
		return a.RequestCode - b.RequestCode
	})
	return callbacks, nil
}

// watch runs fn in a WATCH transaction, retrying when a watched key changed.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return redis.TxFailedErr
}
