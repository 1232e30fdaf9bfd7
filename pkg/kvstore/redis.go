package kvstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldValue     = "value"
	fieldRevision  = "revision"
	fieldUpdatedAt = "updated_at"

	// revisionKey holds the counter shared by every document.
	revisionKey = "kvstore:revision"
)

// RedisStore keeps each document in a hash {value, revision, updated_at}.
// Conditional writes use WATCH/MULTI so a concurrent writer aborts the
// transaction.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Document, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(key, fields)
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	var next int64
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldRevision).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err := checkRevision(current, expected); err != nil {
			return err
		}
		next, err = tx.Incr(ctx, revisionKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldValue, value,
				fieldRevision, next,
				fieldUpdatedAt, r.now().UTC().UnixMilli(),
			)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return 0, ErrRevisionMismatch
		}
		return 0, err
	}
	return next, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string, expected int64) error {
	if expected == AnyRevision {
		return r.client.Del(ctx, key).Err()
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldRevision).Int64()
		if errors.Is(err, redis.Nil) {
			return ErrRevisionMismatch
		}
		if err != nil {
			return err
		}
		if err := checkRevision(current, expected); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrRevisionMismatch
		}
		return err
	}
	return nil
}

func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			if key != revisionKey {
				keys = append(keys, key)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisStore) Close() error { return nil }

func decodeHash(key string, fields map[string]string) (*Document, error) {
	rev, err := strconv.ParseInt(fields[fieldRevision], 10, 64)
	if err != nil {
		return nil, err
	}
	doc := &Document{Key: key, Value: []byte(fields[fieldValue]), Revision: rev}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			doc.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return doc, nil
}
