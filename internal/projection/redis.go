package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each record as a string key and indexes children of a
// path in a sorted set with equal scores, so ZRANGE yields key order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "npc:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) valueKey(path string) string { return r.prefix + "v:" + path }
func (r *RedisStore) indexKey(path string) string { return r.prefix + "c:" + path }

func (r *RedisStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Get(ctx, r.valueKey(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", p, err)
	}
	return raw, nil
}

func (r *RedisStore) Set(ctx context.Context, path string, value interface{}) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	return r.write(ctx, p, raw)
}

func (r *RedisStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	raw, err := encode(value)
	if err != nil {
		return "", err
	}
	key := NewPushKey()
	if err := r.write(ctx, p+"/"+key, raw); err != nil {
		return "", err
	}
	return key, nil
}

// write stores the value and registers it and each ancestor under its
// parent in one MULTI, so Delete can walk the subtree.
func (r *RedisStore) write(ctx context.Context, path string, raw []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.valueKey(path), raw, 0)
		for p := path; ; {
			parent, key := splitPath(p)
			if parent == "" {
				break
			}
			pipe.ZAdd(ctx, r.indexKey(parent), &redis.Z{Score: 0, Member: key})
			p = parent
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, path string) ([]Entry, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	keys, err := r.client.ZRange(ctx, r.indexKey(p), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", p, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	valueKeys := make([]string, len(keys))
	for i, k := range keys {
		valueKeys[i] = r.valueKey(p + "/" + k)
	}
	values, err := r.client.MGet(ctx, valueKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", p, err)
	}

	out := make([]Entry, 0, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// indexed only as a parent of deeper records
			continue
		}
		out = append(out, Entry{Key: keys[i], Value: json.RawMessage(s)})
	}
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	var doomed []string
	if err := r.collect(ctx, p, &doomed); err != nil {
		return err
	}
	parent, key := splitPath(p)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, doomed...)
		if parent != "" {
			pipe.ZRem(ctx, r.indexKey(parent), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", p, err)
	}
	return nil
}

// collect gathers the value and index keys of path and its descendants.
func (r *RedisStore) collect(ctx context.Context, path string, out *[]string) error {
	*out = append(*out, r.valueKey(path), r.indexKey(path))
	children, err := r.client.ZRange(ctx, r.indexKey(path), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis list %s: %w", path, err)
	}
	for _, c := range children {
		if err := r.collect(ctx, path+"/"+c, out); err != nil {
			return err
		}
	}
	return nil
}
