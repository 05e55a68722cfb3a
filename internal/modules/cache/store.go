package cache

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store — узкий контракт durable-хранилища: hash-семантика для ордеров и
// балансов, set-семантика для индексов. Пишет сюда только sync-воркер кеша,
// читает только miss-path.
type Store interface {
	HSet(ctx context.Context, key, field string, value []byte) error
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, keys ...string) error
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := s.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return errors.Wrapf(err, "hset %s %s", key, field)
	}
	return nil
}

func (s *redisStore) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	data, err := s.rdb.HGet(ctx, key, field).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "hget %s %s", key, field)
	}
	return data, true, nil
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "hgetall %s", key)
	}
	out := make(map[string][]byte, len(raw))
	for f, v := range raw {
		out[f] = []byte(v)
	}
	return out, nil
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return errors.Wrapf(err, "sadd %s", key)
	}
	return nil
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "smembers %s", key)
	}
	return members, nil
}

func (s *redisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, errors.Wrapf(err, "sismember %s", key)
	}
	return ok, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	return data, true, nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrapf(err, "del %v", keys)
	}
	return nil
}

// keys — ключевая схема durable-store. Формат совместимый:
// strategy:{id}:user:{id}:orders и т.д.
type keys struct {
	prefix string
}

func newKeys(strategyID, userID string) keys {
	return keys{prefix: fmt.Sprintf("strategy:%s:user:%s", strategyID, userID)}
}

func (k keys) Orders() string                   { return k.prefix + ":orders" }
func (k keys) AlgoOrders() string               { return k.prefix + ":algo_orders" }
func (k keys) OpenOrders() string               { return k.prefix + ":open_orders" }
func (k keys) SymbolOrders(symbol string) string { return k.prefix + ":symbol_orders:" + symbol }
func (k keys) SymbolPosition(symbol string) string {
	return k.prefix + ":symbol_positions:" + symbol
}
func (k keys) Balances() string     { return k.prefix + ":balances" }
func (k keys) AppliedFills() string { return k.prefix + ":applied_fills" }
