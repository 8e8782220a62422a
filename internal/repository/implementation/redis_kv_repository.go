package implementation

import (
	"context"
	"errors"
	"sort"
	"strings"

	"grant-assistant-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 200

type RedisKVRepositoryImpl struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisKVRepository(rdb *redis.Client, prefix string) contract.KVRepository {
	return &RedisKVRepositoryImpl{rdb: rdb, prefix: prefix}
}

func (r *RedisKVRepositoryImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisKVRepositoryImpl) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisKVRepositoryImpl) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

func (r *RedisKVRepositoryImpl) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(r.prefix+prefix) + "*"

	// SCAN may return a key more than once.
	seen := make(map[string]struct{})
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, redisScanBatch).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), r.prefix)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}
