package memory

import (
	"context"
	"sort"
	"strings"

	"grant-assistant-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// KVRepository keeps values in process memory. Entries never expire on their
// own: session expiry is checked lazily by the session manager, so the cache
// janitor is disabled.
type KVRepository struct {
	cache *cache.Cache
}

func NewKVRepository() *KVRepository {
	return &KVRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

var _ contract.KVRepository = (*KVRepository)(nil)

func (r *KVRepository) Get(_ context.Context, key string) ([]byte, bool, error) {
	if x, found := r.cache.Get(key); found {
		stored := x.([]byte)
		return append([]byte(nil), stored...), true, nil
	}
	return nil, false, nil
}

func (r *KVRepository) Set(_ context.Context, key string, value []byte) error {
	r.cache.Set(key, append([]byte(nil), value...), cache.NoExpiration)
	return nil
}

func (r *KVRepository) Delete(_ context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}

func (r *KVRepository) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range r.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports how many keys are stored.
func (r *KVRepository) Len() int {
	return r.cache.ItemCount()
}
