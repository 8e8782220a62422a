package implementation

import (
	"context"
	"sync"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/internal/repository/memory"
)

// FallbackKVRepository forwards to a primary repository until the first
// storage failure, then serves every later call from process memory for the
// rest of the process lifetime.
type FallbackKVRepository struct {
	primary  contract.KVRepository
	memory   *memory.KVRepository
	logger   logger.ILogger
	mu       sync.RWMutex
	degraded bool
}

func NewFallbackKVRepository(primary contract.KVRepository, log logger.ILogger) *FallbackKVRepository {
	return &FallbackKVRepository{
		primary: primary,
		memory:  memory.NewKVRepository(),
		logger:  log,
	}
}

// Degraded reports whether the primary has been abandoned.
func (r *FallbackKVRepository) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded || r.primary == nil
}

func (r *FallbackKVRepository) degrade(op, key string, err error) {
	r.mu.Lock()
	first := !r.degraded
	r.degraded = true
	r.mu.Unlock()
	if first {
		r.logger.Warn("Storage", "Storage unavailable, continuing in memory only", map[string]interface{}{
			"operation": op,
			"key":       key,
			"error":     err.Error(),
		})
	}
}

func (r *FallbackKVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.Degraded() {
		raw, found, err := r.primary.Get(ctx, key)
		if err == nil {
			return raw, found, nil
		}
		r.degrade("get", key, err)
	}
	return r.memory.Get(ctx, key)
}

func (r *FallbackKVRepository) Set(ctx context.Context, key string, value []byte) error {
	if !r.Degraded() {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			return nil
		}
		r.degrade("set", key, err)
	}
	return r.memory.Set(ctx, key, value)
}

func (r *FallbackKVRepository) Delete(ctx context.Context, key string) error {
	if !r.Degraded() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			return nil
		}
		r.degrade("delete", key, err)
	}
	return r.memory.Delete(ctx, key)
}

func (r *FallbackKVRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	if !r.Degraded() {
		keys, err := r.primary.Keys(ctx, prefix)
		if err == nil {
			return keys, nil
		}
		r.degrade("keys", prefix, err)
	}
	return r.memory.Keys(ctx, prefix)
}
