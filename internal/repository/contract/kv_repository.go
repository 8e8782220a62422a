package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// KVRepository is the persistence medium behind the proposal engine. Values are
// opaque JSON documents addressed by namespaced keys ("context:v2",
// "session:<id>", "drafts:<id>", ...).
type KVRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ErrMalformed marks a stored value that exists but does not decode.
var ErrMalformed = errors.New("malformed stored value")

// LoadJSON decodes the value at key into v. found is false when the key is absent.
func LoadJSON(ctx context.Context, repo KVRepository, key string, v interface{}) (bool, error) {
	raw, found, err := repo.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w at %s: %v", ErrMalformed, key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it at key.
func SaveJSON(ctx context.Context, repo KVRepository, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return repo.Set(ctx, key, raw)
}
