// Package cache provides a typed read-through/write-through key-value cache
// over either an in-process LRU or a remote Redis server.
//
// Values are serialized to JSON bytes so that both backends share identical
// semantics: Get after Insert returns the inserted value until the TTL
// elapses or the key is removed. The interface abstracts the backend to
// enable dependency injection and testing with the in-process implementation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by typed helpers when a key is absent. The Cache
// interface itself signals absence with found=false rather than an error.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the uniform surface over the in-process and remote backends.
type Cache interface {
	// Get unmarshals the value stored under key into dest. It returns
	// found=false without touching dest when the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)

	// Insert stores value under key without expiration.
	Insert(ctx context.Context, key string, value interface{}) error

	// InsertWithTTL stores value under key and schedules its eviction.
	InsertWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// SetTTL updates the expiration of an existing key.
	SetTTL(ctx context.Context, key string, ttl time.Duration) error

	// Increment atomically increments a numeric value by amount, creating
	// the key at 0 first if it is absent. It returns the new value.
	Increment(ctx context.Context, key string, amount int64) (int64, error)
}

// GetTyped is a generic convenience wrapper over Cache.Get.
func GetTyped[T any](ctx context.Context, c Cache, key string) (*T, error) {
	var value T
	found, err := c.Get(ctx, key, &value)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &value, nil
}

func marshalValue(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return data, nil
}
