package storage

import (
	"context"
	"sync"
)

// MemoryBucket is an in-process Bucket. It backs the session bucket in
// every deployment and the durable bucket in embedded/test deployments.
type MemoryBucket struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{values: make(map[string]string)}
}

// Get implements Bucket.
func (b *MemoryBucket) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	return v, ok, nil
}

// Set implements Bucket.
func (b *MemoryBucket) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = value
	return nil
}

// Delete implements Bucket.
func (b *MemoryBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.values, key)
	return nil
}

// Clear drops every key. Used to simulate the end of a browser session.
func (b *MemoryBucket) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values = make(map[string]string)
}
