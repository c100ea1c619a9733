package session

import (
	"context"
	"fmt"
	"sync"
)

// TokenKey is the only durable key owned by the session manager.
const TokenKey = "AUTH_TOKEN"

// Store is durable key-value storage for credentials. Implementations must
// give each key exclusive access for the duration of a call and should keep
// values confidential at rest. A missing key is reported as ok == false with a
// nil error; Delete of a missing key succeeds.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Cache is the part of the query cache the session manager drives: it is
// cleared whenever the credential goes away.
type Cache interface {
	Clear(ctx context.Context) error
}

// StorageError wraps an I/O failure of a Store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MemoryStore keeps values in process memory. It offers no durability or
// confidentiality and is meant for tests and throwaway sessions.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

type nopCache struct{}

func (nopCache) Clear(context.Context) error { return nil }
