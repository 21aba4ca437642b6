package registry

import (
	"fmt"
	"sync"
)

type keyID struct {
	name string
}

// Key addresses a value of type T in a Store.
type Key[T any] struct {
	id *keyID
}

// NewKey creates a key. Every call returns a distinct key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{id: &keyID{name: name}}
}

// Name returns the key's diagnostic name.
func (k Key[T]) Name() string {
	if k.id == nil {
		return ""
	}
	return k.id.name
}

// Store is a thread-safe heterogeneous value store addressed by typed keys.
// The zero value is not usable; create one with NewStore.
type Store struct {
	mu     sync.RWMutex
	values map[*keyID]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[*keyID]any)}
}

// Put stores v under k, replacing any previous value.
func Put[T any](s *Store, k Key[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[k.id] = v
}

// Get returns the value stored under k.
func Get[T any](s *Store, k Key[T]) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k.id]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// MustGet returns the value stored under k, panicking if absent.
func MustGet[T any](s *Store, k Key[T]) T {
	v, ok := Get(s, k)
	if !ok {
		panic(fmt.Sprintf("registry: store has no value for key %q", k.Name()))
	}
	return v
}

// Delete removes the value stored under k.
func Delete[T any](s *Store, k Key[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, k.id)
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Clone returns a shallow copy of the store.
func (s *Store) Clone() *Store {
	c := NewStore()
	if s == nil {
		return c
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}
