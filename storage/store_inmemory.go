package storage

import "sync"

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a volatile Store used in tests and as a fallback when no
// durable backend is configured.
type InMemoryStore struct {
	records map[string]string
	lock    sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]string)}
}

func (s *InMemoryStore) Get(key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.records[key]
	return value, ok, nil
}

func (s *InMemoryStore) Set(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.records[key] = value
	return nil
}

func (s *InMemoryStore) Delete(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.records, key)
	return nil
}
