package metastore

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/zkfleet/zkfleet/common"
)

// MemStore is an in-memory MetadataStore with the same conditional
// create/delete semantics as ZKStore. It also serves as its own
// StoreDialer: every Open returns the same store.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

var (
	_ common.MetadataStore = &MemStore{}
	_ common.StoreDialer   = &MemStore{}
)

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
	}
}

func (m *MemStore) Open(string) (common.MetadataStore, error) {
	return m, nil
}

func (m *MemStore) Exists(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MemStore) Create(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return fmt.Errorf("%s: %w", key, common.ErrKeyExists)
	}
	if parent := path.Dir(key); parent != "/" {
		if _, ok := m.data[parent]; !ok {
			return fmt.Errorf("%s: parent %w", key, common.ErrKeyNotFound)
		}
	}
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *MemStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, common.ErrKeyNotFound)
	}
	return append([]byte{}, val...), nil
}

func (m *MemStore) Delete(key string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return fmt.Errorf("%s: %w", key, common.ErrKeyNotFound)
	}
	prefix := key + "/"
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			if !recursive {
				return fmt.Errorf("%s: node has children", key)
			}
			delete(m.data, k)
		}
	}
	delete(m.data, key)
	return nil
}

func (m *MemStore) Close() error {
	return nil
}

// Keys returns every key currently held, sorted.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
