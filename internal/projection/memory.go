package projection

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Writes can be made to fail for tests
// and for exercising drift handling locally.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage

	faults []memoryFault
	writes int
}

type memoryFault struct {
	prefix string
	err    error
	times  int // <0 until cleared
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]json.RawMessage)}
}

// FailWrites makes writes under prefix fail with err. times bounds how many
// writes fail; a negative value fails them until ClearFaults.
func (m *MemoryStore) FailWrites(prefix string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, memoryFault{prefix: prefix, err: err, times: times})
}

// ClearFaults removes every injected write failure.
func (m *MemoryStore) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = nil
}

// Writes returns the number of successful writes.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// checkFault consumes a matching fault. Caller holds m.mu.
func (m *MemoryStore) checkFault(path string) error {
	for i := range m.faults {
		f := &m.faults[i]
		if f.times == 0 || !strings.HasPrefix(path, f.prefix) {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.records[p]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), raw...), nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFault(p); err != nil {
		return err
	}
	m.records[p] = raw
	m.writes++
	return nil
}

func (m *MemoryStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	raw, err := encode(value)
	if err != nil {
		return "", err
	}
	key := NewPushKey()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFault(p); err != nil {
		return "", err
	}
	m.records[p+"/"+key] = raw
	m.writes++
	return key, nil
}

func (m *MemoryStore) List(ctx context.Context, path string) ([]Entry, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	prefix := p + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, v := range m.records {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		child := k[len(prefix):]
		if strings.Contains(child, "/") {
			continue
		}
		out = append(out, Entry{Key: child, Value: append(json.RawMessage(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFault(p); err != nil {
		return err
	}
	delete(m.records, p)
	prefix := p + "/"
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			delete(m.records, k)
		}
	}
	m.writes++
	return nil
}
