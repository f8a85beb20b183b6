package chat

import (
	"fmt"
	"sort"
	"sync"
)

// BiMap is a one-to-one mapping between backend identifiers and display
// names. It is safe for concurrent use.
//
// Set replaces any pair that shares the id or the name with the new pair, so
// that the mapping stays injective both ways: the newest pair wins.
type BiMap struct {
	mu     sync.RWMutex
	byID   map[string]string
	byName map[string]string
}

func NewBiMap() *BiMap {
	return &BiMap{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
}

func (m *BiMap) Set(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[id]; ok {
		delete(m.byName, old)
	}
	if old, ok := m.byName[name]; ok {
		delete(m.byID, old)
	}
	m.byID[id] = name
	m.byName[name] = id
}

// ID returns the identifier mapped to name.
func (m *BiMap) ID(name string) (id string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok = m.byName[name]
	return
}

// Name returns the display name mapped to id.
func (m *BiMap) Name(id string) (name string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok = m.byID[id]
	return
}

func (m *BiMap) DeleteID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.byID[id]; ok {
		delete(m.byName, name)
		delete(m.byID, id)
	}
}

func (m *BiMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Names returns all display names, sorted.
func (m *BiMap) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SetUnique maps id to name, or to format applied to name and the smallest
// number from 2 that is free, and returns the name used. An id that is
// already mapped keeps its name.
func (m *BiMap) SetUnique(id, name, format string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[id]; ok {
		return old
	}
	name = UniqueName(name, format, func(n string) bool {
		_, ok := m.byName[n]
		return ok
	})
	m.byID[id] = name
	m.byName[name] = id
	return name
}

// UniqueName returns name when it is free, or else the first free one of
// fmt.Sprintf(format, name, 2), fmt.Sprintf(format, name, 3) and so on.
// taken reports whether a name is in use.
func UniqueName(name, format string, taken func(name string) bool) string {
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		if n := fmt.Sprintf(format, name, i); !taken(n) {
			return n
		}
	}
}
