package vecindex

import "sync"

// LabelMap maintains the injective label<->key bijection, persisted
// separately from the vector data so that an index rebuild preserves
// label semantics across restarts. Label allocation is monotonic:
// Allocate draws new labels from a counter that only increases, so a
// removed label is never handed out again.
type LabelMap struct {
	mu         sync.RWMutex
	keyToLabel map[string]int64
	labelToKey map[int64]string
	nextLabel  int64
}

// NewLabelMap creates an empty LabelMap.
func NewLabelMap() *LabelMap {
	return &LabelMap{
		keyToLabel: make(map[string]int64),
		labelToKey: make(map[int64]string),
	}
}

// Allocate returns the existing label for key, or assigns and returns the
// next monotonic label if key is new.
func (m *LabelMap) Allocate(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if label, ok := m.keyToLabel[key]; ok {
		return label
	}
	label := m.nextLabel
	m.nextLabel++
	m.keyToLabel[key] = label
	m.labelToKey[label] = key
	return label
}

// LabelFor returns the label assigned to key, if any.
func (m *LabelMap) LabelFor(key string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	label, ok := m.keyToLabel[key]
	return label, ok
}

// KeyFor returns the key assigned to label, if any.
func (m *LabelMap) KeyFor(label int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.labelToKey[label]
	return key, ok
}

// Remove soft-deletes a key's mapping entirely (used when a GlobalTag's
// frequency drops to zero and its label must be freed from the index).
func (m *LabelMap) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if label, ok := m.keyToLabel[key]; ok {
		delete(m.keyToLabel, key)
		delete(m.labelToKey, label)
	}
}

// Len returns the number of live mappings.
func (m *LabelMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keyToLabel)
}

// snapshot is the gob-serializable form of a LabelMap.
type labelMapSnapshot struct {
	Version    string
	KeyToLabel map[string]int64
	NextLabel  int64
}

// Snapshot captures the current bijection for persistence.
func (m *LabelMap) Snapshot() labelMapSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]int64, len(m.keyToLabel))
	for k, v := range m.keyToLabel {
		cp[k] = v
	}
	return labelMapSnapshot{Version: snapshotVersion, KeyToLabel: cp, NextLabel: m.nextLabel}
}

// restore replaces the bijection from a persisted snapshot.
func (m *LabelMap) restore(snap labelMapSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyToLabel = make(map[string]int64, len(snap.KeyToLabel))
	m.labelToKey = make(map[int64]string, len(snap.KeyToLabel))
	for k, v := range snap.KeyToLabel {
		m.keyToLabel[k] = v
		m.labelToKey[v] = k
	}
	m.nextLabel = snap.NextLabel
}
