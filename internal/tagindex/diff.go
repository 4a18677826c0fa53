package tagindex

import (
	"path/filepath"

	"go.uber.org/zap"
)

// diaryOfPath returns the diary name for a file path: the name of its
// immediate parent directory, which is the diary's retrieval key per the
// directory layout `<root>/<diary_name>/<file>`.
func diaryOfPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// FileChanged runs the O(|tags in file|) diff pipeline for one file event
// (add or content change): it computes the current tag set, diffs it
// against the file registry, applies the delta to the GlobalTag table and
// diary-membership counters, updates the cooccurrence DB, and schedules the
// new tags for vectorization. No-ops if the content hash is unchanged.
func (m *Manager) FileChanged(path string, content []byte) {
	diary := diaryOfPath(path)
	if ShouldIgnoreFolder(diary, &m.cfg) {
		return
	}

	currentHash := HashContent(content)
	if existing, ok := m.registry.Get(path); ok && existing.Hash == currentHash {
		return
	}

	currentTags := ExtractTags(string(content), &m.cfg)

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	added, removed, unchanged := m.registry.Diff(path, currentHash, currentTags)
	if unchanged {
		return
	}

	for _, tag := range removed {
		m.touchTagLocked(tag, diary, -1)
	}
	newlyAdded := make([]string, 0, len(added))
	for _, tag := range added {
		if _, existed := m.tags[tag]; !existed {
			newlyAdded = append(newlyAdded, tag)
		}
		m.touchTagLocked(tag, diary, +1)
	}

	m.cooc.RecordTagGroup(path, diary, currentTags)

	if len(newlyAdded) > 0 {
		m.scheduleVectorize(newlyAdded)
	}
	m.logger.Debug("tagindex: file diff applied",
		zap.String("path", path), zap.Int("added", len(added)), zap.Int("removed", len(removed)))
}

// FileRemoved applies the registry/GlobalTag/cooccurrence updates for a
// deleted file: every tag it contributed is decremented exactly as if it
// had been edited down to zero tags, and its cooccurrence row is dropped.
func (m *Manager) FileRemoved(path string) {
	diary := diaryOfPath(path)

	tags, ok := m.registry.Remove(path)
	if !ok {
		return
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	for _, tag := range tags {
		m.touchTagLocked(tag, diary, -1)
	}
	m.cooc.RemoveTagGroup(path)
}

// touchTagLocked applies a +1/-1 frequency delta to tag for diary,
// creating the GlobalTag entry on first observation and destroying it (plus
// soft-deleting its ANN label) when frequency reaches zero. Diary
// membership is tracked exactly via diaryTagCount rather than approximated:
// a diary is dropped from Diaries only when no remaining file in that
// diary contributes the tag. Caller holds updateMu.
func (m *Manager) touchTagLocked(tag, diary string, delta int) {
	if m.diaryTagCount[tag] == nil {
		m.diaryTagCount[tag] = make(map[string]int)
	}
	m.diaryTagCount[tag][diary] += delta

	t, ok := m.tags[tag]
	if !ok {
		if delta <= 0 {
			return
		}
		t = &GlobalTag{Text: tag, Frequency: 0, Diaries: make(map[string]struct{})}
		m.tags[tag] = t
	}

	t.Frequency += delta
	if m.diaryTagCount[tag][diary] <= 0 {
		delete(t.Diaries, diary)
		delete(m.diaryTagCount[tag], diary)
	} else {
		t.Diaries[diary] = struct{}{}
	}

	if t.Frequency <= 0 {
		m.destroyTagLocked(tag)
	}
}

// destroyTagLocked removes a GlobalTag whose frequency has reached zero:
// its label is soft-deleted from the index and label map, and its shard is
// marked dirty so the next save omits it. Caller holds updateMu.
func (m *Manager) destroyTagLocked(tag string) {
	if label, ok := m.labels.LabelFor(tag); ok {
		m.index.Remove(label)
		m.labels.Remove(tag)
		if m.shardCount > 0 {
			m.dirtyShards[shardIndexFor(tag, m.shardCount)] = true
		}
	}
	delete(m.tags, tag)
	delete(m.diaryTagCount, tag)

	m.rebuildMu.Lock()
	delete(m.pendingVectorize, tag)
	delete(m.nextVectorize, tag)
	m.rebuildMu.Unlock()
}

// scheduleVectorize enqueues newly-observed tags for embedding. If a batch
// rebuild is currently running, the tags go into next so they're captured
// by the following batch instead of racing with the in-flight one; the
// double-buffered invariant is: mutations during a rebuild go to next, and
// on completion next is promoted to pending. Caller holds updateMu (a
// superset of the rebuildMu critical section below is fine: rebuildMu only
// ever nests inside updateMu in this package, never the reverse).
func (m *Manager) scheduleVectorize(tags []string) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	target := m.pendingVectorize
	if m.rebuildRunning {
		target = m.nextVectorize
	}
	for _, t := range tags {
		target[t] = struct{}{}
	}
}
