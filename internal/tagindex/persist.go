package tagindex

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/vecindex"
)

// Persist flushes the tag metadata, dirty vector shards, label map, file
// registry, and cooccurrence DB to PersistDir. Concurrent calls collapse:
// while a save is in flight, further requests return nil at once and
// merge into one trailing pass that the in-flight call runs after its
// current pass. The trailing pass runs whether or not anything is still
// dirty, and requests arriving during it queue one more pass.
func (m *Manager) Persist(ctx context.Context) error {
	m.saveMu.Lock()
	if m.saveInFlight {
		m.savePendingAgain = true
		m.saveMu.Unlock()
		return nil
	}
	m.saveInFlight = true
	m.saveMu.Unlock()

	var firstErr error
	for {
		if err := m.saveOnce(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Warn("tagindex: persist pass failed, dirty shards retained", zap.Error(err))
		}

		m.saveMu.Lock()
		if m.savePendingAgain {
			m.savePendingAgain = false
			m.saveMu.Unlock()
			continue
		}
		m.saveInFlight = false
		m.saveMu.Unlock()
		return firstErr
	}
}

// saveOnce performs one complete write pass. The shard count is computed
// exactly once against a snapshot of the vectorized-tag count taken under
// updateMu, and dirty indices are interpreted against that same snapshot;
// stale indices inherited from an older snapshot are discarded by the
// shard-count-changed full rewrite below.
func (m *Manager) saveOnce(ctx context.Context) error {
	m.updateMu.Lock()
	vectors := make(map[string][]float32)
	for text, tag := range m.tags {
		if tag.HasVector() {
			vectors[text] = tag.Vector
		}
	}
	prevShardCount := m.shardCount
	dirty := make(map[int]bool, len(m.dirtyShards))
	for i := range m.dirtyShards {
		dirty[i] = true
	}
	labelsSnapshot := m.labels
	tagsSnapshot := make(map[string]*GlobalTag, len(m.tags))
	for text, tag := range m.tags {
		cp := *tag
		tagsSnapshot[text] = &cp
	}
	m.updateMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	newShardCount := shardCountFor(len(vectors), m.cfg.SaveShardSize)
	var dirtyArg map[int]bool
	if newShardCount == prevShardCount && prevShardCount != 0 && len(dirty) > 0 {
		dirtyArg = dirty
	}

	writtenCount, err := saveShards(m.cfg.PersistDir, vectors, m.cfg.SaveShardSize, dirtyArg)
	if err != nil {
		return err
	}

	if err := saveMeta(m.cfg.PersistDir, tagsSnapshot, time.Now().UnixMilli()); err != nil {
		return err
	}
	if err := vecindex.SaveLabelMap(labelMapPath(m.cfg.PersistDir), labelsSnapshot); err != nil {
		return err
	}
	if err := m.registry.Save(registryPath(m.cfg.PersistDir)); err != nil {
		return err
	}
	if err := m.cooc.Save(cooccurrenceDBPath(m.cfg.PersistDir)); err != nil {
		return err
	}

	// Obsolete shards (index >= new count) are removed only now, after
	// every rename above has succeeded.
	for i := writtenCount; i < prevShardCount; i++ {
		_ = os.Remove(shardPath(m.cfg.PersistDir, i))
	}

	m.updateMu.Lock()
	m.shardCount = writtenCount
	if dirtyArg == nil {
		m.dirtyShards = make(map[int]bool)
	} else {
		for i := range dirty {
			delete(m.dirtyShards, i)
		}
	}
	m.updateMu.Unlock()
	return nil
}

// ExportMatrix snapshots the cooccurrence pair weights as the dense
// tag -> {related -> weight} map used for warm starts.
func (m *Manager) ExportMatrix() error {
	return m.cooc.ExportToFile(cooccurrenceMatrixPath(m.cfg.PersistDir))
}

// DirtyShardCount reports how many shards are awaiting a flush.
func (m *Manager) DirtyShardCount() int {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	return len(m.dirtyShards)
}
