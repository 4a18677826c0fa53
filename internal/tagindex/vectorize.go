package tagindex

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// RunPendingVectorization drains the current pending-vectorize batch,
// embeds its tags (the slow part, done without holding updateMu), and
// incrementally adds the resulting vectors to the index via add_points
// rather than a full rebuild, per the "prefer add_points" policy. While
// this batch is in flight, newly observed tags accumulate in next instead
// of racing with it; on completion next is promoted to pending, and if
// still non-empty the caller should schedule another batch after the
// configured grace delay.
func (m *Manager) RunPendingVectorization(ctx context.Context) (remaining int, err error) {
	m.rebuildMu.Lock()
	if m.rebuildRunning {
		m.rebuildMu.Unlock()
		return 0, ErrAlreadyRebuilding
	}
	batch := m.pendingVectorize
	m.pendingVectorize = make(map[string]struct{})
	m.rebuildRunning = true
	m.rebuildMu.Unlock()

	defer func() {
		m.rebuildMu.Lock()
		m.rebuildRunning = false
		m.pendingVectorize = m.nextVectorize
		m.nextVectorize = make(map[string]struct{})
		remaining = len(m.pendingVectorize)
		m.rebuildMu.Unlock()
	}()

	if len(batch) == 0 {
		return 0, nil
	}

	texts := make([]string, 0, len(batch))
	for t := range batch {
		texts = append(texts, t)
	}
	sort.Strings(texts)

	vectors, embedErr := m.embedInBatches(ctx, texts)
	if embedErr != nil {
		m.logger.Warn("tagindex: vectorization batch failed, tags remain unvectorized", zap.Error(embedErr))
		m.rebuildMu.Lock()
		for _, t := range texts {
			m.nextVectorize[t] = struct{}{}
		}
		m.rebuildMu.Unlock()
		return 0, embedErr
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	for i, text := range texts {
		tag, ok := m.tags[text]
		if !ok {
			continue // destroyed while the batch was embedding
		}
		tag.Vector = vectors[i]
		label := m.labels.Allocate(text)
		m.index.GrowIfNeeded(m.index.Len()+1, m.cfg.GrowthLoadFactor, m.cfg.GrowthFactor)
		if err := m.index.Add(tag.Vector, label); err != nil {
			_ = m.index.Replace(tag.Vector, label)
		}
		if m.shardCount > 0 {
			m.dirtyShards[shardIndexFor(text, m.shardCount)] = true
		}
	}
	return 0, nil
}

// embedInBatches embeds texts in VectorizeBatchSize-sized chunks, with at
// most VectorizeConcurrency batches in flight at once. Workers write only
// their own result slot; input order is preserved in the flattened output.
func (m *Manager) embedInBatches(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := m.cfg.VectorizeBatchSize
	if batchSize <= 0 || batchSize > len(texts) {
		batchSize = len(texts)
	}
	concurrency := m.cfg.VectorizeConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	type span struct{ start, end int }
	var spans []span
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		spans = append(spans, span{start: start, end: end})
	}

	results := make([][][]float32, len(spans))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for i, s := range spans {
		if err := ctx.Err(); err != nil {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, s span) {
			defer wg.Done()
			defer func() { <-sem }()

			errMu.Lock()
			failed := firstErr != nil
			errMu.Unlock()
			if failed {
				return
			}

			vecs, err := m.embedder.EmbedDocuments(ctx, texts[s.start:s.end])
			errMu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
			} else {
				results[i] = vecs
			}
			errMu.Unlock()
		}(i, s)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([][]float32, 0, len(texts))
	for _, vecs := range results {
		out = append(out, vecs...)
	}
	return out, nil
}

// RequestRebuild forces a full from-scratch rebuild of the ANN index from
// every currently-vectorized tag, preserving existing label assignments.
// Used for explicit reconciliation (e.g. after detecting corruption).
func (m *Manager) RequestRebuild(ctx context.Context) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	m.rebuildIndexFromScratchLocked(ctx)
}

// PendingVectorizeCount reports how many tags are awaiting embedding,
// summed across both halves of the double buffer.
func (m *Manager) PendingVectorizeCount() int {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	return len(m.pendingVectorize) + len(m.nextVectorize)
}
