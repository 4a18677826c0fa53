package tagindex

import (
	"context"
	"fmt"
	"sort"
)

// SimilarTags searches the global tag index. input is either a []float32
// query vector or a string, which is embedded first. Vectors are assumed
// L2-normalized, so score = 1 - squaredL2Distance tracks cosine
// similarity. Ties break by frequency descending, then tag lexicographic.
func (m *Manager) SimilarTags(ctx context.Context, input interface{}, k int) ([]SimilarTagResult, error) {
	var query []float32
	switch v := input.(type) {
	case []float32:
		query = v
	case string:
		vec, err := m.embedder.EmbedQuery(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("tagindex: embedding query: %w", err)
		}
		query = vec
	default:
		return nil, fmt.Errorf("tagindex: unsupported SimilarTags input type %T", input)
	}

	m.updateMu.Lock()
	candidates := m.index.SearchKNN(query, k)
	results := make([]SimilarTagResult, 0, len(candidates))
	for _, c := range candidates {
		text, ok := m.labels.KeyFor(c.Label)
		if !ok {
			continue
		}
		tag, ok := m.tags[text]
		if !ok {
			continue
		}
		results = append(results, SimilarTagResult{
			Tag:        text,
			Score:      float64(1 - c.Distance),
			Frequency:  tag.Frequency,
			DiaryCount: len(tag.Diaries),
			Diaries:    tag.DiaryList(),
		})
	}
	m.updateMu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Frequency != results[j].Frequency {
			return results[i].Frequency > results[j].Frequency
		}
		return results[i].Tag < results[j].Tag
	})
	return results, nil
}

// expansionAccumulator tracks a candidate tag's contribution across seeds.
type expansionAccumulator struct {
	sources     []string
	totalWeight int
}

// ExpandTags implements tag-seed expansion: for each seed, pull its
// cooccurrence row, accumulate candidates (skipping the seeds themselves
// and edges below ExpandMinWeight), and rank either by (source_count desc,
// avg_weight desc, total_weight desc) when PreferMultiSource is set, or by
// total_weight desc otherwise.
func (m *Manager) ExpandTags(seeds []string, max int) []ExpansionResult {
	seedSet := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		seedSet[s] = struct{}{}
	}

	acc := make(map[string]*expansionAccumulator)
	for _, seed := range seeds {
		row := m.cooc.Row(seed)
		for candidate, weight := range row {
			if _, isSeed := seedSet[candidate]; isSeed {
				continue
			}
			if weight < m.cfg.ExpandMinWeight {
				continue
			}
			a, ok := acc[candidate]
			if !ok {
				a = &expansionAccumulator{}
				acc[candidate] = a
			}
			a.sources = append(a.sources, seed)
			a.totalWeight += weight
		}
	}

	results := make([]ExpansionResult, 0, len(acc))
	for tag, a := range acc {
		sort.Strings(a.sources)
		results = append(results, ExpansionResult{
			Tag:         tag,
			Weight:      a.totalWeight,
			Sources:     a.sources,
			SourceCount: len(a.sources),
			AvgWeight:   float64(a.totalWeight) / float64(len(a.sources)),
		})
	}

	if m.cfg.ExpandPreferMultiSrc {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].SourceCount != results[j].SourceCount {
				return results[i].SourceCount > results[j].SourceCount
			}
			if results[i].AvgWeight != results[j].AvgWeight {
				return results[i].AvgWeight > results[j].AvgWeight
			}
			if results[i].Weight != results[j].Weight {
				return results[i].Weight > results[j].Weight
			}
			return results[i].Tag < results[j].Tag
		})
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Weight != results[j].Weight {
				return results[i].Weight > results[j].Weight
			}
			return results[i].Tag < results[j].Tag
		})
	}

	limit := max
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	return results[:limit]
}

// TagFrequency returns a tag's current frequency and diary set, for
// callers that need a direct lookup rather than a similarity search.
func (m *Manager) TagFrequency(tag string) (frequency int, diaries []string, ok bool) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	t, found := m.tags[tag]
	if !found {
		return 0, nil, false
	}
	return t.Frequency, t.DiaryList(), true
}

// Stats returns overall totals useful for health/metrics reporting.
type ManagerStats struct {
	TotalTags      int
	VectorizedTags int
	Cooccurrence   Stats
	PendingVectors int
}

// Stats reports current totals across the tag table, cooccurrence DB, and
// vectorization queue.
func (m *Manager) Stats() ManagerStats {
	m.updateMu.Lock()
	total := len(m.tags)
	vectorized := 0
	for _, t := range m.tags {
		if t.HasVector() {
			vectorized++
		}
	}
	m.updateMu.Unlock()

	return ManagerStats{
		TotalTags:      total,
		VectorizedTags: vectorized,
		Cooccurrence:   m.cooc.Stats(),
		PendingVectors: m.PendingVectorizeCount(),
	}
}
