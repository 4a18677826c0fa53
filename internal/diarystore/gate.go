package diarystore

import (
	"sort"
)

// SetEnhancedTopicVector installs diary's topic vector, derived by the
// caller from its configured tag:weight pairs. The gate check takes the
// max of name-vector and topic-vector similarity, so a diary without a
// topic vector gates on its name alone.
func (s *Store) SetEnhancedTopicVector(diary string, vec []float32) {
	d := s.diary(diary)
	d.mu.Lock()
	d.enhancedTopicVector = vec
	d.mu.Unlock()
}

// TopicVector returns diary's enhanced topic vector, or nil if none was
// set.
func (s *Store) TopicVector(diary string) []float32 {
	d := s.diary(diary)
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enhancedTopicVector
}

// AllChunks returns every chunk in diary, ordered by timestamp ascending
// (undated chunks last, then by text), for whole-diary expansions.
func (s *Store) AllChunks(diary string) []Chunk {
	d := s.diary(diary)
	d.mu.RLock()
	out := make([]Chunk, 0, len(d.chunks))
	for _, c := range d.chunks {
		out = append(out, c)
	}
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Timestamp, out[j].Timestamp
		switch {
		case ti != nil && tj != nil:
			if !ti.Equal(*tj) {
				return ti.Before(*tj)
			}
		case ti != nil:
			return true
		case tj != nil:
			return false
		}
		return out[i].Text < out[j].Text
	})
	return out
}
