package semgroup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ragdiary/diaryengine/internal/vecmath"
)

// Embedder is the capability Manager needs to turn a group's VectorText
// into its representative vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Manager holds the configured groups and their precomputed vectors.
type Manager struct {
	groups  []GroupConfig
	vectors map[string][]float32
}

// New constructs a Manager from configured groups. Vectors are computed
// lazily by Warm, not here, since embedding is I/O.
func New(groups []GroupConfig) *Manager {
	return &Manager{
		groups:  groups,
		vectors: make(map[string][]float32, len(groups)),
	}
}

// Warm embeds every group's VectorText, so Detect's enhancement-vector
// computation never blocks on I/O at query time. Safe to call repeatedly;
// already-warmed groups are skipped.
func (m *Manager) Warm(ctx context.Context, embedder Embedder) error {
	for _, g := range m.groups {
		if _, ok := m.vectors[g.Name]; ok {
			continue
		}
		text := g.VectorText
		if text == "" {
			text = strings.Join(g.Keywords, " ")
		}
		vec, err := embedder.EmbedQuery(ctx, text)
		if err != nil {
			return fmt.Errorf("semgroup: embedding group %q: %w", g.Name, err)
		}
		m.vectors[g.Name] = vec
	}
	return nil
}

// Detect scans text for each configured group's keywords and returns the
// activations whose strength is > 0, sorted by strength descending then
// group name ascending for stable trace/formatting output.
func (m *Manager) Detect(text string) []Activation {
	var out []Activation
	for _, g := range m.groups {
		if len(g.Keywords) == 0 {
			continue
		}
		var matched []string
		for _, kw := range g.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, Activation{
			Group:        g.Name,
			Strength:     float64(len(matched)) / float64(len(g.Keywords)),
			MatchedWords: matched,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Group < out[j].Group
	})
	return out
}

// EnhancementVector merges the precomputed vectors of the given
// activations, weighted by each activation's strength, via
// vecmath.WeightedSum. Groups with no warmed vector are skipped. Returns
// nil if no activation has a vector.
func (m *Manager) EnhancementVector(activations []Activation) []float32 {
	var vectors [][]float32
	var weights []float64
	for _, a := range activations {
		vec, ok := m.vectors[a.Group]
		if !ok {
			continue
		}
		vectors = append(vectors, vec)
		weights = append(weights, a.Strength)
	}
	if len(vectors) == 0 {
		return nil
	}
	return vecmath.WeightedSum(vectors, weights)
}
