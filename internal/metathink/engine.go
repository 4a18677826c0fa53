package metathink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/vecmath"
)

// ClusterSearcher is the retrieval capability a chain runs against: one
// k-NN search over a named cluster. The diary store satisfies it via a
// thin adapter in cmd/ragdiaryd.
type ClusterSearcher interface {
	SearchCluster(ctx context.Context, cluster string, query []float32, k int) ([]ClusterResult, error)
}

// Engine executes configured meta-thinking chains.
type Engine struct {
	cfg      Config
	searcher ClusterSearcher
	logger   *zap.Logger
}

// NewEngine constructs an Engine over the given cluster searcher.
func NewEngine(cfg Config, searcher ClusterSearcher, logger *zap.Logger) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, searcher: searcher, logger: logger}
}

// defaultStageK is the per-stage k used when the k-sequence is shorter
// than the chain.
const defaultStageK = 3

// stageBlendWeight is the share of the original query kept when folding a
// stage's mean result vector into the next stage's query.
const stageBlendWeight = 0.8

// Run executes the named chain left to right. Stage i searches cluster
// chain[i] with the current query vector; a non-empty stage blends its
// mean result vector into the next stage's query (0.8 original + 0.2
// mean), an empty stage keeps the current vector and is marked degraded,
// and a stage error stops the chain with the error recorded on that
// stage's report.
func (e *Engine) Run(ctx context.Context, chainName string, kseq []int, query []float32) (*Report, error) {
	chain, ok := e.cfg.Chains[chainName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChainNotFound, chainName)
	}

	report := &Report{ChainName: chainName}
	current := query

	for i, cluster := range chain.Clusters {
		k := defaultStageK
		if i < len(kseq) && kseq[i] > 0 {
			k = kseq[i]
		} else if len(kseq) > 0 && kseq[len(kseq)-1] > 0 {
			k = kseq[len(kseq)-1]
		}

		stage := StageReport{Cluster: cluster, K: k}
		results, err := e.searcher.SearchCluster(ctx, cluster, current, k)
		if err != nil {
			stage.Err = err
			report.Stages = append(report.Stages, stage)
			e.logger.Warn("metathink: stage failed, chain stopped",
				zap.String("chain", chainName), zap.String("cluster", cluster), zap.Error(err))
			return report, nil
		}

		stage.Results = results
		if len(results) == 0 {
			stage.Degraded = true
			report.Stages = append(report.Stages, stage)
			continue
		}
		report.Stages = append(report.Stages, stage)

		if i < len(chain.Clusters)-1 {
			vectors := make([][]float32, 0, len(results))
			for _, r := range results {
				if r.Vector != nil {
					vectors = append(vectors, r.Vector)
				}
			}
			if mean := vecmath.Mean(vectors); mean != nil {
				current = vecmath.Blend(query, mean, stageBlendWeight)
			}
		}
	}
	return report, nil
}

// RunAuto picks the chain whose pre-embedded theme vector maximizes cosine
// similarity with the query, falling back to the default chain when the
// best similarity is below the threshold (thresholdOverride when it is
// positive, else the configured AutoThreshold), then runs it.
func (e *Engine) RunAuto(ctx context.Context, kseq []int, query []float32, thresholdOverride float64) (*Report, error) {
	threshold := e.cfg.AutoThreshold
	if thresholdOverride > 0 {
		threshold = thresholdOverride
	}

	best := ""
	bestScore := -1.0
	for name, chain := range e.cfg.Chains {
		if chain.ThemeVector == nil {
			continue
		}
		score := vecmath.Cosine(query, chain.ThemeVector)
		if score > bestScore || (score == bestScore && name < best) {
			best, bestScore = name, score
		}
	}

	chosen := e.cfg.DefaultChain
	if best != "" && bestScore >= threshold {
		chosen = best
	}

	report, err := e.Run(ctx, chosen, kseq, query)
	if err != nil {
		return nil, err
	}
	report.AutoPicked = true
	return report, nil
}

// Chains returns the configured chain names, for status reporting.
func (e *Engine) Chains() []string {
	out := make([]string, 0, len(e.cfg.Chains))
	for name := range e.cfg.Chains {
		out = append(out, name)
	}
	return out
}
