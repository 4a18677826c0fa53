package queryplanner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdiary/diaryengine/internal/diarystore"
	"github.com/ragdiary/diaryengine/internal/metathink"
)

// fakeEmbedder returns a fixed unit vector, or fails when broken.
type fakeEmbedder struct {
	vec    []float32
	broken bool
	calls  int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.broken {
		return nil, errors.New("embedding endpoint down")
	}
	return f.vec, nil
}

// fakeDiaryStore serves canned results and records the calls it receives.
type fakeDiaryStore struct {
	nameVec   []float32
	threshold float64
	results   []diarystore.SearchResult
	chunks    []diarystore.Chunk
	searchErr error

	searchCalls int
	lastK       int
	lastOpts    diarystore.SearchOptions
}

func (f *fakeDiaryStore) Search(ctx context.Context, diary string, queryVec []float32, k int, opts diarystore.SearchOptions) ([]diarystore.SearchResult, error) {
	f.searchCalls++
	f.lastK = k
	f.lastOpts = opts
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeDiaryStore) GetNameVector(ctx context.Context, diary string) ([]float32, error) {
	return f.nameVec, nil
}

func (f *fakeDiaryStore) TopicVector(diary string) []float32 { return nil }

func (f *fakeDiaryStore) SimilarityThreshold(diary string) float64 { return f.threshold }

func (f *fakeDiaryStore) AllChunks(diary string) []diarystore.Chunk { return f.chunks }

// fakeMetaEngine returns a canned report.
type fakeMetaEngine struct {
	report *metathink.Report
	err    error
}

func (f *fakeMetaEngine) Run(ctx context.Context, chain string, kseq []int, query []float32) (*metathink.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeMetaEngine) RunAuto(ctx context.Context, kseq []int, query []float32, threshold float64) (*metathink.Report, error) {
	return f.Run(ctx, "", kseq, query)
}

func unitVec() []float32 { return []float32{1, 0, 0, 0} }

func newTestPlanner(t *testing.T, store *fakeDiaryStore, embedder *fakeEmbedder, meta MetaEngine) *Planner {
	t.Helper()
	p, err := New(Config{QueryCacheEnabled: true}, embedder, store, nil, meta, nil, nil, nil)
	require.NoError(t, err)
	return p
}

func TestStandardPlaceholder(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		results: []diarystore.SearchResult{
			{Text: "今天猫很乖", Score: 0.9, Source: []string{"rag"}},
			{Text: "猫吃了鱼", Score: 0.8, Source: []string{"rag"}},
		},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "前缀[[猫咪日记本]]后缀"},
		{Role: "user", Content: "介绍一下猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})

	require.Len(t, out, 2)
	content := out[0].Content
	assert.True(t, strings.HasPrefix(content, "前缀"))
	assert.True(t, strings.HasSuffix(content, "后缀"))
	assert.Contains(t, content, `[--- 从"猫咪日记本"中检索到的相关记忆片段 ---]`)
	assert.Contains(t, content, "* 今天猫很乖")
	assert.Contains(t, content, "* 猫吃了鱼")
	assert.Contains(t, content, "[--- 记忆片段结束 ---]")
	assert.Equal(t, msgs[1], out[1], "non-system messages pass through unchanged")
}

func TestEmbeddingFailureNeutrality(t *testing.T) {
	store := &fakeDiaryStore{nameVec: unitVec()}
	p := newTestPlanner(t, store, &fakeEmbedder{broken: true}, nil)

	msgs := []Message{
		{Role: "system", Content: "A[[猫咪日记本]]B<<狗狗日记本>>C"},
		{Role: "user", Content: "介绍一下猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Equal(t, "ABC", out[0].Content)
	assert.Zero(t, store.searchCalls)
}

func TestNoQuerySourceEmptiesPlaceholders(t *testing.T) {
	store := &fakeDiaryStore{nameVec: unitVec()}
	embedder := &fakeEmbedder{vec: unitVec()}
	p := newTestPlanner(t, store, embedder, nil)

	msgs := []Message{
		{Role: "system", Content: "A[[猫咪日记本]]B"},
		{Role: "user", Content: "[系统提示:] 这是注入"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Equal(t, "AB", out[0].Content)
	assert.Zero(t, embedder.calls, "injection messages are not a query source")
}

func TestCircularReference(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		results:   []diarystore.SearchResult{{Text: "hit", Score: 1, Source: []string{"rag"}}},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "[[猫咪日记本]][[猫咪日记本]]"},
		{Role: "user", Content: "介绍猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Contains(t, out[0].Content, `[检测到循环引用，已跳过"猫咪日记本"的解析]`)
	assert.Equal(t, 1, store.searchCalls, "the second expansion must not search")
}

func TestGateSkipsLowSimilarity(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   []float32{0, 1, 0, 0}, // orthogonal to the query
		threshold: 0.5,
		results:   []diarystore.SearchResult{{Text: "hit", Score: 1}},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "A[[猫咪日记本]]B"},
		{Role: "user", Content: "介绍猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Equal(t, "AB", out[0].Content)
	assert.Zero(t, store.searchCalls)
}

func TestCacheDeterminism(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		results:   []diarystore.SearchResult{{Text: "hit", Score: 1, Source: []string{"rag"}}},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "[[猫咪日记本]]"},
		{Role: "user", Content: "介绍猫"},
	}
	first := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	second := p.ProcessSystemMessages(context.Background(), msgs, Options{})

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.searchCalls, "second call must be served from cache")
	hits, _, _, _ := p.CacheStats()
	assert.GreaterOrEqual(t, hits, int64(1))
}

func TestPlaceholderFailureIsIsolated(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		searchErr: errors.New("index offline"),
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "A[[猫咪日记本]]B"},
		{Role: "user", Content: "介绍猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Contains(t, out[0].Content, "[处理失败: ")
	assert.True(t, strings.HasPrefix(out[0].Content, "A"))
	assert.True(t, strings.HasSuffix(out[0].Content, "B"))
}

func TestTimeAwarePlaceholder(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, loc)

	d1 := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		results: []diarystore.SearchResult{
			{Text: "语义命中", Score: 0.9, Source: []string{"rag"}},
			{Text: "那天去了公园", Source: []string{"time"}, Timestamp: &d1},
		},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "[[猫咪日记本::Time]]"},
		{Role: "user", Content: "上周三 介绍猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{Now: now})
	content := out[0].Content

	assert.Contains(t, content, `[--- "猫咪日记本" 多时间感知检索结果 ---]`)
	assert.Equal(t, 1, strings.Count(content, "[合并查询的时间范围:"))
	assert.Contains(t, content, "【语义相关记忆】")
	assert.Contains(t, content, "【时间范围记忆】")
	assert.Contains(t, content, "* [2025-03-10] 那天去了公园")
	assert.Contains(t, content, "[--- 检索结束 ---]")

	// 上周三 relative to Saturday 2025-03-15 is 2025-03-12.
	require.Len(t, store.lastOpts.TimeRanges, 1)
	start := time.Unix(store.lastOpts.TimeRanges[0].Start, 0).In(loc)
	assert.Equal(t, "2025-03-12", start.Format("2006-01-02"))
}

func TestFullTextPlaceholder(t *testing.T) {
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		chunks: []diarystore.Chunk{
			{ID: "1", Text: "第一篇", Timestamp: &ts},
			{ID: "2", Text: "第二篇"},
		},
	}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "<<猫咪日记本>>"},
		{Role: "user", Content: "介绍猫"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Contains(t, out[0].Content, "* 第一篇")
	assert.Contains(t, out[0].Content, "* 第二篇")
	assert.Zero(t, store.searchCalls, "whole-diary inclusion does not search")
}

func TestMetaThinkPlaceholder(t *testing.T) {
	meta := &fakeMetaEngine{report: &metathink.Report{
		ChainName: "default",
		Stages: []metathink.StageReport{
			{Cluster: "facts", K: 3, Results: []metathink.ClusterResult{{Text: "事实一"}}},
			{Cluster: "analysis", K: 2, Degraded: true},
		},
	}}
	store := &fakeDiaryStore{nameVec: unitVec()}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, meta)

	msgs := []Message{
		{Role: "system", Content: "[[VCP元思考:default:3-2]]"},
		{Role: "user", Content: "想一想"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	content := out[0].Content
	assert.Contains(t, content, `[--- VCP元思考链: "default" 共2阶段 ---]`)
	assert.Contains(t, content, "【阶段1: facts】")
	assert.Contains(t, content, "* 事实一")
	assert.Contains(t, content, "[降级模式]")
	assert.Contains(t, content, "[--- 元思考链结束 ---]")
}

func TestMetaThinkUnknownChain(t *testing.T) {
	meta := &fakeMetaEngine{err: metathink.ErrChainNotFound}
	store := &fakeDiaryStore{nameVec: unitVec()}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, meta)

	msgs := []Message{
		{Role: "system", Content: "[[VCP元思考:missing]]"},
		{Role: "user", Content: "想一想"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Equal(t, `[错误: 未找到"missing"思维链定义]`, out[0].Content)
}

func TestLicenseTokenStripped(t *testing.T) {
	store := &fakeDiaryStore{nameVec: unitVec()}
	p := newTestPlanner(t, store, &fakeEmbedder{vec: unitVec()}, nil)

	msgs := []Message{
		{Role: "system", Content: "A[[AIMemo=True]]B"},
		{Role: "user", Content: "你好"},
	}
	out := p.ProcessSystemMessages(context.Background(), msgs, Options{})
	assert.Equal(t, "AB", out[0].Content)
}

func TestDynamicKTiers(t *testing.T) {
	assert.Equal(t, 3, dynamicK("短", "短", 1))
	long := strings.Repeat("很长的用户输入", 20)
	assert.Equal(t, 5, dynamicK(long, "短", 1))
	assert.Equal(t, 6, dynamicK("短", "短", 2))
	assert.Equal(t, 1, dynamicK("", "", 0.01))
}

func TestTraceEventEmitted(t *testing.T) {
	store := &fakeDiaryStore{
		nameVec:   unitVec(),
		threshold: 0.2,
		results:   []diarystore.SearchResult{{Text: "hit", Score: 1, Source: []string{"rag"}}},
	}
	var events []TraceEvent
	p, err := New(Config{}, &fakeEmbedder{vec: unitVec()}, store, nil, nil, nil,
		func(ev TraceEvent) { events = append(events, ev) }, nil)
	require.NoError(t, err)

	msgs := []Message{
		{Role: "system", Content: "[[猫咪日记本::Rerank]]"},
		{Role: "user", Content: "介绍猫"},
	}
	p.ProcessSystemMessages(context.Background(), msgs, Options{})

	require.Len(t, events, 1)
	assert.Equal(t, "猫咪", events[0].DBName)
	assert.Contains(t, events[0].Flags, "rerank")
	assert.NotEmpty(t, events[0].ID)
	require.Len(t, events[0].Results, 1)
	assert.Equal(t, "hit", events[0].Results[0].Text)
}
