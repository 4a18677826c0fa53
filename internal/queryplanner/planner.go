package queryplanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/diarystore"
	"github.com/ragdiary/diaryengine/internal/logging"
	"github.com/ragdiary/diaryengine/internal/metathink"
	"github.com/ragdiary/diaryengine/internal/placeholder"
	"github.com/ragdiary/diaryengine/internal/semgroup"
	"github.com/ragdiary/diaryengine/internal/tagindex"
	"github.com/ragdiary/diaryengine/internal/timeparse"
	"github.com/ragdiary/diaryengine/internal/vecmath"
)

// Message is one chat turn. Only "system" messages are rewritten; the last
// non-injection "user" and the last "assistant" message supply the query.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Injection prefixes: user messages starting with these are orchestration
// artifacts, not real turns, and are skipped as query source.
var injectionPrefixes = []string{"[系统邀请指令:]", "[系统提示:]"}

// Embedder is the capability the planner needs from an embedding client.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DiaryStore is the per-diary retrieval capability.
type DiaryStore interface {
	Search(ctx context.Context, diary string, queryVec []float32, k int, opts diarystore.SearchOptions) ([]diarystore.SearchResult, error)
	GetNameVector(ctx context.Context, diary string) ([]float32, error)
	TopicVector(diary string) []float32
	SimilarityThreshold(diary string) float64
	AllChunks(diary string) []diarystore.Chunk
}

// TagStore is the global-tag lookup capability; nil disables tag-derived
// query tags and the AIMemo block.
type TagStore interface {
	SimilarTags(ctx context.Context, input interface{}, k int) ([]tagindex.SimilarTagResult, error)
	ExpandTags(seeds []string, max int) []tagindex.ExpansionResult
}

// MetaEngine runs meta-thinking chains; nil disables [[VCP元思考]] dispatch.
type MetaEngine interface {
	Run(ctx context.Context, chain string, kseq []int, query []float32) (*metathink.Report, error)
	RunAuto(ctx context.Context, kseq []int, query []float32, threshold float64) (*metathink.Report, error)
}

// Config configures a Planner.
type Config struct {
	QueryCacheEnabled bool
	QueryCacheMaxSize int
	QueryCacheTTL     time.Duration

	EmbeddingCacheMaxSize int
	EmbeddingCacheTTL     time.Duration

	TimeParse timeparse.Config

	// GroupMergeWeight scales how strongly the semantic-group enhancement
	// vector folds into the query (weighted further by activation
	// strength).
	GroupMergeWeight float64

	// QueryTagK is how many similar tags seed the TagMemo boost and the
	// AIMemo block.
	QueryTagK int

	// AIMemoExpandMax bounds the expansion list in the AIMemo block.
	AIMemoExpandMax int
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.QueryCacheMaxSize == 0 {
		c.QueryCacheMaxSize = 100
	}
	if c.QueryCacheTTL == 0 {
		c.QueryCacheTTL = time.Hour
	}
	if c.EmbeddingCacheMaxSize == 0 {
		c.EmbeddingCacheMaxSize = 500
	}
	if c.EmbeddingCacheTTL == 0 {
		c.EmbeddingCacheTTL = 2 * time.Hour
	}
	if c.GroupMergeWeight == 0 {
		c.GroupMergeWeight = 0.3
	}
	if c.QueryTagK == 0 {
		c.QueryTagK = 5
	}
	if c.AIMemoExpandMax == 0 {
		c.AIMemoExpandMax = 10
	}
	c.TimeParse.ApplyDefaults()
}

// Options tunes one ProcessSystemMessages invocation.
type Options struct {
	// Now anchors relative time expressions; zero means time.Now().
	Now time.Time
}

// Planner orchestrates placeholder rewriting.
type Planner struct {
	cfg      Config
	embedder Embedder
	diaries  DiaryStore
	tags     TagStore
	meta     MetaEngine
	groups   *semgroup.Manager
	logger   *logging.Logger
	metrics  *Metrics
	emit     TraceEmitter

	queryCache *ttlCache
	embedCache *ttlCache

	tagConfigHash string
}

// New constructs a Planner. tags, meta, and groups may be nil; emit may be
// nil to disable trace events.
func New(cfg Config, embedder Embedder, diaries DiaryStore, tags TagStore, meta MetaEngine, groups *semgroup.Manager, emit TraceEmitter, logger *logging.Logger) (*Planner, error) {
	cfg.ApplyDefaults()
	if embedder == nil {
		return nil, errors.New("queryplanner: embedder is required")
	}
	if diaries == nil {
		return nil, errors.New("queryplanner: diary store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		cfg:        cfg,
		embedder:   embedder,
		diaries:    diaries,
		tags:       tags,
		meta:       meta,
		groups:     groups,
		logger:     logger,
		metrics:    NewMetrics(logger.Underlying()),
		emit:       emit,
		queryCache: newTTLCache(cfg.QueryCacheMaxSize, cfg.QueryCacheTTL),
		embedCache: newTTLCache(cfg.EmbeddingCacheMaxSize, cfg.EmbeddingCacheTTL),
	}, nil
}

// SetTagConfigHash records the hash of the rag-tags configuration; a
// change clears the query result cache since cached expansions were built
// against the old tag weighting.
func (p *Planner) SetTagConfigHash(hash string) {
	if hash != p.tagConfigHash {
		p.tagConfigHash = hash
		p.queryCache.Purge()
	}
}

// CacheStats reports both caches' hit/miss counters.
func (p *Planner) CacheStats() (queryHits, queryMisses, embedHits, embedMisses int64) {
	queryHits, queryMisses = p.queryCache.Stats()
	embedHits, embedMisses = p.embedCache.Stats()
	return
}

// ProcessSystemMessages rewrites every placeholder in the stream's system
// messages and returns the updated messages. It never returns an error:
// failures degrade to fixed substitution strings per message or per
// placeholder.
func (p *Planner) ProcessSystemMessages(ctx context.Context, messages []Message, opts Options) (out []Message) {
	out = make([]Message, len(messages))
	copy(out, messages)

	// Every log line produced while resolving this turn carries the same
	// query ID.
	ctx = logging.WithQueryID(ctx, uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "planner panic, replacing unresolved placeholders", zap.Any("panic", r))
			for i := range out {
				if out[i].Role != "system" {
					continue
				}
				for _, ph := range placeholder.FindAll(out[i].Content) {
					out[i].Content = strings.Replace(out[i].Content, ph.Raw, substRagFailed, 1)
				}
			}
		}
	}()

	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	userText, aiText := p.queryTexts(messages)
	if userText == "" && aiText == "" {
		return p.emptyAllPlaceholders(out)
	}

	queryVec, err := p.buildQueryVector(ctx, userText, aiText)
	if err != nil {
		p.logger.Warn(ctx, "query embedding failed, emptying placeholders", zap.Error(err))
		return p.emptyAllPlaceholders(out)
	}

	licensed := false
	for _, m := range out {
		if m.Role == "system" && strings.Contains(m.Content, "[[AIMemo=True]]") {
			licensed = true
			break
		}
	}

	st := &turnState{
		userText: userText,
		aiText:   aiText,
		queryVec: queryVec,
		licensed: licensed,
		now:      opts.Now,
	}

	for i := range out {
		if out[i].Role != "system" {
			continue
		}
		phs := placeholder.FindAll(out[i].Content)
		if len(phs) == 0 {
			continue
		}
		processedDiaries := make(map[string]bool)
		for _, ph := range phs {
			replacement := p.dispatch(ctx, ph, st, processedDiaries)
			out[i].Content = strings.Replace(out[i].Content, ph.Raw, replacement, 1)
		}
	}
	return out
}

// turnState carries per-invocation query context across placeholders.
type turnState struct {
	userText string
	aiText   string
	queryVec []float32
	licensed bool
	now      time.Time

	aiMemoEmitted bool
}

// queryTexts extracts the cleaned last-user and last-assistant turn texts.
func (p *Planner) queryTexts(messages []Message) (userText, aiText string) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		switch m.Role {
		case "user":
			if userText == "" && !isInjection(m.Content) {
				userText = cleanQueryText(m.Content)
			}
		case "assistant":
			if aiText == "" {
				aiText = cleanQueryText(m.Content)
			}
		}
		if userText != "" && aiText != "" {
			break
		}
	}
	return userText, aiText
}

func isInjection(content string) bool {
	trimmed := strings.TrimSpace(content)
	for _, prefix := range injectionPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// buildQueryVector embeds the user and assistant texts (through the
// embedding cache) and merges them 0.7/0.3, normalized.
func (p *Planner) buildQueryVector(ctx context.Context, userText, aiText string) ([]float32, error) {
	var userVec, aiVec []float32
	var err error

	if userText != "" {
		userVec, err = p.embedCached(ctx, userText)
		if err != nil {
			return nil, err
		}
	}
	if aiText != "" {
		aiVec, err = p.embedCached(ctx, aiText)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case userVec != nil && aiVec != nil:
		return vecmath.Normalize(vecmath.Blend(userVec, aiVec, 0.7)), nil
	case userVec != nil:
		return vecmath.Normalize(userVec), nil
	default:
		return vecmath.Normalize(aiVec), nil
	}
}

// embedCached embeds text through the SHA-256-keyed embedding cache.
func (p *Planner) embedCached(ctx context.Context, text string) ([]float32, error) {
	key := hashKey(strings.TrimSpace(text))
	if v, ok := p.embedCache.Get(key); ok {
		p.metrics.RecordCacheLookup(ctx, "embedding", true)
		return v.([]float32), nil
	}
	p.metrics.RecordCacheLookup(ctx, "embedding", false)

	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	p.embedCache.Set(key, vec)
	return vec, nil
}

// emptyAllPlaceholders replaces every placeholder in every system message
// with the empty string, leaving all other characters untouched.
func (p *Planner) emptyAllPlaceholders(out []Message) []Message {
	for i := range out {
		if out[i].Role != "system" {
			continue
		}
		for _, ph := range placeholder.FindAll(out[i].Content) {
			out[i].Content = strings.Replace(out[i].Content, ph.Raw, "", 1)
		}
	}
	return out
}

// dispatch routes one placeholder to its handler and absorbs per-
// placeholder failures into the fixed substitution string.
func (p *Planner) dispatch(ctx context.Context, ph placeholder.Placeholder, st *turnState, processedDiaries map[string]bool) string {
	switch ph.Kind {
	case placeholder.KindAIMemoLicense:
		return ""
	case placeholder.KindMetaThink:
		return p.processMetaThink(ctx, ph, st)
	default:
		if processedDiaries[ph.Name] {
			p.metrics.RecordPlaceholder(ctx, "diary", "circular")
			return fmt.Sprintf(circularRefTemplate, ph.Name)
		}
		processedDiaries[ph.Name] = true
		return p.processDiaryPlaceholder(ctx, ph, st)
	}
}

// cacheKeyPayload is the normalized JSON the query cache key hashes.
type cacheKeyPayload struct {
	User  string `json:"user"`
	AI    string `json:"ai"`
	Diary string `json:"diary"`
	Mods  string `json:"mods"`
	Chain string `json:"chain"`
	KSeq  []int  `json:"kSeq,omitempty"`
	Group bool   `json:"group"`
	Auto  bool   `json:"auto"`
	Date  string `json:"date"`
}

func (p *Planner) queryCacheKey(ph placeholder.Placeholder, st *turnState) string {
	date := "static"
	if ph.Mods.Time {
		date = st.now.Format(dateLayout)
	}
	payload := cacheKeyPayload{
		User:  st.userText,
		AI:    st.aiText,
		Diary: ph.Name,
		Mods:  modsKey(ph.Mods),
		Chain: ph.Meta.Chain,
		KSeq:  ph.Meta.KSeq,
		Group: ph.Mods.Group,
		Auto:  ph.Meta.Auto,
		Date:  date,
	}
	raw, _ := json.Marshal(payload)
	return hashKey(string(raw))
}

func modsKey(m placeholder.Modifiers) string {
	var parts []string
	if m.Time {
		parts = append(parts, "time")
	}
	if m.Group {
		parts = append(parts, "group")
	}
	if m.Rerank {
		parts = append(parts, "rerank")
	}
	if m.AIMemo {
		parts = append(parts, "aimemo")
	}
	if m.TagWeight != nil {
		parts = append(parts, fmt.Sprintf("tagmemo%.3f", *m.TagWeight))
	}
	parts = append(parts, fmt.Sprintf("k%.3f", m.KMultiplier))
	return strings.Join(parts, ":")
}

// processDiaryPlaceholder handles the three diary placeholder kinds: gate,
// retrieve (or include whole diary), format, and append the aggregated
// AIMemo block when licensed.
func (p *Planner) processDiaryPlaceholder(ctx context.Context, ph placeholder.Placeholder, st *turnState) (result string) {
	ctx = logging.WithDiary(ctx, ph.Name)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "placeholder panic", zap.Any("panic", r))
			result = fmt.Sprintf(failureTemplate, "internal error")
		}
	}()

	var cacheKey string
	if p.cfg.QueryCacheEnabled {
		cacheKey = p.queryCacheKey(ph, st)
		if v, ok := p.queryCache.Get(cacheKey); ok {
			p.metrics.RecordCacheLookup(ctx, "query", true)
			p.metrics.RecordPlaceholder(ctx, "diary", "cache_hit")
			return v.(string)
		}
		p.metrics.RecordCacheLookup(ctx, "query", false)
	}

	passed, err := p.gate(ctx, ph.Name, st.queryVec)
	if err != nil {
		p.metrics.RecordPlaceholder(ctx, "diary", "error")
		return fmt.Sprintf(failureTemplate, err)
	}
	if !passed {
		p.metrics.RecordPlaceholder(ctx, "diary", "gated")
		if p.cfg.QueryCacheEnabled {
			p.queryCache.Set(cacheKey, "")
		}
		return ""
	}

	var expansion string
	if ph.Kind == placeholder.KindFullText {
		expansion = p.wholeDiary(ph.Name)
	} else {
		expansion, err = p.retrieve(ctx, ph, st)
		if err != nil {
			p.metrics.RecordPlaceholder(ctx, "diary", "error")
			return fmt.Sprintf(failureTemplate, err)
		}
	}

	if ph.Mods.AIMemo && st.licensed {
		expansion += p.aiMemoBlock(ctx, st)
	}

	if p.cfg.QueryCacheEnabled {
		p.queryCache.Set(cacheKey, expansion)
	}
	p.metrics.RecordPlaceholder(ctx, "diary", "ok")
	return expansion
}

// gate computes sim = max(cos(query, name_vec), cos(query, topic_vec)) and
// compares it against the diary's threshold.
func (p *Planner) gate(ctx context.Context, diary string, queryVec []float32) (bool, error) {
	nameVec, err := p.diaries.GetNameVector(ctx, diary)
	if err != nil {
		return false, err
	}
	sim := vecmath.Cosine(queryVec, nameVec)
	if topic := p.diaries.TopicVector(diary); topic != nil {
		if topicSim := vecmath.Cosine(queryVec, topic); topicSim > sim {
			sim = topicSim
		}
	}
	return sim >= p.diaries.SimilarityThreshold(diary), nil
}

// wholeDiary renders the gated whole-diary inclusion: every chunk in
// timestamp order under the standard framing.
func (p *Planner) wholeDiary(diary string) string {
	chunks := p.diaries.AllChunks(diary)
	results := make([]diarystore.SearchResult, len(chunks))
	for i, c := range chunks {
		results[i] = diarystore.SearchResult{Text: c.Text, Source: []string{"rag"}, Timestamp: c.Timestamp}
	}
	return formatStandard(diary, results)
}

// retrieve runs the k-snippet retrieval path: dynamic k, group-enhanced
// query vector, time-range union, rerank, tag boost, formatting, and one
// trace event.
func (p *Planner) retrieve(ctx context.Context, ph placeholder.Placeholder, st *turnState) (string, error) {
	k := dynamicK(st.userText, st.aiText, ph.Mods.KMultiplier)

	queryVec := st.queryVec
	var activations []semgroup.Activation
	if ph.Mods.Group && p.groups != nil {
		activations = p.groups.Detect(st.userText + " " + st.aiText)
		if enh := p.groups.EnhancementVector(activations); enh != nil {
			strength := 0.0
			for _, a := range activations {
				if a.Strength > strength {
					strength = a.Strength
				}
			}
			queryVec = vecmath.Normalize(vecmath.Blend(queryVec, enh, 1-p.cfg.GroupMergeWeight*strength))
		}
	}

	opts := diarystore.SearchOptions{
		Rerank:    ph.Mods.Rerank,
		QueryText: st.userText,
	}

	var ranges []timeparse.Range
	if ph.Mods.Time {
		ranges = timeparse.Parse(st.userText, st.now, p.cfg.TimeParse)
		for _, r := range ranges {
			start, end := r.UnixPair()
			opts.TimeRanges = append(opts.TimeRanges, diarystore.TimeRange{Start: start, End: end})
		}
	}

	if ph.Mods.TagWeight != nil {
		opts.TagWeight = ph.Mods.TagWeight
		opts.QueryTags = p.queryTags(ctx, st.queryVec)
	}

	results, err := p.diaries.Search(ctx, ph.Name, queryVec, k, opts)
	if err != nil {
		return "", err
	}

	var formatted string
	switch {
	case len(ranges) > 0:
		formatted = formatTimeAware(ph.Name, ranges, results)
	case len(activations) > 0:
		formatted = formatGroupEnhanced(ph.Name, activations, results)
	default:
		formatted = formatStandard(ph.Name, results)
	}

	p.emitRetrievalTrace(ph, st, k, ranges, results)
	return formatted, nil
}

// queryTags derives the query's tag set from the global tag index, used
// for the TagMemo Jaccard boost.
func (p *Planner) queryTags(ctx context.Context, queryVec []float32) []string {
	if p.tags == nil {
		return nil
	}
	similar, err := p.tags.SimilarTags(ctx, queryVec, p.cfg.QueryTagK)
	if err != nil {
		p.logger.Warn(ctx, "similar-tags lookup failed, tag boost skipped", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(similar))
	for _, s := range similar {
		out = append(out, s.Tag)
	}
	return out
}

// aiMemoBlock renders the aggregated AIMemo result once per invocation;
// later placeholders receive the cross-reference suffix.
func (p *Planner) aiMemoBlock(ctx context.Context, st *turnState) string {
	if st.aiMemoEmitted {
		return aiMemoCrossRef
	}
	st.aiMemoEmitted = true
	if p.tags == nil {
		return ""
	}
	similar, err := p.tags.SimilarTags(ctx, st.queryVec, p.cfg.QueryTagK)
	if err != nil || len(similar) == 0 {
		return ""
	}
	seeds := make([]string, 0, len(similar))
	for _, s := range similar {
		seeds = append(seeds, s.Tag)
	}
	expanded := p.tags.ExpandTags(seeds, p.cfg.AIMemoExpandMax)
	return formatAIMemo(similar, expanded)
}

// processMetaThink dispatches [[VCP元思考...]].
func (p *Planner) processMetaThink(ctx context.Context, ph placeholder.Placeholder, st *turnState) string {
	if p.meta == nil {
		return fmt.Sprintf(chainMissingTemplate, ph.Meta.Chain)
	}

	var report *metathink.Report
	var err error
	if ph.Meta.Auto {
		report, err = p.meta.RunAuto(ctx, ph.Meta.KSeq, st.queryVec, ph.Meta.AutoThreshold)
	} else {
		report, err = p.meta.Run(ctx, ph.Meta.Chain, ph.Meta.KSeq, st.queryVec)
	}
	if err != nil {
		p.metrics.RecordPlaceholder(ctx, "metathink", "error")
		if errors.Is(err, metathink.ErrChainNotFound) {
			return fmt.Sprintf(chainMissingTemplate, ph.Meta.Chain)
		}
		return fmt.Sprintf(chainFailedTemplate, err)
	}
	p.metrics.RecordPlaceholder(ctx, "metathink", "ok")
	return formatMetaReport(report)
}

// emitRetrievalTrace emits the structured per-retrieval event.
func (p *Planner) emitRetrievalTrace(ph placeholder.Placeholder, st *turnState, k int, ranges []timeparse.Range, results []diarystore.SearchResult) {
	if p.emit == nil {
		return
	}
	ev := newTraceEvent(ph.Name, st.userText, k)
	if ph.Mods.Time {
		ev.Flags = append(ev.Flags, "time")
	}
	if ph.Mods.Group {
		ev.Flags = append(ev.Flags, "group")
	}
	if ph.Mods.Rerank {
		ev.Flags = append(ev.Flags, "rerank")
	}
	if ph.Mods.AIMemo {
		ev.Flags = append(ev.Flags, "aimemo")
	}
	if ph.Mods.TagWeight != nil {
		ev.Flags = append(ev.Flags, "tagmemo")
	}
	for _, r := range ranges {
		ev.TimeRanges = append(ev.TimeRanges, [2]string{
			r.Start.Format(dateLayout), r.End.Format(dateLayout),
		})
	}
	ev.Results, ev.TagStats = sanitizeResults(results, ph.Mods.TagWeight != nil)
	p.emit(ev)
}
