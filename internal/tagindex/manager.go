package tagindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/vecindex"
)

// Embedder is the capability Manager needs from an embedding client.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager owns the global tag table, the file registry, the cooccurrence
// graph, and the shared tag ANN index. All mutations of tag bookkeeping,
// whether triggered by a file-watch event or an explicit API call, are
// serialized under updateMu; it is released on every exit path, including
// errors.
type Manager struct {
	cfg      Config
	embedder Embedder
	logger   *zap.Logger

	updateMu sync.Mutex
	tags     map[string]*GlobalTag
	// diaryTagCount[tag][diary] counts how many tracked files in diary
	// currently contribute tag, keeping GlobalTag.Diaries exact rather
	// than approximated: a diary is removed from a tag's Diaries set only
	// when no remaining file in that diary contributes it.
	diaryTagCount map[string]map[string]int
	registry      *FileRegistry
	cooc          *CooccurrenceDB
	index         *vecindex.Index
	labels        *vecindex.LabelMap
	shardCount    int
	dirtyShards   map[int]bool

	rebuildMu        sync.Mutex
	rebuildRunning   bool
	pendingVectorize map[string]struct{}
	nextVectorize    map[string]struct{}

	saveMu           sync.Mutex
	saveInFlight     bool
	savePendingAgain bool

	initOnce sync.Once
	initDone chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager constructs a Manager. Persisted state is not loaded until
// Start is called.
func NewManager(cfg Config, embedder Embedder, logger *zap.Logger) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tagindex: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:              cfg,
		embedder:         embedder,
		logger:           logger,
		tags:             make(map[string]*GlobalTag),
		diaryTagCount:    make(map[string]map[string]int),
		registry:         NewFileRegistry(),
		cooc:             NewCooccurrenceDB(),
		index:            vecindex.New(cfg.Dimension, cfg.InitialCapacity),
		labels:           vecindex.NewLabelMap(),
		dirtyShards:      make(map[int]bool),
		pendingVectorize: make(map[string]struct{}),
		nextVectorize:    make(map[string]struct{}),
		initDone:         make(chan struct{}),
		stopCh:           make(chan struct{}),
	}, nil
}

// Start spawns a background goroutine that loads persisted state (or
// rebuilds from scratch) and returns immediately; it loads nothing itself
// and does not block the caller. File-watch events
// fired during background init are safe to call immediately: they queue
// behind updateMu and are drained once init releases it.
func (m *Manager) Start(ctx context.Context) error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.backgroundInit(ctx)
	}()
	return nil
}

// WaitInit blocks until the background initialization has completed, for
// callers (tests, the CLI's "wait for ready" path) that need a
// deterministic ready point.
func (m *Manager) WaitInit(ctx context.Context) error {
	select {
	case <-m.initDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals background loops to exit and waits for them.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// backgroundInit implements three init strategies: (a) load from
// shards+label map+registry if consistent, (b)
// incrementally vectorize tags whose metadata exists but vectors are
// missing, (c) rebuild from scratch if no prior state. The lock is held
// for the whole attempt and released via defer on every exit path,
// including a panic recovery, matching "released on every exit path
// including errors".
func (m *Manager) backgroundInit(ctx context.Context) {
	defer close(m.initDone)

	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("tagindex: panic during background init, starting from empty state", zap.Any("panic", r))
		}
	}()

	registry, err := LoadFileRegistry(registryPath(m.cfg.PersistDir))
	if err != nil {
		m.logger.Warn("tagindex: failed to load file registry, starting empty", zap.Error(err))
		registry = NewFileRegistry()
	}
	m.registry = registry

	cooc, err := LoadCooccurrenceDB(cooccurrenceDBPath(m.cfg.PersistDir))
	if err != nil {
		m.logger.Warn("tagindex: failed to load cooccurrence DB, starting empty", zap.Error(err))
		cooc = NewCooccurrenceDB()
	}
	m.cooc = cooc
	if cooc.NeedsResync(registry.Len()) {
		m.logger.Warn("tagindex: cooccurrence DB inconsistent with file registry, scheduling resync")
		m.resyncCooccurrenceLocked()
	}

	meta, err := loadMeta(m.cfg.PersistDir)
	if err != nil {
		m.logger.Warn("tagindex: failed to load tag metadata, rebuilding from registry", zap.Error(err))
		m.rebuildTagsFromRegistryLocked()
		m.rebuildIndexFromScratchLocked(ctx)
		return
	}
	if len(meta) == 0 {
		m.rebuildTagsFromRegistryLocked()
		m.rebuildIndexFromScratchLocked(ctx)
		return
	}

	labelMap, err := vecindex.LoadLabelMap(labelMapPath(m.cfg.PersistDir))
	if err != nil {
		m.logger.Warn("tagindex: failed to load label map, rebuilding index from scratch", zap.Error(err))
		labelMap = vecindex.NewLabelMap()
	}
	m.labels = labelMap

	m.tags = make(map[string]*GlobalTag, len(meta))
	for text, entry := range meta {
		m.tags[text] = &GlobalTag{
			Text:      text,
			Frequency: entry.Frequency,
			Diaries:   toDiarySet(entry.Diaries),
		}
	}
	m.rebuildDiaryTagCountLocked()

	m.shardCount = shardCountFor(countVectorized(meta), m.cfg.SaveShardSize)
	vectors := loadShards(m.cfg.PersistDir, m.shardCount, func(shard int, err error) {
		m.logger.Warn("tagindex: shard degraded to partial index", zap.Int("shard", shard), zap.Error(err))
	})
	for text, vec := range vectors {
		if tag, ok := m.tags[text]; ok {
			tag.Vector = vec
		}
	}

	idx := vecindex.New(m.cfg.Dimension, m.cfg.InitialCapacity)
	missing := make(map[string]struct{})
	for text, tag := range m.tags {
		if !tag.HasVector() {
			missing[text] = struct{}{}
			continue
		}
		label := m.labels.Allocate(text)
		idx.GrowIfNeeded(idx.Len()+1, m.cfg.GrowthLoadFactor, m.cfg.GrowthFactor)
		_ = idx.Add(tag.Vector, label)
	}
	m.index = idx

	if len(missing) > 0 {
		m.rebuildMu.Lock()
		for t := range missing {
			m.pendingVectorize[t] = struct{}{}
		}
		m.rebuildMu.Unlock()
	}
}

// rebuildTagsFromRegistryLocked reconstructs the GlobalTag table purely
// from FileRegistry rows, used when no GlobalTags_meta.json exists. Caller
// holds updateMu.
func (m *Manager) rebuildTagsFromRegistryLocked() {
	m.tags = make(map[string]*GlobalTag)
	m.diaryTagCount = make(map[string]map[string]int)
	for _, path := range m.registry.Paths() {
		entry, ok := m.registry.Get(path)
		if !ok {
			continue
		}
		diary := diaryOfPath(path)
		for tag := range entry.Tags {
			m.touchTagLocked(tag, diary, +1)
		}
	}
}

// rebuildDiaryTagCountLocked recomputes diaryTagCount from the registry,
// used after loading persisted tags whose diaryTagCount isn't itself
// persisted. Caller holds updateMu.
func (m *Manager) rebuildDiaryTagCountLocked() {
	m.diaryTagCount = make(map[string]map[string]int)
	for _, path := range m.registry.Paths() {
		entry, ok := m.registry.Get(path)
		if !ok {
			continue
		}
		diary := diaryOfPath(path)
		for tag := range entry.Tags {
			if m.diaryTagCount[tag] == nil {
				m.diaryTagCount[tag] = make(map[string]int)
			}
			m.diaryTagCount[tag][diary]++
		}
	}
}

// rebuildIndexFromScratchLocked vectorizes every tag missing a vector and
// rebuilds the ANN index fresh, preserving existing label mappings. Used
// only when no prior index exists or explicit reconciliation is requested.
// Caller holds updateMu.
func (m *Manager) rebuildIndexFromScratchLocked(ctx context.Context) {
	texts := make([]string, 0, len(m.tags))
	for t := range m.tags {
		texts = append(texts, t)
	}
	sort.Strings(texts)

	if len(texts) > 0 {
		vectors, err := m.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			m.logger.Warn("tagindex: failed to vectorize tags during rebuild", zap.Error(err))
		} else {
			for i, t := range texts {
				if i < len(vectors) {
					m.tags[t].Vector = vectors[i]
				}
			}
		}
	}

	idx := vecindex.New(m.cfg.Dimension, m.cfg.InitialCapacity)
	for _, t := range texts {
		tag := m.tags[t]
		if !tag.HasVector() {
			continue
		}
		label := m.labels.Allocate(t)
		idx.GrowIfNeeded(idx.Len()+1, m.cfg.GrowthLoadFactor, m.cfg.GrowthFactor)
		_ = idx.Add(tag.Vector, label)
	}
	m.index = idx
	for i := range m.dirtyShards {
		delete(m.dirtyShards, i)
	}
}

// resyncCooccurrenceLocked rebuilds the cooccurrence DB from the file
// registry, invoked when NeedsResync reports drift at startup. Caller
// holds updateMu.
func (m *Manager) resyncCooccurrenceLocked() {
	source := make(map[string]struct {
		Diary string
		Tags  []string
	})
	for _, path := range m.registry.Paths() {
		entry, ok := m.registry.Get(path)
		if !ok {
			continue
		}
		source[path] = struct {
			Diary string
			Tags  []string
		}{Diary: diaryOfPath(path), Tags: entry.TagSlice()}
	}
	m.cooc.Rebuild(source)
}

func toDiarySet(diaries []string) map[string]struct{} {
	out := make(map[string]struct{}, len(diaries))
	for _, d := range diaries {
		out[d] = struct{}{}
	}
	return out
}

func countVectorized(meta map[string]metaTagEntry) int {
	n := 0
	for _, e := range meta {
		if e.HasVector {
			n++
		}
	}
	return n
}
