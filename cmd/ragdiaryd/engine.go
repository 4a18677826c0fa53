package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ragdiary/diaryengine/internal/config"
	"github.com/ragdiary/diaryengine/internal/diarystore"
	"github.com/ragdiary/diaryengine/internal/embedding"
	"github.com/ragdiary/diaryengine/internal/logging"
	"github.com/ragdiary/diaryengine/internal/metathink"
	"github.com/ragdiary/diaryengine/internal/queryplanner"
	"github.com/ragdiary/diaryengine/internal/reranker"
	"github.com/ragdiary/diaryengine/internal/semgroup"
	"github.com/ragdiary/diaryengine/internal/tagindex"
	"github.com/ragdiary/diaryengine/internal/timeparse"
)

// engine is the wired-up component graph shared by the subcommands.
type engine struct {
	cfg      *config.Config
	logger   *logging.Logger
	zlog     *zap.Logger
	embedder *embedding.Client
	store    *diarystore.Store
	tags     *tagindex.Manager
	groups   *semgroup.Manager
	meta     *metathink.Engine
	planner  *queryplanner.Planner
}

// tagPersistDirName is where the global tag index's shards, registry, and
// cooccurrence DB live, beside the diaries they index.
const tagPersistDirName = ".tagvectors"

// buildEngine loads configuration and wires every component.
func buildEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zlog := logger.Underlying()

	embedder, err := embedding.New(embedding.Config{
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		APIKey:         cfg.Embedding.APIKey.Value(),
		MaxAttempts:    cfg.Embedding.MaxAttempts,
		RequestTimeout: cfg.Embedding.RequestTimeout.Duration(),
	}, zlog)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding client: %w", err)
	}

	var rr reranker.Reranker
	if cfg.Rerank.URL != "" {
		rr = reranker.NewHTTPReranker(reranker.HTTPConfig{
			URL:               cfg.Rerank.URL,
			APIKey:            cfg.Rerank.APIKey.Value(),
			Model:             cfg.Rerank.Model,
			MaxTokensPerBatch: cfg.Rerank.MaxTokensPerBatch,
			RequestTimeout:    cfg.Rerank.RequestTimeout.Duration(),
		}, zlog)
	} else {
		rr = reranker.NewSimpleReranker()
	}

	store, err := diarystore.New(diarystore.Config{
		Root:             cfg.Diary.Root,
		Dimension:        cfg.VectorIndex.Dimension,
		RerankMultiplier: cfg.Rerank.Multiplier,
	}, embedder, rr, zlog)
	if err != nil {
		return nil, fmt.Errorf("initializing diary store: %w", err)
	}

	tags, err := tagindex.NewManager(tagindex.Config{
		Root:                 cfg.Diary.Root,
		PersistDir:           filepath.Join(cfg.Diary.Root, tagPersistDirName),
		Dimension:            cfg.VectorIndex.Dimension,
		IgnoreFolders:        append([]string{tagPersistDirName}, cfg.Diary.IgnoreFolders...),
		IgnorePrefix:         cfg.Diary.IgnorePrefix,
		IgnoreSuffix:         cfg.Diary.IgnoreSuffix,
		TagBlacklist:         cfg.Diary.TagBlacklist,
		TagBlacklistSuper:    cfg.Diary.TagBlacklistSuper,
		TagMinLength:         cfg.Diary.TagMinLength,
		TagMaxLength:         cfg.Diary.TagMaxLength,
		VectorizeBatchSize:   cfg.TagIndex.VectorDBBatchSize,
		VectorizeConcurrency: cfg.Embedding.VectorizeConcurrency,
		SaveShardSize:        cfg.TagIndex.SaveShardSize,
		IndexRebuildDelay:    cfg.TagIndex.IndexRebuildDelay.Duration(),
		MatrixExportDelay:    cfg.TagIndex.MatrixExportDelay.Duration(),
		WatchDebounce:        cfg.TagIndex.WatchDebounce.Duration(),
		ExpandMinWeight:      cfg.TagIndex.ExpandMinWeight,
		ExpandMaxCount:       cfg.TagIndex.ExpandMaxCount,
		ExpandPreferMultiSrc: cfg.TagIndex.ExpandPreferMultiSrc,
	}, embedder, zlog)
	if err != nil {
		return nil, fmt.Errorf("initializing tag index: %w", err)
	}

	groupConfigs := make([]semgroup.GroupConfig, len(cfg.SemGroups))
	for i, g := range cfg.SemGroups {
		groupConfigs[i] = semgroup.GroupConfig{Name: g.Name, Keywords: g.Keywords, VectorText: g.VectorText}
	}
	groups := semgroup.New(groupConfigs)

	chains := make(map[string]metathink.ChainConfig, len(cfg.MetaThink.Chains))
	for _, c := range cfg.MetaThink.Chains {
		theme, embedErr := embedder.EmbedQuery(ctx, c.ThemeText)
		if embedErr != nil {
			zlog.Warn("theme embedding failed, chain excluded from auto routing",
				zap.String("chain", c.Name), zap.Error(embedErr))
			theme = nil
		}
		chains[c.Name] = metathink.ChainConfig{Name: c.Name, Clusters: c.Clusters, ThemeVector: theme}
	}
	meta := metathink.NewEngine(metathink.Config{
		Chains:        chains,
		AutoThreshold: cfg.MetaThink.AutoThreshold,
		DefaultChain:  cfg.MetaThink.DefaultChain,
	}, clusterSearcher{store: store}, zlog)

	emit := func(ev queryplanner.TraceEvent) {
		zlog.Debug("retrieval trace",
			zap.String("id", ev.ID),
			zap.String("dbName", ev.DBName),
			zap.Int("k", ev.K),
			zap.Strings("flags", ev.Flags),
			zap.Int("results", len(ev.Results)),
			zap.Bool("cacheHit", ev.CacheHit))
	}

	planner, err := queryplanner.New(queryplanner.Config{
		QueryCacheEnabled:     cfg.Cache.QueryEnabled,
		QueryCacheMaxSize:     cfg.Cache.QueryMaxSize,
		QueryCacheTTL:         cfg.Cache.QueryTTL.Duration(),
		EmbeddingCacheMaxSize: cfg.Cache.EmbeddingMaxSize,
		EmbeddingCacheTTL:     cfg.Cache.EmbeddingTTL.Duration(),
		TimeParse:             timeparse.Config{DefaultTimezone: cfg.TimeParse.DefaultTimezone},
	}, embedder, store, tags, meta, groups, emit, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing planner: %w", err)
	}

	return &engine{
		cfg:      cfg,
		logger:   logger,
		zlog:     zlog,
		embedder: embedder,
		store:    store,
		tags:     tags,
		groups:   groups,
		meta:     meta,
		planner:  planner,
	}, nil
}

// clusterSearcher adapts the diary store to the meta-thinking engine's
// per-cluster search capability.
type clusterSearcher struct {
	store *diarystore.Store
}

func (c clusterSearcher) SearchCluster(ctx context.Context, cluster string, query []float32, k int) ([]metathink.ClusterResult, error) {
	hits, err := c.store.Search(ctx, cluster, query, k, diarystore.SearchOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]metathink.ClusterResult, 0, len(hits))
	for _, h := range hits {
		result := metathink.ClusterResult{Text: h.Text, Score: float64(h.Score)}
		if vec, ok := c.store.GetVectorByText(cluster, h.Text); ok {
			result.Vector = vec
		}
		out = append(out, result)
	}
	return out, nil
}
