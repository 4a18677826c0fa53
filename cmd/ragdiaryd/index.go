package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/diarystore"
	"github.com/ragdiary/diaryengine/internal/tagindex"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the diary root and build the vector and tag indexes",
	Long: `Scan every diary file under diary.root, chunk and embed each file into
its diary's vector store, feed the trailing Tag: lines through the global
tag index, and persist everything.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.logger.Sync() //nolint:errcheck

	if err := eng.tags.Start(ctx); err != nil {
		return fmt.Errorf("starting tag index: %w", err)
	}
	defer eng.tags.Stop()
	if err := eng.tags.WaitInit(ctx); err != nil {
		return err
	}

	scanned, err := eng.tags.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("scanning diary root: %w", err)
	}
	eng.zlog.Info("tag scan complete", zap.Int("files", scanned))

	for {
		remaining, err := eng.tags.RunPendingVectorization(ctx)
		if err != nil {
			return fmt.Errorf("vectorizing tags: %w", err)
		}
		if remaining == 0 {
			break
		}
	}

	if err := indexDiaryChunks(ctx, eng); err != nil {
		return err
	}

	if err := eng.tags.Persist(ctx); err != nil {
		return fmt.Errorf("persisting tag index: %w", err)
	}
	if err := eng.tags.ExportMatrix(); err != nil {
		return fmt.Errorf("exporting cooccurrence matrix: %w", err)
	}

	stats := eng.tags.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d tags (%d vectorized), %d cooccurrence pairs\n",
		scanned, stats.TotalTags, stats.VectorizedTags, stats.Cooccurrence.Pairs)
	return nil
}

// indexDiaryChunks walks every diary and embeds each file as one chunk,
// carrying its date header and tag line into the chunk metadata.
func indexDiaryChunks(ctx context.Context, eng *engine) error {
	root := eng.cfg.Diary.Root
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading diary root: %w", err)
	}

	tagCfg := tagindex.Config{
		TagBlacklist:      eng.cfg.Diary.TagBlacklist,
		TagBlacklistSuper: eng.cfg.Diary.TagBlacklistSuper,
		TagMinLength:      eng.cfg.Diary.TagMinLength,
		TagMaxLength:      eng.cfg.Diary.TagMaxLength,
	}
	tagCfg.ApplyDefaults()

	loc, err := time.LoadLocation(eng.cfg.TimeParse.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		diary := entry.Name()
		files, err := os.ReadDir(filepath.Join(root, diary))
		if err != nil {
			eng.zlog.Warn("unreadable diary directory skipped", zap.String("diary", diary), zap.Error(err))
			continue
		}
		indexed := 0
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if ext != ".txt" && ext != ".md" {
				continue
			}
			path := filepath.Join(root, diary, f.Name())
			content, err := os.ReadFile(path)
			if err != nil {
				eng.zlog.Warn("unreadable diary file skipped", zap.String("path", path), zap.Error(err))
				continue
			}
			text := strings.TrimSpace(string(content))
			if text == "" {
				continue
			}

			vec, err := eng.embedder.EmbedQuery(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding %s: %w", path, err)
			}

			chunk := diarystore.Chunk{
				ID:        f.Name(),
				Text:      text,
				Embedding: vec,
				Tags:      tagindex.ExtractTags(text, &tagCfg),
			}
			if ts, ok := tagindex.ParseDateHeader(text, loc); ok {
				chunk.Timestamp = &ts
			}
			if err := eng.store.UpsertChunk(diary, chunk); err != nil {
				return fmt.Errorf("storing chunk for %s: %w", path, err)
			}
			indexed++
		}
		if indexed == 0 {
			continue
		}
		if err := eng.store.Save(diary); err != nil {
			return fmt.Errorf("saving diary %s: %w", diary, err)
		}
		eng.zlog.Info("diary indexed", zap.String("diary", diary), zap.Int("chunks", indexed))
	}
	return nil
}
