package tagindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// diaryFileExtensions are the file types treated as diary entries.
var diaryFileExtensions = map[string]bool{".txt": true, ".md": true}

// isDiaryFile reports whether name looks like a diary entry file.
func isDiaryFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return diaryFileExtensions[strings.ToLower(filepath.Ext(name))]
}

// ScanAll walks the diary root and runs the diff pipeline over every diary
// file found, honoring the folder filters. Used for the initial full scan
// and for explicit reconciliation. Returns the number of files processed.
func (m *Manager) ScanAll(ctx context.Context) (int, error) {
	processed := 0
	err := filepath.WalkDir(m.cfg.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			m.logger.Warn("tagindex: scan error, skipping", zap.String("path", path), zap.Error(err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != m.cfg.Root && ShouldIgnoreFolder(d.Name(), &m.cfg) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isDiaryFile(d.Name()) {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			m.logger.Warn("tagindex: unreadable diary file skipped", zap.String("path", path), zap.Error(readErr))
			return nil
		}
		m.FileChanged(path, content)
		processed++
		return nil
	})
	if err != nil {
		return processed, err
	}

	// Files tracked in the registry but gone from disk are reconciled as
	// deletions, so a scan after offline edits converges to the same state
	// a live watch would have produced.
	for _, path := range m.registry.Paths() {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			m.FileRemoved(path)
		}
	}
	return processed, nil
}
