package tagindex

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StartWatch begins watching the diary root for file events and spawns the
// maintenance loops (batch vectorization on the rebuild delay, debounced
// persistence, matrix export). Events for the same directory are coalesced
// for WatchDebounce before the diff pipeline runs, and late updates for the
// same file collapse into one diff. Stop (or ctx cancellation) ends the
// loops.
func (m *Manager) StartWatch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := m.addWatchesRecursive(watcher, m.cfg.Root); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()
		m.watchLoop(ctx, watcher)
	}()
	go func() {
		defer m.wg.Done()
		m.maintenanceLoop(ctx)
	}()
	return nil
}

// addWatchesRecursive registers the root and every non-ignored diary
// subdirectory with the watcher.
func (m *Manager) addWatchesRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ShouldIgnoreFolder(d.Name(), &m.cfg) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// pendingEvent is one coalesced file event awaiting its directory's
// debounce deadline.
type pendingEvent struct {
	removed bool
}

// watchLoop drains fsnotify events through the per-directory debounce
// window and dispatches the diff pipeline strictly serialized: one flush at
// a time, FIFO per path.
func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	pending := make(map[string]pendingEvent)    // path -> coalesced event
	deadlines := make(map[string]time.Time)     // dir -> flush deadline
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	resetTimer := func() {
		earliest := time.Time{}
		for _, dl := range deadlines {
			if earliest.IsZero() || dl.Before(earliest) {
				earliest = dl
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if earliest.IsZero() {
			timer.Reset(time.Hour)
			return
		}
		d := time.Until(earliest)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	flushDue := func(now time.Time) {
		for dir, dl := range deadlines {
			if dl.After(now) {
				continue
			}
			delete(deadlines, dir)
			for path, ev := range pending {
				if filepath.Dir(path) != dir {
					continue
				}
				delete(pending, path)
				m.applyEvent(path, ev)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("tagindex: watch error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !ShouldIgnoreFolder(filepath.Base(event.Name), &m.cfg) {
						_ = m.addWatchesRecursive(watcher, event.Name)
					}
					continue
				}
			}
			if !isDiaryFile(filepath.Base(event.Name)) {
				continue
			}
			removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
			pending[event.Name] = pendingEvent{removed: removed}
			deadlines[filepath.Dir(event.Name)] = time.Now().Add(m.cfg.WatchDebounce)
			resetTimer()
		case now := <-timer.C:
			flushDue(now)
			resetTimer()
		}
	}
}

// applyEvent routes one debounced event into the diff pipeline. A path
// that fails to read is treated as removed, which covers the
// rename-away-then-event-arrives race.
func (m *Manager) applyEvent(path string, ev pendingEvent) {
	if ev.removed {
		m.FileRemoved(path)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m.FileRemoved(path)
			return
		}
		m.logger.Warn("tagindex: unreadable file on change event", zap.String("path", path), zap.Error(err))
		return
	}
	m.FileChanged(path, content)
}

// maintenanceLoop runs the amortized background work: every
// IndexRebuildDelay, if tags are pending, it vectorizes them and, when that
// succeeds, calls Persist. A tick with no pending tags writes nothing, so a
// failed persist or a change that queues no tag for embedding (such as a
// tag removal) is flushed only on a later tick that has pending tags.
// Every MatrixExportDelay it exports the cooccurrence matrix. A batch left non-empty by the double-buffer promotion triggers
// the next batch after a short grace delay rather than waiting a full
// merge window.
func (m *Manager) maintenanceLoop(ctx context.Context) {
	const graceDelay = 2 * time.Second

	rebuild := time.NewTimer(m.cfg.IndexRebuildDelay)
	export := time.NewTicker(m.cfg.MatrixExportDelay)
	defer rebuild.Stop()
	defer export.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-rebuild.C:
			next := m.cfg.IndexRebuildDelay
			if m.PendingVectorizeCount() > 0 {
				remaining, err := m.RunPendingVectorization(ctx)
				if err == nil {
					if perr := m.Persist(ctx); perr != nil {
						m.logger.Warn("tagindex: debounced persist failed", zap.Error(perr))
					}
				}
				if remaining > 0 {
					next = graceDelay
				}
			}
			rebuild.Reset(next)
		case <-export.C:
			if err := m.ExportMatrix(); err != nil {
				m.logger.Warn("tagindex: matrix export failed", zap.Error(err))
			}
		}
	}
}
