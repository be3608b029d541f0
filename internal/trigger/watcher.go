// Package trigger turns storage notifications into intake events.
package trigger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/intake"
	"github.com/joseph-ayodele/faxintake/internal/storage/local"
)

// Emit receives one event per settled file.
type Emit func(ctx context.Context, ev intake.Event)

type WatchConfig struct {
	Debounce    time.Duration // coalesce create/write bursts per file
	InitialScan bool          // emit files already present under the root
}

// Watcher delivers create events for files under a local store's root, recursively.
type Watcher struct {
	store  *local.Store
	cfg    WatchConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewWatcher(store *local.Store, cfg WatchConfig, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context, emit Emit) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("watcher.create.failed", zap.Error(err))
		return err
	}
	defer func() { _ = fw.Close() }()

	pending := map[string]time.Time{}
	if err := w.addTree(fw, w.store.Root, pending, w.cfg.InitialScan); err != nil {
		w.logger.Error("watcher.add_root.failed", zap.String("root", w.store.Root), zap.Error(err))
		return err
	}
	w.logger.Info("watcher.started", zap.String("root", w.store.Root), zap.Duration("debounce", w.cfg.Debounce))

	tick := time.NewTicker(w.tickInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher.stopped")
			return nil
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if e.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
					// files may land before the watch is registered
					if err := w.addTree(fw, e.Name, pending, true); err != nil {
						w.logger.Warn("watcher.add_dir.failed", zap.String("path", e.Name), zap.Error(err))
					}
					continue
				}
			}
			if w.candidate(e.Name) {
				pending[e.Name] = w.now()
			}
			if w.cfg.Debounce <= 0 {
				w.flush(ctx, pending, emit, true)
			}
		case <-tick.C:
			w.flush(ctx, pending, emit, false)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher.error", zap.Error(err))
		}
	}
}

func (w *Watcher) tickInterval() time.Duration {
	if w.cfg.Debounce <= 0 {
		return time.Second
	}
	if d := w.cfg.Debounce / 2; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, pending map[string]time.Time, scan bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			if p != root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return fw.Add(p)
		}
		if scan && w.candidate(p) {
			pending[p] = w.now()
		}
		return nil
	})
}

func (w *Watcher) candidate(abs string) bool {
	base := filepath.Base(abs)
	return !hidden(base) && !strings.HasSuffix(base, local.PartialSuffix)
}

func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time, emit Emit, force bool) {
	now := w.now()
	for abs, seen := range pending {
		if !force && now.Sub(seen) < w.cfg.Debounce {
			continue
		}
		delete(pending, abs)

		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			// moved or removed while settling
			continue
		}
		rel, err := w.store.ObjectPath(abs)
		if err != nil {
			w.logger.Warn("watcher.path.outside_root", zap.String("path", abs), zap.Error(err))
			continue
		}
		emit(ctx, intake.Event{
			Path:       rel,
			Open:       intake.SourceOpener(w.store, rel),
			ReceivedAt: now,
		})
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
