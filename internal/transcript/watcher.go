package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vidscribe/internal/logging"
)

// DefaultSettle is how long a file must stay quiet before it is re-checked.
const DefaultSettle = 750 * time.Millisecond

// Change reports a transcript that became complete in a watched folder.
type Change struct {
	Path       string     `json:"path"`
	Stem       string     `json:"stem"`
	Transcript Transcript `json:"-"`
}

// Watcher reports complete transcripts as they appear in a folder.
type Watcher struct {
	folder string
	settle time.Duration
	store  *Store
	logger *slog.Logger
}

// NewWatcher constructs a watcher for folder.
func NewWatcher(folder string, store *Store, logger *slog.Logger) *Watcher {
	if store == nil {
		store = NewStore(logger)
	}
	return &Watcher{
		folder: folder,
		settle: DefaultSettle,
		store:  store,
		logger: logging.NewComponentLogger(logger, "transcript-watcher"),
	}
}

// SetSettle overrides the quiet period before a changed file is parsed.
func (w *Watcher) SetSettle(d time.Duration) {
	if d > 0 {
		w.settle = d
	}
}

// Run watches the folder until ctx ends, sending each newly complete
// transcript on out. Files that are still partial when the settle timer fires
// are ignored until their next write.
func (w *Watcher) Run(ctx context.Context, out chan<- Change) error {
	if err := os.MkdirAll(w.folder, 0o755); err != nil {
		return fmt.Errorf("ensure watch folder: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.folder); err != nil {
		return fmt.Errorf("watch %s: %w", w.folder, err)
	}
	w.logger.Debug("watching output folder", logging.String("folder", w.folder))

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
		ready  = make(chan string, 16)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.settle)
			return
		}
		timers[path] = time.AfterFunc(w.settle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, _, ok := SplitFileName(event.Name); !ok {
				continue
			}
			schedule(event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watch error", "transcript_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new transcripts may be reported late"),
			)
		case path := <-ready:
			t, err := w.store.Load(path)
			if err != nil {
				w.logger.Debug("transcript not complete yet", logging.String("path", path), logging.Error(err))
				continue
			}
			stem, _, _ := SplitFileName(path)
			select {
			case out <- Change{Path: filepath.Clean(path), Stem: stem, Transcript: t}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
