// Package inbox imports files dropped into a watched directory. Each import
// kind has its own subdirectory (calendar/, agenda/, lineup/) and every
// processed file gets a "<file>.result.json" written beside it.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/security"
)

// ResultSuffix is appended to a processed file's name for its result
const ResultSuffix = ".result.json"

// ImportFunc imports one file and returns the JSON-encodable outcome
type ImportFunc func(ctx context.Context, kind model.Kind, f importer.File) (any, error)

// Config holds watcher settings
type Config struct {
	Dir      string
	Debounce time.Duration
}

// Watcher watches the inbox directory
type Watcher struct {
	config Config
	fn     ImportFunc
	logger *zap.Logger
	kinds  []model.Kind
	timers map[string]*time.Timer
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// New creates the inbox directories and a watcher for them
func New(cfg Config, fn ImportFunc, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	kinds := []model.Kind{model.KindCalendar, model.KindAgenda, model.KindLineup}
	for _, k := range kinds {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, string(k)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	return &Watcher{
		config: cfg,
		fn:     fn,
		logger: logger.Named("inbox"),
		kinds:  kinds,
		timers: make(map[string]*time.Timer),
	}, nil
}

// ResultPath returns where the result for path is written
func ResultPath(path string) string {
	return path + ResultSuffix
}

// Run processes files already waiting in the inbox, then watches for new
// ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	for _, k := range w.kinds {
		dir := filepath.Join(w.config.Dir, string(k))
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if n := w.Scan(ctx); n > 0 {
		w.logger.Info("Processed pending inbox files", zap.Int("count", n))
	}
	w.logger.Info("Watching inbox", zap.String("dir", w.config.Dir))

	defer w.wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// Scan processes every file that has no result yet and returns how many
// were handled.
func (w *Watcher) Scan(ctx context.Context) int {
	n := 0
	for _, k := range w.kinds {
		entries, err := os.ReadDir(filepath.Join(w.config.Dir, string(k)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			path := filepath.Join(w.config.Dir, string(k), e.Name())
			if e.IsDir() || !candidate(path) {
				continue
			}
			if _, err := os.Stat(ResultPath(path)); err == nil {
				continue
			}
			if err := w.Process(ctx, path); err != nil {
				w.logger.Warn("Inbox file failed", zap.String("path", path), zap.Error(err))
			}
			n++
		}
	}
	return n
}

// Process imports one file and writes its result
func (w *Watcher) Process(ctx context.Context, path string) error {
	kind, ok := w.kindOf(path)
	if !ok {
		return fmt.Errorf("%s is not inside a kind directory", path)
	}
	if _, err := security.ValidatePathInDir(path, w.config.Dir); err != nil {
		return fmt.Errorf("refusing %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	out, err := w.fn(ctx, kind, importer.File{Name: filepath.Base(path), Data: data})
	if err != nil {
		out = map[string]string{"error": err.Error()}
	}

	body, merr := json.MarshalIndent(out, "", "  ")
	if merr != nil {
		return fmt.Errorf("failed to encode result: %w", merr)
	}
	if werr := os.WriteFile(ResultPath(path), body, 0644); werr != nil {
		return fmt.Errorf("failed to write result: %w", werr)
	}

	w.logger.Info("Inbox file imported",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return err
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if !candidate(path) {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Editors and copies emit several writes; import once they settle.
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.config.Debounce)
		return
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.config.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.Process(ctx, path); err != nil {
			w.logger.Warn("Inbox file failed", zap.String("path", path), zap.Error(err))
		}
	})
	w.timers[path] = t
}

// wait stops pending timers and waits for running imports
func (w *Watcher) wait() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) kindOf(path string) (model.Kind, bool) {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", false
	}
	return model.ParseKind(parts[0])
}

// candidate filters out results, hidden files and partial downloads
func candidate(path string) bool {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "."),
		strings.HasSuffix(name, ResultSuffix),
		strings.HasSuffix(name, ".part"),
		strings.HasSuffix(name, ".crdownload"),
		strings.HasSuffix(name, "~"):
		return false
	}
	return true
}
