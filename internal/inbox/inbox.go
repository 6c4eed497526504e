// Package inbox ingests files dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/ingest"
	"github.com/hyperjump/kbase/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester ingests one file from disk.
type Ingester interface {
	IngestFile(ctx context.Context, path string, userID *string) (*models.Document, error)
}

// Inbox watches a directory tree and ingests new or rewritten files whose
// extension is allowed. Bursts of events on one path are debounced into a
// single ingestion.
type Inbox struct {
	dir        string
	extensions []string
	ingester   Ingester
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Inbox) { b.logger = l }
}

// WithDebounce sets how long a path must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(b *Inbox) { b.debounce = d }
}

// New returns an inbox over dir. An empty extensions list allows every file.
func New(dir string, extensions []string, ingester Ingester, opts ...Option) *Inbox {
	b := &Inbox{
		dir:        filepath.Clean(dir),
		extensions: extensions,
		ingester:   ingester,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir returns the watched directory.
func (b *Inbox) Dir() string { return b.dir }

// Start creates the directory if needed and begins watching it. Watching
// stops when ctx is cancelled or Stop is called.
func (b *Inbox) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = filepath.WalkDir(b.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != b.dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return err
	}
	b.watcher = w
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run(b.ctx, w)
	b.logger.Info("watching inbox", zap.String("dir", b.dir), zap.Strings("extensions", b.extensions))
	return nil
}

func (b *Inbox) run(ctx context.Context, w *fsnotify.Watcher) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (b *Inbox) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			b.addDirectory(path)
			return
		}
		if info.Mode().IsRegular() && b.Accepts(path) {
			b.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		b.cancelPending(path)
	}
}

// addDirectory watches a directory created inside the inbox and schedules the files already in it.
func (b *Inbox) addDirectory(dir string) {
	if hidden(filepath.Base(dir)) {
		return
	}
	b.mu.Lock()
	w := b.watcher
	b.mu.Unlock()
	if w == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				b.logger.Debug("failed to watch directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if d.Type().IsRegular() && b.Accepts(path) {
			b.schedule(path)
		}
		return nil
	})
}

// Accepts reports whether path has an allowed extension and is not hidden.
func (b *Inbox) Accepts(path string) bool {
	if hidden(filepath.Base(path)) {
		return false
	}
	if len(b.extensions) == 0 {
		return true
	}
	return ingest.ExtensionAllowed(filepath.Ext(path), b.extensions)
}

func (b *Inbox) schedule(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher == nil {
		return
	}
	if t, ok := b.pending[path]; ok {
		t.Stop()
	}
	b.pending[path] = time.AfterFunc(b.debounce, func() {
		b.mu.Lock()
		delete(b.pending, path)
		ctx := b.ctx
		stopped := b.watcher == nil
		if !stopped {
			b.wg.Add(1)
		}
		b.mu.Unlock()
		if stopped {
			return
		}
		defer b.wg.Done()
		b.ingest(ctx, path)
	})
}

func (b *Inbox) cancelPending(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.pending[path]; ok {
		t.Stop()
		delete(b.pending, path)
	}
}

func (b *Inbox) ingest(ctx context.Context, path string) {
	doc, err := b.ingester.IngestFile(ctx, path, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		b.logger.Error("inbox ingestion failed", zap.String("path", path), zap.Error(err))
		return
	}
	b.logger.Info("ingested inbox file",
		zap.String("path", path),
		zap.String("document_id", doc.ID),
		zap.String("status", string(doc.Status)),
		zap.Int("chunks", doc.ChunksCount),
	)
}

// SyncExisting ingests every accepted file already in the inbox.
func (b *Inbox) SyncExisting(ctx context.Context) error {
	files, err := ingest.CollectFiles([]string{b.dir}, b.extensions)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.Accepts(f) {
			b.ingest(ctx, f)
		}
	}
	return nil
}

// Stop stops watching, drops scheduled ingestions and waits for running ones.
func (b *Inbox) Stop() {
	b.mu.Lock()
	if b.watcher == nil {
		b.mu.Unlock()
		return
	}
	for path, t := range b.pending {
		t.Stop()
		delete(b.pending, path)
	}
	_ = b.watcher.Close()
	b.watcher = nil
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
