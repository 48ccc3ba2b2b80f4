// Package watch monitors an inbox directory and hands newly arrived RAW
// files to the batch queue. Cameras and card readers copy files in slowly,
// so a file is only enqueued after its writes have settled.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gwlsn/rawray/internal/logger"
	"github.com/gwlsn/rawray/internal/raw"
)

// DefaultSettle is how long a file must stay quiet before it is enqueued.
const DefaultSettle = 2 * time.Second

// EnqueueFunc receives the path of a settled RAW file.
type EnqueueFunc func(path string)

// Watcher watches one directory (non-recursive) for incoming RAW files.
type Watcher struct {
	dir     string
	settle  time.Duration
	enqueue EnqueueFunc

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher for dir. settle <= 0 uses DefaultSettle.
func New(dir string, settle time.Duration, enqueue EnqueueFunc) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		dir:     dir,
		settle:  settle,
		enqueue: enqueue,
		pending: make(map[string]*time.Timer),
	}
}

// Start begins watching. Returns an error if the directory cannot be watched.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)

	go w.loop()

	logger.Info("Watching inbox", "dir", w.dir, "settle", w.settle)
	return nil
}

// Stop stops watching and discards files still settling.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	w.cancel()
	w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !raw.IsRawFile(event.Name) {
				continue
			}
			w.touch(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Inbox watch error", "error", err)
		}
	}
}

// touch (re)arms the settle timer for a file. Every write pushes the
// deadline out; only a quiet file fires.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}

	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if w.ctx.Err() != nil {
			return
		}
		logger.Info("Inbox file settled", "file", path)
		w.enqueue(path)
	})
}
