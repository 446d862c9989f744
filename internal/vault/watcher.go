package vault

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aigent/internal/memtier"
)

// EditEvent reports a human edit to one of the vault's fixed summary files,
// detected by the watcher and routed by the scheduler's vault-watcher task
// into a `human-edit` memory entry.
type EditEvent struct {
	Filename string
	Content  string
	Tier     memtier.Tier
}

// debounceWindow batches rapid successive saves (editors that write in
// several small syscalls) into a single edit event.
const debounceWindow = 500 * time.Millisecond

// Watcher watches a vault directory for human edits to its fixed summary
// files and emits one EditEvent per settled change. Grounded on
// theRebelliousNerd-codenerd's MangleWatcher debounced fsnotify loop.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	root    string
	events  chan EditEvent
	pending map[string]time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher returns a Watcher rooted at the same directory as v.
func NewWatcher(v *Vault) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(v.root); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher: fw,
		root:    v.root,
		events:  make(chan EditEvent, 16),
		pending: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Events returns the channel EditEvents are delivered on.
func (w *Watcher) Events() <-chan EditEvent { return w.events }

// Start begins watching in a background goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("vault watcher error", "err", err)
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) flushSettled() {
	now := time.Now()
	w.mu.Lock()
	var settled []string
	for path, last := range w.pending {
		if now.Sub(last) >= debounceWindow {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.emit(path)
	}
}

func (w *Watcher) emit(path string) {
	filename := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	body := stripChecksumHeader(string(data))

	var tier memtier.Tier
	switch filename {
	case KVCore:
		tier = memtier.Core
	case KVUserProfile:
		tier = memtier.UserProfile
	case KVRecentActivity:
		tier = memtier.Reflective
	default:
		return
	}
	if edited, err := (&Vault{root: w.root}).HumanEdited(filename); err != nil || !edited {
		return
	}

	w.events <- EditEvent{Filename: filename, Content: body, Tier: tier}
}
