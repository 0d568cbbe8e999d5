package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"enacthq/enact/pkg/policy"
)

// WatcherConfig configures a policy file watcher.
type WatcherConfig struct {
	// Path is the policy file to watch.
	Path string

	// Debounce is the quiet period after a change before reloading.
	// Editors often emit several events per save. Default: 200ms.
	Debounce time.Duration
}

// Watcher reloads a policy file on change and swaps the result into a
// Reloadable holder. A failed reload keeps the previous policy active.
type Watcher struct {
	config WatcherConfig
	holder *policy.Reloadable
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher loads the initial policy from the file and returns a
// watcher bound to the given holder. The holder receives the initial
// policy immediately.
func NewWatcher(config WatcherConfig, holder *policy.Reloadable) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 200 * time.Millisecond
	}

	initial, err := Load(config.Path)
	if err != nil {
		return nil, err
	}
	holder.Swap(initial)

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files by
	// rename, which drops a direct file watch.
	if err := fs.Add(filepath.Dir(config.Path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", config.Path, err)
	}

	return &Watcher{
		config: config,
		holder: holder,
		fs:     fs,
		logger: slog.Default().With("component", "policy.watcher", "path", config.Path),
	}, nil
}

// Start begins watching in a background goroutine. It is an error to
// start a watcher twice.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run()
	w.logger.Info("policy watcher started")
	return nil
}

// Stop halts the watcher and waits for the background goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.fs.Close()
	w.logger.Info("policy watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// Debounce: (re)arm the timer on each event burst.
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.Debounce)
			}

		case <-timerCh:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.config.Path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	p, err := Load(w.config.Path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping previous policy", "error", err)
		return
	}
	w.holder.Swap(p)
	w.logger.Info("policy reloaded", "rules", p.Len())
}
