// Package daemon implements watch mode: a file watcher that triggers rebuilds
// and a gRPC health endpoint reporting the last build outcome.
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dosanma1/pipeforge/internal/artifact"
)

// FileEventType represents the type of file system event
type FileEventType int

const (
	FileEventCreated FileEventType = iota + 1
	FileEventModified
	FileEventDeleted
	FileEventRenamed
)

func (t FileEventType) String() string {
	switch t {
	case FileEventCreated:
		return "created"
	case FileEventModified:
		return "modified"
	case FileEventDeleted:
		return "deleted"
	case FileEventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileEvent represents a file system event
type FileEvent struct {
	Path      string
	Type      FileEventType
	Timestamp time.Time
}

// WatcherConfig contains configuration for the file watcher
type WatcherConfig struct {
	// Paths are files or directories to watch. Directories are watched
	// recursively.
	Paths []string

	// IgnorePatterns are doublestar globs matched against slash-separated
	// paths relative to the watched directory.
	IgnorePatterns []string

	// Debounce is how long the watcher waits for events to settle before
	// emitting a batch.
	Debounce time.Duration
}

// DefaultWatcherConfig returns default watcher configuration
func DefaultWatcherConfig(paths ...string) *WatcherConfig {
	ignore := append([]string(nil), artifact.DefaultExcludes...)
	ignore = append(ignore,
		"build/**",
		"dist/**",
		".idea/**",
		".vscode/**",
		"**/*.swp",
		"**/*~",
	)
	return &WatcherConfig{
		Paths:          paths,
		IgnorePatterns: ignore,
		Debounce:       300 * time.Millisecond,
	}
}

// Watcher watches source paths and emits debounced batches of changes.
type Watcher struct {
	config  *WatcherConfig
	watcher *fsnotify.Watcher
	batches chan []FileEvent
	errors  chan error
	done    chan struct{}
	mu      sync.RWMutex
	running bool

	// dirs are watched recursively; files are matched exactly.
	dirs  []string
	files map[string]bool

	pending   map[string]FileEvent
	timer     *time.Timer
	pendingMu sync.Mutex
}

// NewWatcher creates a new file watcher
func NewWatcher(config *WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:  config,
		watcher: fsWatcher,
		batches: make(chan []FileEvent, 16),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		files:   make(map[string]bool),
		pending: make(map[string]FileEvent),
	}, nil
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, p := range w.config.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}

		if info.IsDir() {
			w.dirs = append(w.dirs, abs)
			if err := w.addRecursive(abs, abs); err != nil {
				return err
			}
			continue
		}

		w.files[abs] = true
		if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
		}
	}

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.done)

	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()

	return w.watcher.Close()
}

// Changes returns the channel of debounced change batches
func (w *Watcher) Changes() <-chan []FileEvent {
	return w.batches
}

// Errors returns the channel of errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns whether the watcher is running
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addRecursive adds dir and every non-ignored subdirectory to the watcher.
func (w *Watcher) addRecursive(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(root, path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// processEvents processes fsnotify events and emits debounced batches
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handleEvent handles a single fsnotify event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	root, ok := w.owner(event.Name)
	if !ok {
		return
	}
	if root != "" && w.ignored(root, event.Name) {
		return
	}

	var eventType FileEventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = FileEventCreated
		// New directories under a watched tree are watched too.
		if root != "" {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				_ = w.addRecursive(root, event.Name)
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = FileEventModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = FileEventDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = FileEventRenamed
	default:
		return
	}

	w.debounce(FileEvent{
		Path:      event.Name,
		Type:      eventType,
		Timestamp: time.Now(),
	})
}

// owner returns the watched directory containing path, or "" with ok set
// when path is a watched file.
func (w *Watcher) owner(path string) (string, bool) {
	if w.files[path] {
		return "", true
	}
	for _, dir := range w.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return dir, true
		}
	}
	return "", false
}

func (w *Watcher) ignored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return artifact.Excluded(filepath.ToSlash(rel), w.config.IgnorePatterns)
}

// debounce collects events until none arrived for the debounce interval,
// then emits them as one batch sorted by path.
func (w *Watcher) debounce(event FileEvent) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[event.Path] = event
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	batch := make([]FileEvent, 0, len(w.pending))
	for _, e := range w.pending {
		batch = append(batch, e)
	}
	w.pending = make(map[string]FileEvent)
	w.pendingMu.Unlock()

	if len(batch) == 0 {
		return
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case w.batches <- batch:
	case <-w.done:
	default:
		// A rebuild is already queued; it will see these changes.
	}
}
