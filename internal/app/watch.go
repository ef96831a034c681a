package app

import (
	"os"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// FileWatcher polls a set of files, typically the session file, and calls
// a callback when one of them changes on disk.
type FileWatcher struct {
	mu            sync.Mutex
	files         map[string]fileState
	checkInterval time.Duration
	stopCh        chan struct{}
	onChange      func(path string)
}

// NewFileWatcher creates a watcher of paths. Missing files are watched for
// creation.
func NewFileWatcher(checkInterval time.Duration, paths ...string) *FileWatcher {
	w := &FileWatcher{
		files:         make(map[string]fileState, len(paths)),
		checkInterval: checkInterval,
		stopCh:        make(chan struct{}),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		w.files[p] = stat(p)
	}
	return w
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}
}

// OnChange sets the callback invoked with the changed path. It is called
// from a background goroutine.
func (w *FileWatcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Start begins watching in a background goroutine.
func (w *FileWatcher) Start() {
	w.stopCh = make(chan struct{})
	go w.watchLoop(w.stopCh)
}

// Stop stops the watcher goroutine.
func (w *FileWatcher) Stop() {
	close(w.stopCh)
}

func (w *FileWatcher) watchLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			callback := w.onChange
			w.mu.Unlock()
			for _, path := range w.Check() {
				if callback != nil {
					callback(path)
				}
			}
		}
	}
}

// Check returns the files that changed since the last check and records
// their new state.
func (w *FileWatcher) Check() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for path, old := range w.files {
		cur := stat(path)
		if cur != old {
			changed = append(changed, path)
			w.files[path] = cur
		}
	}
	return changed
}

// Acknowledge records the current state of path, so changes written by the
// session itself are not reported.
func (w *FileWatcher) Acknowledge(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		w.files[path] = stat(path)
	}
}
