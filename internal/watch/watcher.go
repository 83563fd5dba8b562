package watch

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sriramcse31/ai-test-triage-agent/internal/batch"
)

const DefaultDebounce = 2 * time.Second

// Watcher watches a log directory and reports new or rewritten log files once
// writes have settled for the debounce period.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onLogs   func(paths []string)
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(dir string, debounce time.Duration, onLogs func(paths []string)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		watcher:  fsWatcher,
		onLogs:   onLogs,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	log.Printf("watch started dir=%s debounce=%s", w.dir, w.debounce)
}

// Stop terminates the watcher. Pending files that have not settled are dropped.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !batch.IsLogFile(event.Name) || !event.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			pending[event.Name] = true

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch error dir=%s: %v", w.dir, err)

		case <-timerC:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			timerC = nil
			log.Printf("watch settled files=%d", len(paths))
			w.onLogs(paths)
		}
	}
}
