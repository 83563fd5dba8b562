package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sriramcse31/ai-test-triage-agent/internal/batch"
)

// Notifier receives a summary after every scan that analyzed something.
type Notifier interface {
	NotifyText(ctx context.Context, text string) error
}

// Triager analyzes each version of a log file in a directory once. A file is
// triaged again when its modification time changes. Files that fail to
// analyze are retried on the next scan.
type Triager struct {
	dir      string
	analyzer batch.Analyzer
	opts     batch.Options
	notifier Notifier

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewTriager builds a triager. notifier may be nil.
func NewTriager(dir string, a batch.Analyzer, opts batch.Options, notifier Notifier) *Triager {
	return &Triager{dir: dir, analyzer: a, opts: opts, notifier: notifier, seen: make(map[string]time.Time)}
}

// Scan triages every log file in the directory that is new or changed since
// it was last analyzed.
func (t *Triager) Scan(ctx context.Context) (batch.Result, error) {
	paths, err := batch.Discover(t.dir, 0)
	if err != nil {
		return batch.Result{}, err
	}
	return t.TriagePaths(ctx, paths), nil
}

// TriagePaths triages the given files, skipping those already analyzed in
// their current version.
func (t *Triager) TriagePaths(ctx context.Context, paths []string) batch.Result {
	fresh := t.claim(paths)
	if len(fresh) == 0 {
		return batch.Result{}
	}

	result := batch.Run(ctx, t.analyzer, fresh, t.opts)
	for _, item := range result.Items {
		if item.Err != nil {
			t.release(item.Path)
		}
	}

	summary := batch.FormatSummary(result)
	log.Printf("watch scan complete: %s", summary)
	if t.notifier != nil {
		if err := t.notifier.NotifyText(ctx, fmt.Sprintf("CI triage scan complete: %s", summary)); err != nil {
			log.Printf("watch notify error: %v", err)
		}
	}
	return result
}

func (t *Triager) claim(paths []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fresh []string
	for _, p := range paths {
		var mtime time.Time
		if info, err := os.Stat(p); err == nil {
			mtime = info.ModTime()
		}
		if prev, ok := t.seen[p]; ok && prev.Equal(mtime) {
			continue
		}
		t.seen[p] = mtime
		fresh = append(fresh, p)
	}
	return fresh
}

func (t *Triager) release(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, path)
}
