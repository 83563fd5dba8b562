package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/logparser"
)

const DefaultLimit = 10

var logSuffixes = []string{".log", ".log.zst"}

// Analyzer is the part of the agent batch mode needs.
type Analyzer interface {
	AnalyzeParsed(ctx context.Context, tf *domain.TestFailure) (*domain.TriageResult, error)
}

// Item is the outcome for one log file. Exactly one of Result and Err is set.
type Item struct {
	Path   string
	Result *domain.TriageResult
	Err    error
}

func (i Item) Name() string {
	return filepath.Base(i.Path)
}

// Result tracks the outcome of a batch run. Items keep the discovery order.
type Result struct {
	Discovered int
	Analyzed   int
	Failed     int
	Items      []Item
}

// Options control a batch run. Progress, when set, is called once per file
// after it finishes; calls are serialized.
type Options struct {
	Parallel int
	Progress func(done, total int, item Item)
}

// Discover lists the log files in dir (plain and zstd-compressed), sorted by
// name and truncated to limit. A limit <= 0 means no limit.
func Discover(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading log directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsLogFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// IsLogFile reports whether name looks like a CI log batch mode picks up.
func IsLogFile(name string) bool {
	for _, suffix := range logSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Run analyzes every path. A file that cannot be read or analyzed is recorded
// in its Item and does not stop the others. Only ctx cancellation ends the
// run early; files not yet started are then reported with ctx.Err().
func Run(ctx context.Context, a Analyzer, paths []string, opts Options) Result {
	result := Result{Discovered: len(paths), Items: make([]Item, len(paths))}

	var mu sync.Mutex
	done := 0
	finish := func(i int, item Item) {
		mu.Lock()
		defer mu.Unlock()
		result.Items[i] = item
		done++
		if item.Err != nil {
			result.Failed++
			log.Printf("batch error file=%s: %v", item.Name(), item.Err)
		} else {
			result.Analyzed++
		}
		if opts.Progress != nil {
			opts.Progress(done, len(paths), item)
		}
	}

	if opts.Parallel <= 1 {
		for i, p := range paths {
			finish(i, analyzeFile(ctx, a, p))
		}
		return result
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			finish(i, analyzeFile(gctx, a, p))
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func analyzeFile(ctx context.Context, a Analyzer, path string) Item {
	item := Item{Path: path}
	if err := ctx.Err(); err != nil {
		item.Err = err
		return item
	}
	tf, err := logparser.ParseFile(path)
	if err != nil {
		item.Err = err
		return item
	}
	res, err := a.AnalyzeParsed(ctx, tf)
	if err != nil {
		item.Err = fmt.Errorf("analyzing %s: %w", filepath.Base(path), err)
		return item
	}
	item.Result = res
	return item
}

// Results returns the successful results in discovery order.
func (r Result) Results() []*domain.TriageResult {
	var out []*domain.TriageResult
	for _, item := range r.Items {
		if item.Result != nil {
			out = append(out, item.Result)
		}
	}
	return out
}

type ClassCount struct {
	Classification domain.FailureType
	Count          int
}

// Breakdown counts results per classification, in order of first appearance.
func (r Result) Breakdown() []ClassCount {
	var out []ClassCount
	index := map[domain.FailureType]int{}
	for _, res := range r.Results() {
		i, ok := index[res.Classification]
		if !ok {
			i = len(out)
			index[res.Classification] = i
			out = append(out, ClassCount{Classification: res.Classification})
		}
		out[i].Count++
	}
	return out
}

// FormatSummary returns a human-readable summary of a batch run.
func FormatSummary(r Result) string {
	if r.Discovered == 0 {
		return "No log files found."
	}
	if r.Analyzed == 0 {
		var errs []string
		for _, item := range r.Items {
			if item.Err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", item.Name(), item.Err))
			}
		}
		return fmt.Sprintf("Error analyzing log files:\n%s", strings.Join(errs, "\n"))
	}

	msg := fmt.Sprintf("Analyzed %d/%d log files", r.Analyzed, r.Discovered)
	if r.Failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", r.Failed)
	}
	msg += "\nClassification Breakdown:"
	for _, c := range r.Breakdown() {
		msg += fmt.Sprintf("\n  - %s: %d", c.Classification, c.Count)
	}

	var warnings []string
	for _, item := range r.Items {
		if item.Err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", item.Name(), item.Err))
		}
	}
	if len(warnings) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(warnings, "\n"))
	}
	return msg
}
