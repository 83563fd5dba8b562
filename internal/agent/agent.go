package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/integrations/llm"
	"github.com/sriramcse31/ai-test-triage-agent/internal/triage"
)

const (
	DefaultTopK          = 5
	DefaultContextRadius = 3

	resultSimilarLimit = 3
	snippetErrorLines  = 5
)

var errNoLLM = errors.New("no llm configured")

// Memory is the read side of the failure memory used during analysis.
type Memory interface {
	SearchSimilar(ctx context.Context, query domain.HistoricalFailure, topK int) ([]domain.HistoricalFailure, error)
	GetByTestName(ctx context.Context, testName string) ([]domain.HistoricalFailure, error)
}

// Agent runs the triage pipeline for one failure at a time. It holds no
// mutable state and may be shared between goroutines.
type Agent struct {
	mem           Memory
	llm           llm.Completer
	topK          int
	contextRadius int
}

type Option func(*Agent)

// WithLLM enables LLM explanations. Without it the rule-based text is used.
func WithLLM(c llm.Completer) Option {
	return func(a *Agent) { a.llm = c }
}

func WithTopK(k int) Option {
	return func(a *Agent) {
		if k > 0 {
			a.topK = k
		}
	}
}

func WithContextRadius(r int) Option {
	return func(a *Agent) {
		if r >= 0 {
			a.contextRadius = r
		}
	}
}

func New(mem Memory, opts ...Option) *Agent {
	a := &Agent{mem: mem, topK: DefaultTopK, contextRadius: DefaultContextRadius}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze triages a failure. Memory and LLM errors never fail the analysis;
// they are recorded in the reasoning trace. An error is returned only when
// ctx is done before the result is assembled.
func (a *Agent) Analyze(ctx context.Context, f domain.HistoricalFailure) (*domain.TriageResult, error) {
	return a.analyze(ctx, f, nil)
}

// AnalyzeParsed triages a parsed log. The log lines around the errors are
// added to the evidence.
func (a *Agent) AnalyzeParsed(ctx context.Context, tf *domain.TestFailure) (*domain.TriageResult, error) {
	return a.analyze(ctx, FailureFromParsed(tf, time.Now()), tf.ContextWindow(a.contextRadius))
}

func (a *Agent) analyze(ctx context.Context, f domain.HistoricalFailure, logContext []domain.LogEntry) (*domain.TriageResult, error) {
	var trace []string
	step := func(format string, args ...any) {
		trace = append(trace, fmt.Sprintf(format, args...))
	}

	step("Searching for similar past failures in memory")
	similar, err := a.searchSimilar(ctx, f)
	if err != nil {
		log.Printf("triage similar search error test=%s: %v", f.TestName, err)
		step("Similar failure search unavailable, continuing without it: %v", err)
		similar = nil
	}

	step("Retrieving history for test: %s", f.TestName)
	history, err := a.history(ctx, f.TestName)
	if err != nil {
		log.Printf("triage history error test=%s: %v", f.TestName, err)
		step("Test history unavailable, continuing without it: %v", err)
		history = nil
	}

	step("Calculating flakiness probability")
	flaky := triage.FlakyScore(f, history)

	step("Classifying failure type")
	ft := triage.Classify(f)

	step("Gathering evidence from logs and error messages")
	ev := triage.Evidence{Current: f, Similar: similar, History: history, Context: logContext}

	step("Generating root cause explanation")
	source := domain.ExplanationLLM
	explanation, err := a.explainWithLLM(ctx, ev)
	if err != nil {
		if !errors.Is(err, errNoLLM) {
			log.Printf("triage llm fallback test=%s: %v", f.TestName, err)
			step("LLM explanation failed, using rule-based explanation: %v", err)
		}
		explanation, source = RuleBasedExplanation(f, similar, ft), domain.ExplanationRuleBased
	}

	step("Determining actionable next steps")
	actions := triage.SuggestActions(ft, flaky, similar)

	step("Calculating confidence score")
	confidence := triage.Confidence(ft, similar, flaky)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(similar) > resultSimilarLimit {
		similar = similar[:resultSimilarLimit]
	}
	log.Printf("triage analyze test=%s classification=%s flaky=%.2f confidence=%.2f similar=%d history=%d explanation=%s",
		f.TestName, ft, flaky, confidence, len(similar), len(history), source)

	return &domain.TriageResult{
		TestName:             f.TestName,
		Classification:       ft,
		FlakyProbability:     flaky,
		RootCauseExplanation: explanation,
		ExplanationSource:    source,
		SuggestedActions:     actions,
		ConfidenceScore:      confidence,
		SimilarFailures:      similar,
		ReasoningSteps:       trace,
	}, nil
}

func (a *Agent) searchSimilar(ctx context.Context, f domain.HistoricalFailure) ([]domain.HistoricalFailure, error) {
	if a.mem == nil {
		return nil, nil
	}
	return a.mem.SearchSimilar(ctx, f, a.topK)
}

func (a *Agent) history(ctx context.Context, testName string) ([]domain.HistoricalFailure, error) {
	if a.mem == nil {
		return nil, nil
	}
	return a.mem.GetByTestName(ctx, testName)
}

// MemoryRecord is the unresolved record stored after analyzing a parsed log,
// scored with the analysis's flaky probability.
func MemoryRecord(tf *domain.TestFailure, res *domain.TriageResult, at time.Time) domain.HistoricalFailure {
	f := FailureFromParsed(tf, at)
	f.FlakyScore = domain.ClampUnit(res.FlakyProbability)
	return f
}

// FailureFromParsed converts parser output into an unresolved failure record.
// The log snippet is the first few error lines.
func FailureFromParsed(tf *domain.TestFailure, at time.Time) domain.HistoricalFailure {
	lines := tf.ErrorLines
	if len(lines) > snippetErrorLines {
		lines = lines[:snippetErrorLines]
	}
	return domain.HistoricalFailure{
		TestName:        tf.TestName,
		ErrorMessage:    tf.FailureMessage,
		ErrorType:       tf.ErrorType,
		LogSnippet:      strings.Join(lines, "\n"),
		Timestamp:       at,
		DurationSeconds: tf.DurationSeconds,
		RetryCount:      tf.RetryCount,
		Artifacts:       tf.Artifacts,
	}
}
