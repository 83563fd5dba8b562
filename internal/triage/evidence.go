package triage

import (
	"fmt"
	"strings"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

const evidenceSimilarLimit = 3

// Evidence is the input to explanation generation.
type Evidence struct {
	Current domain.HistoricalFailure
	Similar []domain.HistoricalFailure
	History []domain.HistoricalFailure
	// Context holds log lines around the error lines, when the raw log is known.
	Context []domain.LogEntry
}

// Summary renders the evidence as plain text for a prompt or a report.
func (e Evidence) Summary() string {
	var b strings.Builder

	errType := e.Current.ErrorType
	if errType == "" {
		errType = "None"
	}
	b.WriteString("CURRENT FAILURE:\n")
	fmt.Fprintf(&b, "Test: %s\n", e.Current.TestName)
	fmt.Fprintf(&b, "Error: %s\n", e.Current.ErrorMessage)
	fmt.Fprintf(&b, "Type: %s\n", errType)
	fmt.Fprintf(&b, "Log snippet: %s\n", e.Current.LogSnippet)
	fmt.Fprintf(&b, "Retries: %d", e.Current.RetryCount)

	if len(e.Context) > 0 {
		b.WriteString("\n\nLOG CONTEXT:")
		for _, entry := range e.Context {
			fmt.Fprintf(&b, "\n[%s] %s", entry.Level, entry.Message)
		}
	}

	if len(e.Similar) > 0 {
		fmt.Fprintf(&b, "\n\nSIMILAR PAST FAILURES (%d):", len(e.Similar))
		for i, s := range e.Similar {
			if i == evidenceSimilarLimit {
				break
			}
			fmt.Fprintf(&b, "\n%d. %s", i+1, s.TestName)
			fmt.Fprintf(&b, "\n   Error: %s", s.ErrorMessage)
			if s.Resolution != nil {
				fmt.Fprintf(&b, "\n   Root cause: %s", s.Resolution.RootCause)
				fmt.Fprintf(&b, "\n   Fix applied: %s", s.Resolution.FixApplied)
			}
		}
	}

	if len(e.History) > 0 {
		resolved := 0
		for _, h := range e.History {
			if h.Resolved() {
				resolved++
			}
		}
		fmt.Fprintf(&b, "\n\nTEST HISTORY (%d past failures)", len(e.History))
		fmt.Fprintf(&b, "\nResolved: %d/%d", resolved, len(e.History))
	}

	return b.String()
}

const (
	baseConfidence           = 0.5
	resolvedSimilarBonus     = 0.3
	unknownPenalty           = 0.2
	flakyPenalty             = 0.1
	flakyPenaltyThreshold    = 0.7
	resolvedSimilarThreshold = 0.7
	minConfidence            = 0.1
	maxConfidence            = 1.0
)

// Confidence scores how much the analysis can be trusted, in [0.1, 1.0].
func Confidence(ft domain.FailureType, similar []domain.HistoricalFailure, flakyScore float64) float64 {
	c := baseConfidence
	for _, s := range similar {
		if s.Resolution != nil && s.Resolution.Confidence > resolvedSimilarThreshold {
			c += resolvedSimilarBonus
			break
		}
	}
	if ft == domain.FailureUnknown {
		c -= unknownPenalty
	}
	if flakyScore > flakyPenaltyThreshold {
		c -= flakyPenalty
	}
	return max(minConfidence, min(maxConfidence, c))
}
