package triage

import "github.com/sriramcse31/ai-test-triage-agent/internal/domain"

const (
	retrySignalWeight        = 0.4
	historySignalWeight      = 0.3
	errorTypeSignalWeight    = 0.2
	mixedResolutionWeight    = 0.1
	historySignalMinFailures = 3
)

var flakyErrorTypes = map[string]bool{
	"NetworkError": true,
	"TimeoutError": true,
}

// FlakyScore estimates how likely the current failure is flaky from its
// retries, error type and the test's prior failures. The result is in [0,1].
func FlakyScore(current domain.HistoricalFailure, history []domain.HistoricalFailure) float64 {
	score := 0.0
	if current.RetryCount > 0 {
		score += retrySignalWeight
	}
	if len(history) >= historySignalMinFailures {
		score += historySignalWeight
	}
	if flakyErrorTypes[current.ErrorType] {
		score += errorTypeSignalWeight
	}

	resolved := 0
	for _, h := range history {
		if h.Resolved() {
			resolved++
		}
	}
	if resolved > 0 && resolved < len(history) {
		score += mixedResolutionWeight
	}

	return min(score, 1.0)
}
