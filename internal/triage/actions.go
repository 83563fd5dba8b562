package triage

import "github.com/sriramcse31/ai-test-triage-agent/internal/domain"

const (
	MaxActions = 5

	similarFixConfidence     = 0.7
	similarFixLimit          = 2
	timeoutFlakyThreshold    = 0.6
	networkFlakyThreshold    = 0.7
	quarantineFlakyThreshold = 0.75
)

const QuarantineAction = "HIGH FLAKINESS - Consider quarantining test"

var cannedActions = map[domain.FailureType][]string{
	domain.FailureTimeout: {
		"Increase wait timeout (consider animation/loading time)",
		"Add explicit wait for element state (visible/stable)",
	},
	domain.FailureSelector: {
		"Update selector - UI may have changed",
		"Check recent deployments for UI changes",
		"Use more stable selectors (data-testid, aria-label)",
	},
	domain.FailureNetwork: {
		"Add retry logic with exponential backoff",
		"Check CI environment network stability",
	},
	domain.FailureDataSetup: {
		"Review test data setup - ensure cleanup between runs",
		"Use unique identifiers to prevent conflicts",
		"Add database reset in test teardown",
	},
	domain.FailureEnvironment: {
		"Check environment configuration",
		"Verify dependencies and services are running",
	},
}

var fallbackActions = []string{
	"Re-run test to confirm failure is reproducible",
	"Review recent code changes",
	"Check CI logs for environment issues",
}

// SuggestActions returns between one and MaxActions distinct next steps.
func SuggestActions(ft domain.FailureType, flakyScore float64, similar []domain.HistoricalFailure) []string {
	var actions []string

	// Only the two best-ranked matches can contribute a fix.
	for _, s := range similar[:min(len(similar), similarFixLimit)] {
		if s.Resolution == nil || s.Resolution.Confidence <= similarFixConfidence {
			continue
		}
		actions = append(actions, "Apply similar fix: "+s.Resolution.FixApplied)
	}

	actions = append(actions, cannedActions[ft]...)
	switch ft {
	case domain.FailureTimeout:
		if flakyScore > timeoutFlakyThreshold {
			actions = append(actions, "Test is flaky - add retry logic or investigate root cause")
		}
	case domain.FailureNetwork:
		if flakyScore > networkFlakyThreshold {
			actions = append(actions, "Highly flaky - investigate environment or mock network calls")
		}
	}

	if flakyScore > quarantineFlakyThreshold {
		actions = append(actions, QuarantineAction)
	}

	actions = dedupe(actions)
	if len(actions) == 0 {
		actions = append(actions, fallbackActions...)
	}
	if len(actions) > MaxActions {
		actions = actions[:MaxActions]
	}
	return actions
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
