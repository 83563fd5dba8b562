package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/triage"
)

var errEmptyExplanation = errors.New("llm returned an empty explanation")

func buildPrompt(evidence string) string {
	return fmt.Sprintf(`You are a test automation expert analyzing a test failure.

%s

Based on this evidence, provide a clear, concise root cause explanation (2-3 sentences).
Focus on:
1. What specifically went wrong
2. Why it likely happened
3. Reference similar past failures if relevant

Root cause explanation:`, evidence)
}

// explainWithLLM asks the completer for a root-cause explanation. Any error,
// including an empty answer, tells the caller to use the rule-based text.
func (a *Agent) explainWithLLM(ctx context.Context, ev triage.Evidence) (string, error) {
	if a.llm == nil {
		return "", errNoLLM
	}
	text, err := a.llm.Complete(ctx, buildPrompt(ev.Summary()))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyExplanation
	}
	return text, nil
}

// RuleBasedExplanation produces a deterministic explanation from the failure
// category, mentioning the fix of the closest resolved similar failure.
func RuleBasedExplanation(f domain.HistoricalFailure, similar []domain.HistoricalFailure, ft domain.FailureType) string {
	var text string
	switch ft {
	case domain.FailureTimeout:
		text = fmt.Sprintf("The test '%s' timed out waiting for an element. "+
			"This typically occurs when the page takes longer than expected to render, "+
			"or when elements are hidden/delayed by animations.", f.TestName)
	case domain.FailureSelector:
		text = "The test cannot find the expected element using the specified selector. " +
			"This usually indicates that the UI structure has changed, requiring " +
			"an update to the test's element locators."
	case domain.FailureNetwork:
		text = "Network connectivity issues prevented the test from completing. " +
			"This may be due to temporary network instability in the CI environment " +
			"or issues with external dependencies."
	case domain.FailureDataSetup:
		text = "Test data setup failed, likely due to database constraint violations " +
			"or leftover data from previous test runs. Proper test isolation and " +
			"cleanup is needed."
	case domain.FailureEnvironment:
		text = "The test failed due to environment configuration issues. " +
			"This could involve missing dependencies, incorrect settings, or " +
			"service availability problems."
	case domain.FailureGenuineRegression, domain.FailureUnknown:
		fallthrough
	default:
		text = fmt.Sprintf("The test '%s' failed with error: %s", f.TestName, f.ErrorMessage)
	}

	if len(similar) > 0 && similar[0].Resolution != nil {
		text += " A similar failure was previously resolved by: " + similar[0].Resolution.FixApplied
	}
	return text
}
