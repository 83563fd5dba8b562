package triage

import (
	"strings"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

type classificationRule struct {
	failureType domain.FailureType
	keywords    []string
}

// classificationRules is a first-match cascade. Earlier rules win when
// keywords overlap, so "timeout waiting for selector" is a timeout.
var classificationRules = []classificationRule{
	{domain.FailureTimeout, []string{"timeout", "timed out", "exceeded"}},
	{domain.FailureSelector, []string{"selector", "not found", "element", "locator"}},
	{domain.FailureNetwork, []string{"network", "connection", "etimedout", "econnrefused"}},
	{domain.FailureDataSetup, []string{"database", "duplicate key", "constraint", "data"}},
	{domain.FailureEnvironment, []string{"environment", "config", "permission"}},
}

// Classify maps a failure to a category using its error message and log
// snippet.
func Classify(f domain.HistoricalFailure) domain.FailureType {
	return ClassifyText(f.ErrorMessage + " " + f.LogSnippet)
}

func ClassifyText(text string) domain.FailureType {
	text = strings.ToLower(text)
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.failureType
			}
		}
	}
	return domain.FailureUnknown
}
