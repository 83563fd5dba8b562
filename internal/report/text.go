package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

const (
	boxRule          = "══════════════════════════════════════════════════════════════"
	similarShownMax  = 3
	similarErrorTrim = 80
)

func boxHeader(b *strings.Builder, title string) {
	b.WriteString("╔" + boxRule + "\n")
	b.WriteString("║ " + title + "\n")
	b.WriteString("╠" + boxRule + "\n")
}

// Percent formats a [0,1] value as a percentage with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Text renders a triage result as a boxed plain-text report. With verbose the
// reasoning trace is appended.
func Text(r *domain.TriageResult, verbose bool) string {
	var b strings.Builder
	b.WriteString("\n")
	boxHeader(&b, "TEST FAILURE TRIAGE REPORT")
	fmt.Fprintf(&b, "║ Test: %s\n", r.TestName)
	fmt.Fprintf(&b, "║ Classification: %s\n", r.Classification)
	fmt.Fprintf(&b, "║ Flaky Probability: %s\n", Percent(r.FlakyProbability))
	fmt.Fprintf(&b, "║ Confidence: %s\n", Percent(r.ConfidenceScore))
	b.WriteString("╠" + boxRule + "\n")
	b.WriteString("║ ROOT CAUSE\n")
	b.WriteString("╠" + boxRule + "\n")
	b.WriteString(r.RootCauseExplanation + "\n\n")

	boxHeader(&b, "SUGGESTED ACTIONS")
	for i, action := range r.SuggestedActions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, action)
	}

	if len(r.SimilarFailures) > 0 {
		b.WriteString("\n")
		boxHeader(&b, fmt.Sprintf("SIMILAR PAST FAILURES (%d)", len(r.SimilarFailures)))
		for i, f := range r.SimilarFailures {
			if i == similarShownMax {
				break
			}
			fmt.Fprintf(&b, "  • %s\n", f.Summary())
		}
	}

	if verbose && len(r.ReasoningSteps) > 0 {
		b.WriteString("\n")
		boxHeader(&b, "REASONING STEPS")
		for i, step := range r.ReasoningSteps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		fmt.Fprintf(&b, "\nExplanation source: %s\n", r.ExplanationSource)
	}
	return b.String()
}

// JSON renders a triage result as indented JSON.
func JSON(r *domain.TriageResult) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding triage result: %w", err)
	}
	return data, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
