package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

// Markdown renders a triage result as a Markdown document suitable for
// attaching to a ticket or a merge request.
func Markdown(r *domain.TriageResult, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage: %s\n\n", r.TestName)
	fmt.Fprintf(&b, "_Generated %s_\n\n", generatedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("### Verdict\n\n")
	fmt.Fprintf(&b, "- **Classification:** %s\n", r.Classification)
	fmt.Fprintf(&b, "- **Flaky probability:** %s\n", Percent(r.FlakyProbability))
	fmt.Fprintf(&b, "- **Confidence:** %s\n", Percent(r.ConfidenceScore))
	fmt.Fprintf(&b, "- **Explanation source:** %s\n\n", r.ExplanationSource)

	b.WriteString("### Root cause\n\n")
	b.WriteString(r.RootCauseExplanation + "\n\n")

	b.WriteString("### Suggested actions\n\n")
	for i, action := range r.SuggestedActions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, action)
	}

	if len(r.SimilarFailures) > 0 {
		b.WriteString("\n### Similar past failures\n\n")
		for _, f := range r.SimilarFailures {
			fmt.Fprintf(&b, "- **%s**: %s\n", f.TestName, truncate(f.ErrorMessage, similarErrorTrim))
			if f.Resolution != nil {
				fmt.Fprintf(&b, "  - Fix: %s\n", f.Resolution.FixApplied)
			}
		}
	}

	if len(r.ReasoningSteps) > 0 {
		b.WriteString("\n### Reasoning\n\n")
		for i, step := range r.ReasoningSteps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	return b.String()
}

func WriteReportFile(content, outputDir, testName string, reportDate time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.md", sanitizeFilename(testName), reportDate.Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
