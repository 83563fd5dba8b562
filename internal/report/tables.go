package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sriramcse31/ai-test-triage-agent/internal/batch"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/eval"
	"github.com/sriramcse31/ai-test-triage-agent/internal/memory"
)

// Mode controls the table output format.
type Mode int

const (
	TableASCII    Mode = iota // terminal tables
	TableMarkdown             // GitHub-flavoured Markdown tables
)

const testNameWidth = 30

func newTable(m Mode) table.Writer {
	w := table.NewWriter()
	if m == TableASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w table.Writer, m Mode) string {
	if m == TableMarkdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

// BatchTable lists one row per analyzed file followed by the classification
// breakdown.
func BatchTable(r batch.Result, m Mode) string {
	w := newTable(m)
	w.AppendHeader(table.Row{"Log File", "Test", "Classification", "Flaky", "Confidence"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: testNameWidth},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for _, item := range r.Items {
		if item.Result == nil {
			w.AppendRow(table.Row{item.Name(), "-", "error", "-", "-"})
			continue
		}
		res := item.Result
		w.AppendRow(table.Row{
			item.Name(),
			truncate(res.TestName, testNameWidth),
			string(res.Classification),
			fmt.Sprintf("%.0f%%", res.FlakyProbability*100),
			fmt.Sprintf("%.0f%%", res.ConfidenceScore*100),
		})
	}

	var b strings.Builder
	b.WriteString(render(w, m))
	b.WriteString("\n\nClassification Breakdown:\n")
	for _, c := range r.Breakdown() {
		fmt.Fprintf(&b, "  • %s: %d\n", c.Classification, c.Count)
	}
	return b.String()
}

func FlakyTable(failures []domain.HistoricalFailure, m Mode) string {
	w := newTable(m)
	w.AppendHeader(table.Row{"Test Name", "Flaky Score", "Error Type"})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, f := range failures {
		errType := f.ErrorType
		if errType == "" {
			errType = "Unknown"
		}
		w.AppendRow(table.Row{f.TestName, Percent(f.FlakyScore), errType})
	}
	return render(w, m)
}

func StatsTable(s memory.Stats, m Mode) string {
	w := newTable(m)
	w.AppendHeader(table.Row{"Metric", "Value"})
	w.AppendRow(table.Row{"Total Failures", s.TotalCount})
	w.AppendRow(table.Row{"Resolved Failures", s.ResolvedCount})
	w.AppendRow(table.Row{"Database Path", s.Location})
	return render(w, m)
}

// EvalTables renders the summary, per-case and accuracy tables of an
// evaluation run, plus the errors of failed cases.
func EvalTables(r eval.Report, m Mode) string {
	total := r.Total()
	passed := r.Passed()
	failed := total - passed
	pct := func(n int) string {
		if total == 0 {
			return "0%"
		}
		return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
	}

	summary := newTable(m)
	summary.AppendHeader(table.Row{"Metric", "Value", "Percentage"})
	summary.AppendRow(table.Row{"Total Cases", total, "100%"})
	summary.AppendRow(table.Row{"Passed", passed, pct(passed)})
	summary.AppendRow(table.Row{"Failed", failed, pct(failed)})

	detail := newTable(m)
	detail.AppendHeader(table.Row{"Case ID", "Name", "Classification", "Flaky Score", "Keywords", "Actions", "Confidence", "Overall"})
	detail.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: testNameWidth}})
	for _, cr := range r.Results {
		overall := "PASS"
		if !cr.Passed {
			overall = "FAIL"
		}
		detail.AppendRow(table.Row{
			cr.ID, truncate(cr.Name, testNameWidth),
			mark(cr.ClassificationOK), mark(cr.FlakyOK), mark(cr.KeywordsOK),
			mark(cr.ActionsOK), mark(cr.ConfidenceOK), overall,
		})
	}

	accuracy := newTable(m)
	accuracy.AppendHeader(table.Row{"Check", "Correct", "Accuracy"})
	for _, a := range r.Accuracy() {
		accuracy.AppendRow(table.Row{a.Check, fmt.Sprintf("%d/%d", a.Correct, a.Total), fmt.Sprintf("%.1f%%", a.Percent())})
	}

	var b strings.Builder
	b.WriteString("Evaluation Summary\n")
	b.WriteString(render(summary, m))
	b.WriteString("\n\nDetailed Results\n")
	b.WriteString(render(detail, m))
	if failedCases := r.Failed(); len(failedCases) > 0 {
		b.WriteString("\n\nFailed Cases\n")
		for _, cr := range failedCases {
			fmt.Fprintf(&b, "%s: %s\n", cr.ID, cr.Name)
			for _, e := range cr.Errors {
				fmt.Fprintf(&b, "  • %s\n", e)
			}
		}
	}
	b.WriteString("\n\nAccuracy Breakdown\n")
	b.WriteString(render(accuracy, m))
	b.WriteString("\n")
	if failed == 0 {
		b.WriteString("\nAll cases passed.\n")
	} else {
		fmt.Fprintf(&b, "\n%d case(s) failed.\n", failed)
	}
	return b.String()
}
