package eval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

const defaultMinConfidence = 0.5

var ErrNoCases = errors.New("no evaluation cases")

// Case is one golden case. The file format is JSON or YAML.
type Case struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	LogFile  string   `yaml:"log_file"`
	Expected Expected `yaml:"expected"`
}

type Expected struct {
	Classification string    `yaml:"classification"`
	FlakyRange     []float64 `yaml:"flaky_probability_range"`
	Keywords       []string  `yaml:"should_contain_keywords"`
	ActionPhrases  []string  `yaml:"suggested_actions_should_include"`
	MinConfidence  *float64  `yaml:"min_confidence"`
}

func (e Expected) minConfidence() float64 {
	if e.MinConfidence == nil {
		return defaultMinConfidence
	}
	return *e.MinConfidence
}

// LoadCases reads the golden cases file. A missing or empty file is an error:
// there is nothing meaningful to evaluate against. Relative log paths are
// resolved against the directory of the cases file.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading evaluation cases: %w", err)
	}
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing evaluation cases %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCases)
	}

	base := filepath.Dir(path)
	for i := range cases {
		c := &cases[i]
		if c.ID == "" {
			return nil, fmt.Errorf("case %d in %s has no id", i+1, path)
		}
		if c.LogFile == "" {
			return nil, fmt.Errorf("case %s has no log_file", c.ID)
		}
		if n := len(c.Expected.FlakyRange); n != 0 && n != 2 {
			return nil, fmt.Errorf("case %s: flaky_probability_range needs [min, max], got %d values", c.ID, n)
		}
		if c.Expected.Classification != "" {
			if _, err := domain.ParseFailureType(c.Expected.Classification); err != nil {
				return nil, fmt.Errorf("case %s: %w", c.ID, err)
			}
		}
		if !filepath.IsAbs(c.LogFile) {
			c.LogFile = filepath.Join(base, c.LogFile)
		}
	}
	return cases, nil
}

// AnalyzeFunc triages the log file at path.
type AnalyzeFunc func(ctx context.Context, path string) (*domain.TriageResult, error)

type CaseResult struct {
	ID     string
	Name   string
	Passed bool
	Errors []string

	ClassificationOK bool
	FlakyOK          bool
	KeywordsOK       bool
	ActionsOK        bool
	ConfidenceOK     bool
}

type Report struct {
	Results []CaseResult
}

// Run evaluates every case in order. An analysis error fails that case only.
func Run(ctx context.Context, cases []Case, analyze AnalyzeFunc) Report {
	var report Report
	for _, c := range cases {
		var cr CaseResult
		res, err := analyze(ctx, c.LogFile)
		if err != nil {
			cr = CaseResult{ID: c.ID, Name: c.Name, Errors: []string{fmt.Sprintf("Exception: %v", err)}}
		} else {
			cr = Check(c, res)
		}
		if cr.Passed {
			log.Printf("eval case=%s passed", c.ID)
		} else {
			log.Printf("eval case=%s failed: %s", c.ID, strings.Join(cr.Errors, "; "))
		}
		report.Results = append(report.Results, cr)
	}
	return report
}

// Check compares one triage result with a case's expectations.
func Check(c Case, res *domain.TriageResult) CaseResult {
	exp := c.Expected
	cr := CaseResult{ID: c.ID, Name: c.Name}

	cr.ClassificationOK = true
	if exp.Classification != "" {
		want, _ := domain.ParseFailureType(exp.Classification)
		cr.ClassificationOK = res.Classification == want
		if !cr.ClassificationOK {
			cr.Errors = append(cr.Errors, fmt.Sprintf("Classification: got %s, expected %s", res.Classification, want))
		}
	}

	cr.FlakyOK = true
	if len(exp.FlakyRange) == 2 {
		lo, hi := exp.FlakyRange[0], exp.FlakyRange[1]
		cr.FlakyOK = lo <= res.FlakyProbability && res.FlakyProbability <= hi
		if !cr.FlakyOK {
			cr.Errors = append(cr.Errors, fmt.Sprintf("Flaky score: %.2f not in range [%g, %g]", res.FlakyProbability, lo, hi))
		}
	}

	explanation := strings.ToLower(res.RootCauseExplanation)
	var missing []string
	for _, kw := range exp.Keywords {
		if !strings.Contains(explanation, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}
	cr.KeywordsOK = len(missing) == 0
	if !cr.KeywordsOK {
		cr.Errors = append(cr.Errors, fmt.Sprintf("Missing keywords in explanation: %s", strings.Join(missing, ", ")))
	}

	cr.ActionsOK = len(exp.ActionPhrases) == 0
	actions := strings.ToLower(strings.Join(res.SuggestedActions, " "))
	for _, phrase := range exp.ActionPhrases {
		if strings.Contains(actions, strings.ToLower(phrase)) {
			cr.ActionsOK = true
			break
		}
	}
	if !cr.ActionsOK {
		cr.Errors = append(cr.Errors, fmt.Sprintf("Expected action phrases not found: %s", strings.Join(exp.ActionPhrases, ", ")))
	}

	cr.ConfidenceOK = res.ConfidenceScore >= exp.minConfidence()
	if !cr.ConfidenceOK {
		cr.Errors = append(cr.Errors, fmt.Sprintf("Confidence too low: %.2f < %g", res.ConfidenceScore, exp.minConfidence()))
	}

	cr.Passed = len(cr.Errors) == 0
	return cr
}

func (r Report) Total() int { return len(r.Results) }

func (r Report) Passed() int {
	n := 0
	for _, cr := range r.Results {
		if cr.Passed {
			n++
		}
	}
	return n
}

func (r Report) Failed() []CaseResult {
	var out []CaseResult
	for _, cr := range r.Results {
		if !cr.Passed {
			out = append(out, cr)
		}
	}
	return out
}

// CheckAccuracy is the number of cases that passed one kind of check.
type CheckAccuracy struct {
	Check   string
	Correct int
	Total   int
}

func (c CheckAccuracy) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Correct) / float64(c.Total) * 100
}

func (r Report) Accuracy() []CheckAccuracy {
	checks := []struct {
		name string
		ok   func(CaseResult) bool
	}{
		{"Classification", func(cr CaseResult) bool { return cr.ClassificationOK }},
		{"Flaky Score", func(cr CaseResult) bool { return cr.FlakyOK }},
		{"Keywords", func(cr CaseResult) bool { return cr.KeywordsOK }},
		{"Actions", func(cr CaseResult) bool { return cr.ActionsOK }},
		{"Confidence", func(cr CaseResult) bool { return cr.ConfidenceOK }},
	}
	out := make([]CheckAccuracy, 0, len(checks))
	for _, chk := range checks {
		acc := CheckAccuracy{Check: chk.name, Total: r.Total()}
		for _, cr := range r.Results {
			if chk.ok(cr) {
				acc.Correct++
			}
		}
		out = append(out, acc)
	}
	return out
}
