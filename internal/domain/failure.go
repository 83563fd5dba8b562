package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelError   LogLevel = "ERROR"
	LevelFail    LogLevel = "FAIL"
	LevelPass    LogLevel = "PASS"
	LevelWarning LogLevel = "WARNING"
	LevelNote    LogLevel = "NOTE"
)

// IsFailure reports whether entries at this level count as error lines.
func (l LogLevel) IsFailure() bool {
	return l == LevelError || l == LevelFail
}

type LogEntry struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Level     LogLevel   `json:"level"`
	Message   string     `json:"message"`
	RawLine   string     `json:"raw_line"`
}

const (
	UnknownTestName       = "unknown_test"
	UnknownFailureMessage = "Unknown failure"
)

// TestFailure is the structured form of one CI log.
type TestFailure struct {
	TestName        string     `json:"test_name"`
	FailureMessage  string     `json:"failure_message"`
	ErrorType       string     `json:"error_type,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	LogEntries      []LogEntry `json:"log_entries"`
	ErrorLines      []string   `json:"error_lines"`
	Artifacts       []string   `json:"artifacts"`
	RetryCount      int        `json:"retry_count"`
}

// ContextWindow returns the entries within radius lines of any ERROR or FAIL
// entry, deduplicated and in log order.
func (f *TestFailure) ContextWindow(radius int) []LogEntry {
	if radius < 0 {
		radius = 0
	}
	n := len(f.LogEntries)
	keep := make([]bool, n)
	for i, e := range f.LogEntries {
		if !e.Level.IsFailure() {
			continue
		}
		start := max(0, i-radius)
		end := min(n-1, i+radius)
		for j := start; j <= end; j++ {
			keep[j] = true
		}
	}
	var out []LogEntry
	for i, k := range keep {
		if k {
			out = append(out, f.LogEntries[i])
		}
	}
	return out
}

const DefaultResolutionConfidence = 0.8

type Resolution struct {
	RootCause       string      `json:"root_cause"`
	Classification  FailureType `json:"classification"`
	FixApplied      string      `json:"fix_applied"`
	FixedBy         string      `json:"fixed_by,omitempty"`
	FixedAt         *time.Time  `json:"fixed_at,omitempty"`
	TicketReference string      `json:"ticket_reference,omitempty"`
	Confidence      float64     `json:"confidence"`
}

func (r *Resolution) UnmarshalJSON(data []byte) error {
	type resolutionAlias Resolution
	aux := struct {
		*resolutionAlias
		FixedAt    string   `json:"fixed_at"`
		Confidence *float64 `json:"confidence"`
	}{resolutionAlias: (*resolutionAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.FixedAt = nil
	if strings.TrimSpace(aux.FixedAt) != "" {
		t, err := ParseTimestamp(aux.FixedAt)
		if err != nil {
			return fmt.Errorf("fixed_at: %w", err)
		}
		r.FixedAt = &t
	}
	r.Confidence = DefaultResolutionConfidence
	if aux.Confidence != nil {
		r.Confidence = *aux.Confidence
	}
	return nil
}

// HistoricalFailure is a failure record kept in memory, resolved or not.
type HistoricalFailure struct {
	TestName        string      `json:"test_name"`
	ErrorMessage    string      `json:"error_message"`
	ErrorType       string      `json:"error_type,omitempty"`
	LogSnippet      string      `json:"log_snippet"`
	Timestamp       time.Time   `json:"timestamp"`
	DurationSeconds *float64    `json:"duration_seconds,omitempty"`
	RetryCount      int         `json:"retry_count"`
	Artifacts       []string    `json:"artifacts"`
	Resolution      *Resolution `json:"resolution,omitempty"`
	CIRunID         string      `json:"ci_run_id,omitempty"`
	Branch          string      `json:"branch,omitempty"`
	CommitSHA       string      `json:"commit_sha,omitempty"`
	FlakyScore      float64     `json:"flaky_score"`
}

// Normalize clamps the flaky score to [0,1] and fills in a zero timestamp.
func (h *HistoricalFailure) Normalize() {
	h.FlakyScore = ClampUnit(h.FlakyScore)
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
}

func (h *HistoricalFailure) UnmarshalJSON(data []byte) error {
	type historicalAlias HistoricalFailure
	aux := struct {
		*historicalAlias
		Timestamp string `json:"timestamp"`
	}{historicalAlias: (*historicalAlias)(h)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	h.Timestamp = time.Time{}
	if strings.TrimSpace(aux.Timestamp) != "" {
		t, err := ParseTimestamp(aux.Timestamp)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		h.Timestamp = t
	}
	h.Normalize()
	return nil
}

func (h HistoricalFailure) Resolved() bool {
	return h.Resolution != nil
}

// EmbeddingText is the textual signature used for similarity search.
func (h HistoricalFailure) EmbeddingText() string {
	errType := h.ErrorType
	if errType == "" {
		errType = "unknown"
	}
	parts := []string{
		"Test: " + h.TestName,
		"Error: " + h.ErrorMessage,
		"Type: " + errType,
		"Log: " + h.LogSnippet,
	}
	if h.Resolution != nil {
		parts = append(parts,
			"Root Cause: "+h.Resolution.RootCause,
			"Classification: "+string(h.Resolution.Classification),
			"Fix: "+h.Resolution.FixApplied,
		)
	}
	return strings.Join(parts, " | ")
}

func (h HistoricalFailure) Summary() string {
	s := h.TestName + ": " + h.ErrorMessage
	if h.Resolution != nil {
		s += "\n  -> Fixed: " + h.Resolution.FixApplied
	}
	return s
}

// Explanation sources recorded on a TriageResult.
const (
	ExplanationLLM       = "llm"
	ExplanationRuleBased = "rule_based"
)

type TriageResult struct {
	TestName             string              `json:"test_name"`
	Classification       FailureType         `json:"classification"`
	FlakyProbability     float64             `json:"flaky_probability"`
	RootCauseExplanation string              `json:"root_cause_explanation"`
	ExplanationSource    string              `json:"explanation_source"`
	SuggestedActions     []string            `json:"suggested_actions"`
	ConfidenceScore      float64             `json:"confidence_score"`
	SimilarFailures      []HistoricalFailure `json:"similar_failures"`
	ReasoningSteps       []string            `json:"reasoning_steps"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and the zone-less ISO forms found in seed
// data. Zone-less values are read as local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
