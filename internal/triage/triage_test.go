package triage

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClassifyCascadeOrder(t *testing.T) {
	tests := []struct {
		msg     string
		snippet string
		want    domain.FailureType
	}{
		{"Timeout 30000ms exceeded", "waiting for selector \"#dash\"", domain.FailureTimeout},
		{"request timed out", "", domain.FailureTimeout},
		{"Expected element not found", "waiting for selector \"button\"", domain.FailureSelector},
		{"locator resolved to 0 elements", "", domain.FailureSelector},
		{"RequestError: connect ETIMEDOUT", "Failed to establish connection", domain.FailureNetwork},
		{"connect ECONNREFUSED 127.0.0.1:5432", "", domain.FailureNetwork},
		{"DatabaseError: duplicate key", "violates unique constraint", domain.FailureDataSetup},
		{"missing fixture data", "", domain.FailureDataSetup},
		{"EACCES: permission denied", "", domain.FailureEnvironment},
		{"bad CONFIG value", "", domain.FailureEnvironment},
		{"AssertionError: expected 3 got 4", "", domain.FailureUnknown},
		{"", "", domain.FailureUnknown},
	}
	for _, tt := range tests {
		got := Classify(domain.HistoricalFailure{ErrorMessage: tt.msg, LogSnippet: tt.snippet})
		if got != tt.want {
			t.Fatalf("Classify(%q, %q) = %s, want %s", tt.msg, tt.snippet, got, tt.want)
		}
	}
}

func TestClassifyTimeoutBeatsSelector(t *testing.T) {
	for _, text := range []string{"selector timeout", "TIMEOUT on selector", "element timed out"} {
		if got := ClassifyText(text); got != domain.FailureTimeout {
			t.Fatalf("ClassifyText(%q) = %s, want timeout", text, got)
		}
	}
}

func TestFlakyScoreSignals(t *testing.T) {
	resolved := domain.HistoricalFailure{Resolution: &domain.Resolution{FixApplied: "x"}}
	unresolved := domain.HistoricalFailure{}

	tests := []struct {
		name    string
		current domain.HistoricalFailure
		history []domain.HistoricalFailure
		want    float64
	}{
		{"no signals", domain.HistoricalFailure{}, nil, 0},
		{"retries and network", domain.HistoricalFailure{RetryCount: 2, ErrorType: "NetworkError"}, nil, 0.6},
		{"timeout type only", domain.HistoricalFailure{ErrorType: "TimeoutError"}, nil, 0.2},
		{"database type ignored", domain.HistoricalFailure{ErrorType: "DatabaseError"}, nil, 0},
		{"history length", domain.HistoricalFailure{}, []domain.HistoricalFailure{unresolved, unresolved, unresolved}, 0.3},
		{"mixed resolution", domain.HistoricalFailure{}, []domain.HistoricalFailure{resolved, unresolved}, 0.1},
		{"all resolved is not mixed", domain.HistoricalFailure{}, []domain.HistoricalFailure{resolved, resolved}, 0},
		{
			"all signals",
			domain.HistoricalFailure{RetryCount: 1, ErrorType: "TimeoutError"},
			[]domain.HistoricalFailure{resolved, unresolved, unresolved},
			1.0,
		},
	}
	for _, tt := range tests {
		got := FlakyScore(tt.current, tt.history)
		if !approx(got, tt.want) {
			t.Fatalf("%s: FlakyScore = %v, want %v", tt.name, got, tt.want)
		}
		if got < 0 || got > 1 {
			t.Fatalf("%s: FlakyScore = %v out of range", tt.name, got)
		}
	}
}

func TestFlakyScoreMonotonicInRetries(t *testing.T) {
	prev := -1.0
	for retries := 0; retries < 5; retries++ {
		got := FlakyScore(domain.HistoricalFailure{RetryCount: retries, ErrorType: "NetworkError"}, nil)
		if got < prev {
			t.Fatalf("score decreased at retries=%d: %v < %v", retries, got, prev)
		}
		prev = got
	}
}

func TestSuggestActionsTimeoutWithSimilarFix(t *testing.T) {
	similar := []domain.HistoricalFailure{
		{Resolution: &domain.Resolution{FixApplied: "Increased wait to 60s", Confidence: 0.95}},
		{Resolution: &domain.Resolution{FixApplied: "Low confidence fix", Confidence: 0.5}},
		{Resolution: &domain.Resolution{FixApplied: "Added networkidle wait", Confidence: 0.9}},
		{Resolution: &domain.Resolution{FixApplied: "Third fix", Confidence: 0.9}},
	}
	got := SuggestActions(domain.FailureTimeout, 0.2, similar)
	want := []string{
		"Apply similar fix: Increased wait to 60s",
		"Increase wait timeout (consider animation/loading time)",
		"Add explicit wait for element state (visible/stable)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SuggestActions mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestActionsIgnoresFixesBelowTopTwo(t *testing.T) {
	similar := []domain.HistoricalFailure{
		{TestName: "unresolved"},
		{Resolution: &domain.Resolution{FixApplied: "Low confidence fix", Confidence: 0.5}},
		{Resolution: &domain.Resolution{FixApplied: "third-ranked fix", Confidence: 0.95}},
	}
	got := SuggestActions(domain.FailureTimeout, 0.2, similar)
	want := []string{
		"Increase wait timeout (consider animation/loading time)",
		"Add explicit wait for element state (visible/stable)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SuggestActions mismatch (-want +got):\n%s", diff)
	}

	// Confidence exactly at the threshold is not enough.
	got = SuggestActions(domain.FailureTimeout, 0.2, []domain.HistoricalFailure{
		{Resolution: &domain.Resolution{FixApplied: "borderline", Confidence: 0.7}},
	})
	if got[0] == "Apply similar fix: borderline" {
		t.Fatalf("fix at confidence 0.7 must not be applied: %v", got)
	}
}

func TestSuggestActionsFlakyNetworkTruncatesToFive(t *testing.T) {
	similar := []domain.HistoricalFailure{
		{Resolution: &domain.Resolution{FixApplied: "Added retry", Confidence: 0.8}},
	}
	got := SuggestActions(domain.FailureNetwork, 0.9, similar)
	want := []string{
		"Apply similar fix: Added retry",
		"Add retry logic with exponential backoff",
		"Check CI environment network stability",
		"Highly flaky - investigate environment or mock network calls",
		QuarantineAction,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SuggestActions mismatch (-want +got):\n%s", diff)
	}

	got = SuggestActions(domain.FailureSelector, 0.8, []domain.HistoricalFailure{
		{Resolution: &domain.Resolution{FixApplied: "a", Confidence: 1}},
		{Resolution: &domain.Resolution{FixApplied: "b", Confidence: 1}},
	})
	if len(got) != MaxActions {
		t.Fatalf("expected truncation to %d actions, got %d: %v", MaxActions, len(got), got)
	}
	for _, a := range got {
		if a == QuarantineAction {
			t.Fatalf("quarantine action should have been truncated away: %v", got)
		}
	}
}

func TestSuggestActionsUnknownFallsBack(t *testing.T) {
	got := SuggestActions(domain.FailureUnknown, 0.1, nil)
	if diff := cmp.Diff(fallbackActions, got); diff != "" {
		t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
	}

	got = SuggestActions(domain.FailureUnknown, 0.8, nil)
	if diff := cmp.Diff([]string{QuarantineAction}, got); diff != "" {
		t.Fatalf("quarantine-only mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestActionsBoundsAndDistinct(t *testing.T) {
	dup := []domain.HistoricalFailure{
		{Resolution: &domain.Resolution{FixApplied: "same", Confidence: 0.9}},
		{Resolution: &domain.Resolution{FixApplied: "same", Confidence: 0.9}},
	}
	for _, ft := range domain.AllFailureTypes {
		for _, score := range []float64{0, 0.65, 0.72, 0.8, 1} {
			got := SuggestActions(ft, score, dup)
			if len(got) < 1 || len(got) > MaxActions {
				t.Fatalf("SuggestActions(%s, %v) returned %d actions", ft, score, len(got))
			}
			seen := map[string]bool{}
			for _, a := range got {
				if seen[a] {
					t.Fatalf("duplicate action %q for %s", a, ft)
				}
				seen[a] = true
			}
		}
	}
}

func TestConfidence(t *testing.T) {
	strong := []domain.HistoricalFailure{{Resolution: &domain.Resolution{Confidence: 0.9}}}
	weak := []domain.HistoricalFailure{{Resolution: &domain.Resolution{Confidence: 0.7}}}

	tests := []struct {
		name    string
		ft      domain.FailureType
		similar []domain.HistoricalFailure
		flaky   float64
		want    float64
	}{
		{"resolved similar", domain.FailureTimeout, strong, 0.3, 0.8},
		{"threshold is exclusive", domain.FailureTimeout, weak, 0.3, 0.5},
		{"unknown", domain.FailureUnknown, nil, 0, 0.3},
		{"unknown and flaky", domain.FailureUnknown, nil, 0.9, 0.2},
		{"flaky with fix", domain.FailureNetwork, strong, 0.85, 0.7},
	}
	for _, tt := range tests {
		got := Confidence(tt.ft, tt.similar, tt.flaky)
		if !approx(got, tt.want) {
			t.Fatalf("%s: Confidence = %v, want %v", tt.name, got, tt.want)
		}
	}

	for _, ft := range domain.AllFailureTypes {
		for _, flaky := range []float64{0, 0.5, 0.71, 1} {
			for _, sim := range [][]domain.HistoricalFailure{nil, strong, weak} {
				got := Confidence(ft, sim, flaky)
				if got < 0.1 || got > 1.0 {
					t.Fatalf("Confidence(%s, %v) = %v out of range", ft, flaky, got)
				}
			}
		}
	}
}

func TestEvidenceSummary(t *testing.T) {
	ev := Evidence{
		Current: domain.HistoricalFailure{
			TestName:     "test_user_login",
			ErrorMessage: "TimeoutError: Timeout 30000ms exceeded.",
			ErrorType:    "TimeoutError",
			LogSnippet:   "waiting for selector",
			RetryCount:   1,
		},
		Similar: []domain.HistoricalFailure{
			{TestName: "a", ErrorMessage: "e1", Resolution: &domain.Resolution{RootCause: "slow render", FixApplied: "wait longer"}},
			{TestName: "b", ErrorMessage: "e2"},
			{TestName: "c", ErrorMessage: "e3"},
			{TestName: "d", ErrorMessage: "e4"},
		},
		History: []domain.HistoricalFailure{
			{Resolution: &domain.Resolution{}},
			{},
		},
		Context: []domain.LogEntry{{Level: domain.LevelError, Message: "boom"}},
	}
	got := ev.Summary()

	for _, want := range []string{
		"CURRENT FAILURE:\nTest: test_user_login\nError: TimeoutError: Timeout 30000ms exceeded.\nType: TimeoutError",
		"Retries: 1",
		"LOG CONTEXT:\n[ERROR] boom",
		"SIMILAR PAST FAILURES (4):\n1. a\n   Error: e1\n   Root cause: slow render\n   Fix applied: wait longer\n2. b",
		"3. c",
		"TEST HISTORY (2 past failures)\nResolved: 1/2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "4. d") {
		t.Fatalf("summary should list at most 3 similar failures:\n%s", got)
	}

	bare := Evidence{Current: domain.HistoricalFailure{TestName: "x"}}.Summary()
	if strings.Contains(bare, "SIMILAR") || strings.Contains(bare, "HISTORY") || !strings.Contains(bare, "Type: None") {
		t.Fatalf("bare summary unexpected:\n%s", bare)
	}
}
