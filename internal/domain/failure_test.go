package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseFailureType(t *testing.T) {
	tests := []struct {
		in   string
		want FailureType
	}{
		{"timeout", FailureTimeout},
		{"TIMEOUT", FailureTimeout},
		{"selector_issue", FailureSelector},
		{"SELECTOR", FailureSelector},
		{"network_instability", FailureNetwork},
		{"data_setup", FailureDataSetup},
		{" environment ", FailureEnvironment},
		{"genuine_regression", FailureGenuineRegression},
		{"unknown", FailureUnknown},
	}
	for _, tt := range tests {
		got, err := ParseFailureType(tt.in)
		if err != nil {
			t.Fatalf("ParseFailureType(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFailureType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseFailureType("flaky"); err == nil {
		t.Fatal("expected error for unknown failure type")
	}
}

func TestFailureTypeLabel(t *testing.T) {
	if got := FailureDataSetup.Label(); got != "DATA_SETUP" {
		t.Fatalf("Label() = %q, want DATA_SETUP", got)
	}
	if got := FailureSelector.Label(); got != "SELECTOR" {
		t.Fatalf("Label() = %q, want SELECTOR", got)
	}
}

func TestContextWindowMergesOverlappingRanges(t *testing.T) {
	levels := []LogLevel{LevelInfo, LevelInfo, LevelError, LevelInfo, LevelInfo, LevelInfo, LevelInfo, LevelFail, LevelInfo}
	var entries []LogEntry
	for i, l := range levels {
		entries = append(entries, LogEntry{Level: l, Message: string(rune('a' + i))})
	}
	f := TestFailure{LogEntries: entries}

	got := f.ContextWindow(1)
	var msgs []string
	for _, e := range got {
		msgs = append(msgs, e.Message)
	}
	if strings.Join(msgs, "") != "bcdghi" {
		t.Fatalf("ContextWindow(1) = %v, want b c d g h i", msgs)
	}

	if n := len(f.ContextWindow(10)); n != len(entries) {
		t.Fatalf("ContextWindow(10) returned %d entries, want %d", n, len(entries))
	}
}

func TestContextWindowNoErrors(t *testing.T) {
	f := TestFailure{LogEntries: []LogEntry{{Level: LevelInfo}, {Level: LevelPass}}}
	if got := f.ContextWindow(3); len(got) != 0 {
		t.Fatalf("expected empty window, got %d entries", len(got))
	}
}

func TestHistoricalFailureJSONSeedFormat(t *testing.T) {
	raw := `{
		"test_name": "test_user_login",
		"error_message": "TimeoutError: selector '#user-dashboard' not visible",
		"error_type": "TimeoutError",
		"log_snippet": "waiting for selector",
		"timestamp": "2024-01-10T10:00:00",
		"duration_seconds": 32.0,
		"retry_count": 0,
		"artifacts": ["login_fail.png"],
		"resolution": {
			"root_cause": "Dashboard renders hidden",
			"classification": "timeout",
			"fix_applied": "Increased wait timeout",
			"fixed_at": "2024-01-10T14:00:00"
		},
		"flaky_score": 1.7
	}`
	var h HistoricalFailure
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.FlakyScore != 1 {
		t.Fatalf("flaky score = %v, want clamped to 1", h.FlakyScore)
	}
	want := time.Date(2024, 1, 10, 10, 0, 0, 0, time.Local)
	if !h.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", h.Timestamp, want)
	}
	if h.Resolution == nil {
		t.Fatal("expected resolution")
	}
	if h.Resolution.Classification != FailureTimeout {
		t.Fatalf("classification = %q", h.Resolution.Classification)
	}
	if h.Resolution.Confidence != DefaultResolutionConfidence {
		t.Fatalf("confidence = %v, want default %v", h.Resolution.Confidence, DefaultResolutionConfidence)
	}
	if h.Resolution.FixedAt == nil {
		t.Fatal("expected fixed_at")
	}
	if h.DurationSeconds == nil || *h.DurationSeconds != 32 {
		t.Fatalf("duration = %v", h.DurationSeconds)
	}

	encoded, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back HistoricalFailure
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if !back.Timestamp.Equal(h.Timestamp) || back.Resolution.Confidence != h.Resolution.Confidence {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestHistoricalFailureMissingTimestampDefaultsToNow(t *testing.T) {
	before := time.Now()
	var h HistoricalFailure
	if err := json.Unmarshal([]byte(`{"test_name":"t","flaky_score":-0.5}`), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.Timestamp.Before(before) {
		t.Fatalf("timestamp %v should default to now", h.Timestamp)
	}
	if h.FlakyScore != 0 {
		t.Fatalf("flaky score = %v, want 0", h.FlakyScore)
	}
}

func TestEmbeddingText(t *testing.T) {
	h := HistoricalFailure{
		TestName:     "test_a",
		ErrorMessage: "boom",
		LogSnippet:   "line",
	}
	if got, want := h.EmbeddingText(), "Test: test_a | Error: boom | Type: unknown | Log: line"; got != want {
		t.Fatalf("EmbeddingText() = %q, want %q", got, want)
	}
	h.Resolution = &Resolution{RootCause: "rc", Classification: FailureNetwork, FixApplied: "retry"}
	got := h.EmbeddingText()
	if !strings.HasSuffix(got, "| Root Cause: rc | Classification: network_instability | Fix: retry") {
		t.Fatalf("EmbeddingText() with resolution = %q", got)
	}
	if !strings.Contains(h.Summary(), "Fixed: retry") {
		t.Fatalf("Summary() = %q", h.Summary())
	}
}
