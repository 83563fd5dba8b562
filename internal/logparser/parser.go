package logparser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

var (
	timestampRe   = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]`)
	levelRe       = regexp.MustCompile(`(INFO|ERROR|FAIL|PASS|WARNING|NOTE)`)
	levelPrefixRe = regexp.MustCompile(`(INFO|ERROR|FAIL|PASS|WARNING|NOTE):`)
	testNameRe    = regexp.MustCompile(`test[_\w]+`)
	durationRe    = regexp.MustCompile(`after (\d+)s`)
)

const timestampLayout = "2006-01-02 15:04:05"

// errorTypeRules is evaluated in order; the first rule with a matching
// keyword wins.
var errorTypeRules = []struct {
	errorType string
	keywords  []string
}{
	{"TimeoutError", []string{"timeout"}},
	{"SelectorError", []string{"selector", "element not found"}},
	{"NetworkError", []string{"connection", "network"}},
	{"DatabaseError", []string{"database", "duplicate key"}},
}

// Parse turns raw log text into a TestFailure. It never fails; fields that
// cannot be found fall back to their defaults.
func Parse(text string) *domain.TestFailure {
	entries := parseLines(text)

	var errorLines []string
	for _, e := range entries {
		if e.Level.IsFailure() {
			errorLines = append(errorLines, e.Message)
		}
	}

	failureMessage := domain.UnknownFailureMessage
	if len(errorLines) > 0 {
		failureMessage = errorLines[0]
	}

	return &domain.TestFailure{
		TestName:        extractTestName(entries),
		FailureMessage:  failureMessage,
		ErrorType:       classifyErrorType(errorLines),
		DurationSeconds: extractDuration(entries),
		LogEntries:      entries,
		ErrorLines:      errorLines,
		Artifacts:       extractArtifacts(entries),
		RetryCount:      countRetries(entries),
	}
}

// ParseReader parses a log read from r, failing once it exceeds maxLogBytes.
func ParseReader(r io.Reader) (*domain.TestFailure, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxLogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	if int64(len(data)) > maxLogBytes {
		return nil, fmt.Errorf("log exceeds %d bytes", maxLogBytes)
	}
	return Parse(string(data)), nil
}

// maxLogBytes caps the size of a streamed or decompressed log.
var maxLogBytes int64 = 64 << 20

// ParseFile parses a log file. Files ending in .zst are decompressed first,
// up to maxLogBytes.
func ParseFile(path string) (*domain.TestFailure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return Parse(string(data)), nil
	}

	dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderMaxMemory(uint64(maxLogBytes)))
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream %s: %w", path, err)
	}
	defer dec.Close()
	tf, err := ParseReader(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return tf, nil
}

func parseLines(text string) []domain.LogEntry {
	var entries []domain.LogEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, domain.LogEntry{
			Timestamp: extractTimestamp(line),
			Level:     extractLevel(line),
			Message:   extractMessage(line),
			RawLine:   line,
		})
	}
	return entries
}

func extractTimestamp(line string) *time.Time {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	t, err := time.ParseInLocation(timestampLayout, m[1], time.Local)
	if err != nil {
		return nil
	}
	return &t
}

func extractLevel(line string) domain.LogLevel {
	if m := levelRe.FindString(line); m != "" {
		return domain.LogLevel(m)
	}
	return domain.LevelInfo
}

func extractMessage(line string) string {
	msg := timestampRe.ReplaceAllString(line, "")
	msg = levelPrefixRe.ReplaceAllString(msg, "")
	return strings.TrimSpace(msg)
}

func extractTestName(entries []domain.LogEntry) string {
	for _, e := range entries {
		if !strings.Contains(e.Message, "Starting test:") {
			continue
		}
		if name := testNameRe.FindString(e.Message); name != "" {
			return name
		}
	}
	return domain.UnknownTestName
}

func classifyErrorType(errorLines []string) string {
	text := strings.ToLower(strings.Join(errorLines, " "))
	for _, rule := range errorTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.errorType
			}
		}
	}
	return ""
}

func extractDuration(entries []domain.LogEntry) *float64 {
	for _, e := range entries {
		m := durationRe.FindStringSubmatch(e.Message)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return &v
	}
	return nil
}

func extractArtifacts(entries []domain.LogEntry) []string {
	var artifacts []string
	for _, e := range entries {
		if !strings.Contains(strings.ToLower(e.Message), "screenshot") {
			continue
		}
		for _, word := range strings.Fields(e.Message) {
			if strings.HasSuffix(word, ".png") || strings.HasSuffix(word, ".jpg") || strings.HasSuffix(word, ".jpeg") {
				artifacts = append(artifacts, word)
			}
		}
	}
	return artifacts
}

func countRetries(entries []domain.LogEntry) int {
	n := 0
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Message), "retry attempt") {
			n++
		}
	}
	return n
}
