package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

const (
	DefaultFlakyThreshold = 0.6

	testHistoryLimit = 20
	flakyListLimit   = 10
)

// Store is the failure memory: an append-only collection of historical
// failures with similarity search.
type Store interface {
	Add(ctx context.Context, f domain.HistoricalFailure) (string, error)
	AddBulk(ctx context.Context, fs []domain.HistoricalFailure) (int, error)
	SearchSimilar(ctx context.Context, query domain.HistoricalFailure, topK int) ([]domain.HistoricalFailure, error)
	GetByTestName(ctx context.Context, testName string) ([]domain.HistoricalFailure, error)
	GetFlaky(ctx context.Context, threshold float64) ([]domain.HistoricalFailure, error)
	Stats(ctx context.Context) (Stats, error)
}

type Stats struct {
	TotalCount    int    `json:"total_count"`
	ResolvedCount int    `json:"resolved_count"`
	Location      string `json:"location"`
}

// LoadSeedFile reads a JSON array of historical failures.
func LoadSeedFile(path string) ([]domain.HistoricalFailure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var failures []domain.HistoricalFailure
	if err := json.Unmarshal(data, &failures); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return failures, nil
}
