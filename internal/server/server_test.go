package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sriramcse31/ai-test-triage-agent/internal/agent"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/memory"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "The network dropped the connection mid-request.", nil
}

func newTestServer(t *testing.T) (*Server, *memory.SQLiteStore) {
	t.Helper()
	store, err := memory.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	withLLM := agent.New(store, agent.WithLLM(stubLLM{}))
	ruleBased := agent.New(store)
	return New(withLLM, ruleBased, store), store
}

func readSampleLog(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "demo", "sample_ci_failures", name))
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return string(data)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestTriageEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	router := srv.Router()
	body := readSampleLog(t, "test_flaky_network.log")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/triage?remember=1", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var res domain.TriageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TestName != "test_api_product_search" || res.Classification != domain.FailureNetwork {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ExplanationSource != domain.ExplanationLLM {
		t.Fatalf("explanation source = %s", res.ExplanationSource)
	}

	st, err := store.Stats(context.Background())
	if err != nil || st.TotalCount != 1 {
		t.Fatalf("expected remembered record, stats=%+v err=%v", st, err)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/triage?no_llm=true", strings.NewReader(body)))
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ExplanationSource != domain.ExplanationRuleBased {
		t.Fatalf("no_llm explanation source = %s", res.ExplanationSource)
	}
	if st, _ := store.Stats(context.Background()); st.TotalCount != 1 {
		t.Fatalf("request without remember must not store, total=%d", st.TotalCount)
	}
}

func TestTriageEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/v1/triage", strings.NewReader("  \n")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsAndFlakyEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.AddBulk(context.Background(), []domain.HistoricalFailure{
		{TestName: "test_a", ErrorMessage: "a", FlakyScore: 0.9},
		{TestName: "test_b", ErrorMessage: "b", FlakyScore: 0.65},
		{TestName: "test_c", ErrorMessage: "c", FlakyScore: 0.1, Resolution: &domain.Resolution{FixApplied: "x", Confidence: 0.8}},
	})
	if err != nil {
		t.Fatalf("AddBulk: %v", err)
	}
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/stats", nil))
	var st memory.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.TotalCount != 3 || st.ResolvedCount != 1 {
		t.Fatalf("stats = %+v", st)
	}

	tests := []struct {
		query     string
		wantCode  int
		wantCount int
	}{
		{"", http.StatusOK, 2},
		{"?threshold=0.8", http.StatusOK, 1},
		{"?threshold=0.95", http.StatusOK, 0},
		{"?threshold=abc", http.StatusBadRequest, 0},
		{"?threshold=1.5", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/flaky"+tt.query, nil))
		if rec.Code != tt.wantCode {
			t.Fatalf("flaky%s status = %d, want %d", tt.query, rec.Code, tt.wantCode)
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		var got []domain.HistoricalFailure
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode flaky: %v", err)
		}
		if len(got) != tt.wantCount {
			t.Fatalf("flaky%s = %d records, want %d", tt.query, len(got), tt.wantCount)
		}
	}
}

func TestMemoryNotConfigured(t *testing.T) {
	srv := New(agent.New(nil), nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/stats", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
