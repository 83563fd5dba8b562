package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/httpx"
)

const (
	statusContextPrefix  = "ci-triage"
	maxDescriptionLength = 140
	flakyStateThreshold  = 0.6
)

type commitStatusRequest struct {
	State       string `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

type commitStatusResponse struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
	URL   string `json:"url"`
}

// Client publishes triage verdicts as commit statuses.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GitHubAPIURL, "/"),
		token:   cfg.GitHubToken,
		http:    httpx.ExternalHTTPClient(),
	}
}

// PostVerdictStatus sets a commit status on sha describing the verdict. Each
// test gets its own status context so verdicts for different tests coexist.
func (c *Client) PostVerdictStatus(ctx context.Context, repo, sha, targetURL string, r *domain.TriageResult) error {
	if _, _, err := SplitRepo(repo); err != nil {
		return err
	}
	if strings.TrimSpace(sha) == "" {
		return fmt.Errorf("commit sha is required")
	}

	payload, err := json.Marshal(commitStatusRequest{
		State:       verdictState(r),
		TargetURL:   targetURL,
		Description: verdictDescription(r),
		Context:     statusContextPrefix + "/" + r.TestName,
	})
	if err != nil {
		return err
	}

	apiURL := fmt.Sprintf("%s/repos/%s/statuses/%s", c.baseURL, repo, url.PathEscape(sha))
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(body))
	}

	var created commitStatusResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	log.Printf("github status repo=%s sha=%s test=%s state=%s id=%d", repo, sha, r.TestName, created.State, created.ID)
	return nil
}

// verdictState maps a verdict onto a commit status state. Likely-flaky
// failures that are not regressions are reported as "error".
func verdictState(r *domain.TriageResult) string {
	if r.Classification == domain.FailureGenuineRegression {
		return "failure"
	}
	if r.FlakyProbability >= flakyStateThreshold {
		return "error"
	}
	return "failure"
}

func verdictDescription(r *domain.TriageResult) string {
	desc := fmt.Sprintf("%s, flaky %.0f%%, confidence %.0f%%",
		r.Classification.Label(), r.FlakyProbability*100, r.ConfidenceScore*100)
	if len(r.SuggestedActions) > 0 {
		desc += ": " + r.SuggestedActions[0]
	}
	if runes := []rune(desc); len(runes) > maxDescriptionLength {
		desc = string(runes[:maxDescriptionLength-3]) + "..."
	}
	return desc
}

// SplitRepo validates an "owner/name" repository reference.
func SplitRepo(fullName string) (string, string, error) {
	parts := strings.Split(strings.Trim(fullName, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: want owner/name", fullName)
	}
	return parts[0], parts[1], nil
}
