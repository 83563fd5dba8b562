package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/httpx"
)

const perPage = 100

type gitlabPipelineResponse struct {
	ID     int64  `json:"id"`
	Ref    string `json:"ref"`
	SHA    string `json:"sha"`
	Status string `json:"status"`
	WebURL string `json:"web_url"`
}

type gitlabJobResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	WebURL     string `json:"web_url"`
	FinishedAt string `json:"finished_at"`
}

type Pipeline struct {
	ID     int64
	Ref    string
	SHA    string
	Status string
	WebURL string
}

type Job struct {
	ID         int64
	Name       string
	Stage      string
	Status     string
	WebURL     string
	FinishedAt time.Time
}

// Provenance identifies the CI run a downloaded log came from.
type Provenance struct {
	CIRunID   string
	Branch    string
	CommitSHA string
	JobURL    string
}

// Apply copies the provenance onto a failure record.
func (p Provenance) Apply(f *domain.HistoricalFailure) {
	f.CIRunID = p.CIRunID
	f.Branch = p.Branch
	f.CommitSHA = p.CommitSHA
}

type FetchedLog struct {
	Job        Job
	Path       string
	Provenance Provenance
}

// FetchResult tracks the outcome of downloading a pipeline's failed job logs.
type FetchResult struct {
	Pipeline   Pipeline
	FailedJobs int
	Downloaded int
	Logs       []FetchedLog
	Errors     []string
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GitLabURL, "/"),
		token:   cfg.GitLabToken,
		http:    httpx.ExternalHTTPClient(),
	}
}

func (c *Client) get(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("GitLab API returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) projectURL(project string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s", c.baseURL, url.PathEscape(project))
}

func (c *Client) GetPipeline(ctx context.Context, project string, pipelineID int64) (Pipeline, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/pipelines/%d", c.projectURL(project), pipelineID))
	if err != nil {
		return Pipeline{}, fmt.Errorf("fetching pipeline: %w", err)
	}
	var p gitlabPipelineResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parsing response: %w", err)
	}
	return Pipeline{ID: p.ID, Ref: p.Ref, SHA: p.SHA, Status: p.Status, WebURL: p.WebURL}, nil
}

// FailedJobs lists the failed jobs of a pipeline, following pagination.
func (c *Client) FailedJobs(ctx context.Context, project string, pipelineID int64) ([]Job, error) {
	var all []Job
	page := 1
	log.Printf("gitlab jobs fetch start project=%s pipeline=%d", project, pipelineID)

	for {
		apiURL := fmt.Sprintf("%s/pipelines/%d/jobs?scope[]=failed&per_page=%d&page=%d",
			c.projectURL(project), pipelineID, perPage, page)
		log.Printf("gitlab jobs fetch page=%d", page)

		body, err := c.get(ctx, apiURL)
		if err != nil {
			return nil, fmt.Errorf("fetching jobs: %w", err)
		}

		var jobs []gitlabJobResponse
		if err := json.Unmarshal(body, &jobs); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}

		for _, j := range jobs {
			// scope filtering is server-side, but older instances ignore it.
			if !strings.EqualFold(j.Status, "failed") {
				continue
			}
			finishedAt, err := time.Parse(time.RFC3339, j.FinishedAt)
			if err != nil {
				finishedAt = time.Time{}
			}
			all = append(all, Job{
				ID:         j.ID,
				Name:       j.Name,
				Stage:      j.Stage,
				Status:     j.Status,
				WebURL:     j.WebURL,
				FinishedAt: finishedAt,
			})
		}

		if len(jobs) < perPage {
			break
		}
		page++
	}

	log.Printf("gitlab jobs fetch done failed=%d", len(all))
	return all, nil
}

// JobTrace downloads a job log with terminal control sequences removed.
func (c *Client) JobTrace(ctx context.Context, project string, jobID int64) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/jobs/%d/trace", c.projectURL(project), jobID))
	if err != nil {
		return "", fmt.Errorf("fetching trace for job %d: %w", jobID, err)
	}
	return CleanTrace(string(body)), nil
}

var (
	sectionMarkerRe = regexp.MustCompile(`section_(?:start|end):\d+:[^\r\n]*?\r?\x1b\[0K`)
	ansiEscapeRe    = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

// CleanTrace strips GitLab section markers, ANSI escapes and carriage returns.
func CleanTrace(s string) string {
	s = sectionMarkerRe.ReplaceAllString(s, "")
	s = ansiEscapeRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "")
}

// FetchPipelineLogs downloads the trace of every failed job into outDir. A job
// whose trace cannot be downloaded is recorded in Errors and skipped.
func (c *Client) FetchPipelineLogs(ctx context.Context, project string, pipelineID int64, outDir string) (FetchResult, error) {
	var result FetchResult

	pipeline, err := c.GetPipeline(ctx, project, pipelineID)
	if err != nil {
		return result, err
	}
	result.Pipeline = pipeline

	jobs, err := c.FailedJobs(ctx, project, pipelineID)
	if err != nil {
		return result, err
	}
	result.FailedJobs = len(jobs)
	if len(jobs) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return result, fmt.Errorf("creating log dir: %w", err)
	}

	prov := Provenance{
		CIRunID:   strconv.FormatInt(pipeline.ID, 10),
		Branch:    pipeline.Ref,
		CommitSHA: pipeline.SHA,
	}
	for _, job := range jobs {
		trace, err := c.JobTrace(ctx, project, job.ID)
		if err != nil {
			log.Printf("gitlab trace error job=%d: %v", job.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s (#%d): %v", job.Name, job.ID, err))
			continue
		}
		path := filepath.Join(outDir, logFileName(project, pipeline.ID, job))
		if err := os.WriteFile(path, []byte(trace), 0644); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s (#%d): %v", job.Name, job.ID, err))
			continue
		}
		jobProv := prov
		jobProv.JobURL = job.WebURL
		result.Logs = append(result.Logs, FetchedLog{Job: job, Path: path, Provenance: jobProv})
		result.Downloaded++
	}

	if result.Downloaded == 0 && len(result.Errors) > 0 {
		return result, fmt.Errorf("all trace downloads failed: %s", strings.Join(result.Errors, "; "))
	}
	return result, nil
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func logFileName(project string, pipelineID int64, job Job) string {
	name := fmt.Sprintf("%s_%d_%d_%s", project, pipelineID, job.ID, job.Name)
	return unsafeNameRe.ReplaceAllString(name, "_") + ".log"
}

// FormatFetchSummary returns a human-readable summary of a FetchResult.
func FormatFetchSummary(result FetchResult) string {
	if result.FailedJobs == 0 {
		return fmt.Sprintf("Pipeline %d (%s) has no failed jobs.", result.Pipeline.ID, result.Pipeline.Ref)
	}
	msg := fmt.Sprintf("Pipeline %d (%s): downloaded %d/%d failed job logs",
		result.Pipeline.ID, result.Pipeline.Ref, result.Downloaded, result.FailedJobs)
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// ParsePipelineURL splits a pipeline web URL such as
// https://gitlab.example.com/group/proj/-/pipelines/123 into the project path
// and the pipeline ID.
func ParsePipelineURL(webURL string) (string, int64, error) {
	u, err := url.Parse(webURL)
	if err != nil {
		return "", 0, fmt.Errorf("parsing pipeline URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "-" && i >= 2 && i+2 < len(parts) && parts[i+1] == "pipelines" {
			id, err := strconv.ParseInt(parts[i+2], 10, 64)
			if err != nil {
				return "", 0, fmt.Errorf("invalid pipeline id %q", parts[i+2])
			}
			return strings.Join(parts[:i], "/"), id, nil
		}
	}
	return "", 0, fmt.Errorf("not a pipeline URL: %s", webURL)
}
