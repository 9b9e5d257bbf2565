package api

import (
	"time"

	"vidscribe/internal/jobs"
	"vidscribe/internal/retrieval"
	"vidscribe/internal/store"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a batch job in a transport-friendly format.
type Job struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	Model             string   `json:"model"`
	Format            string   `json:"format"`
	OutputFolder      string   `json:"outputFolder"`
	Files             []string `json:"files"`
	Total             int      `json:"total"`
	Processed         int      `json:"processed"`
	FailedFiles       []string `json:"failedFiles,omitempty"`
	LastError         string   `json:"lastError,omitempty"`
	CancelRequestedAt string   `json:"cancelRequestedAt,omitempty"`
	StartedAt         string   `json:"startedAt"`
	FinishedAt        string   `json:"finishedAt,omitempty"`
	ElapsedSeconds    float64  `json:"elapsedSeconds"`
}

// FromJobRecord converts a stored job into its API shape.
func FromJobRecord(rec store.JobRecord) Job {
	return Job{
		ID:                rec.ID,
		Status:            string(rec.Status),
		Model:             rec.Model,
		Format:            rec.Format,
		OutputFolder:      rec.OutputDir,
		Files:             rec.Files,
		Total:             rec.Total,
		Processed:         rec.Processed,
		FailedFiles:       rec.FailedFiles,
		LastError:         rec.LastError,
		CancelRequestedAt: formatTime(rec.CancelRequestedAt),
		StartedAt:         rec.StartedAt.Format(dateTimeFormat),
		FinishedAt:        formatTime(rec.FinishedAt),
		ElapsedSeconds:    rec.Elapsed(time.Now()).Seconds(),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateTimeFormat)
}

// BatchStarted acknowledges an accepted batch.
type BatchStarted struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Job     Job    `json:"job"`
}

// BatchOutcome is returned by POST /api/batch?wait=true.
type BatchOutcome struct {
	jobs.Outcome
	JobID string `json:"jobId"`
}

// ActiveBatch is the GET /api/batch payload.
type ActiveBatch struct {
	Active bool `json:"active"`
	Job    *Job `json:"job,omitempty"`
}

// CancelResponse reports whether a running job received the request.
type CancelResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// SearchLLM overrides the configured synthesis provider for one ask query.
type SearchLLM struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
}

// SearchRequest is the POST /api/search body.
type SearchRequest struct {
	Action        string     `json:"action"`
	Query         string     `json:"query"`
	OutputFolder  string     `json:"outputFolder"`
	CaseSensitive bool       `json:"caseSensitive,omitempty"`
	LLMConfig     *SearchLLM `json:"llmConfig,omitempty"`
}

// ResultsResponse answers keyword and semantic searches.
type ResultsResponse struct {
	Success bool               `json:"success"`
	Results []retrieval.Result `json:"results"`
}

// AnswerResponse answers an ask query.
type AnswerResponse struct {
	Success bool             `json:"success"`
	Answer  retrieval.Answer `json:"answer"`
}

// IndexResponse answers an index request.
type IndexResponse struct {
	Success bool                   `json:"success"`
	Index   retrieval.IndexSummary `json:"index"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is the GET /api/health payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	JobActive bool   `json:"jobActive"`
	Synthesis bool   `json:"synthesis"`
}
