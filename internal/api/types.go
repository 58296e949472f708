package api

import (
	"encoding/json"

	"github.com/articleforge/articleforge/internal/job/model"
)

// SubmitResponse is the 202 acknowledgement body.
type SubmitResponse struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// JobResponse mirrors the persisted record on the wire. Field names
// are part of the polling contract.
type JobResponse struct {
	ID            string          `json:"id"`
	RequestID     string          `json:"requestId"`
	ClientID      string          `json:"clientId"`
	Status        string          `json:"status"`
	Step          int             `json:"step"`
	TotalSteps    int             `json:"totalSteps"`
	StepName      string          `json:"stepName,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
	StartedAt     int64           `json:"startedAt,omitempty"`
	CompletedAt   int64           `json:"completedAt,omitempty"`
	RetryCount    int             `json:"retryCount"`
	MaxRetries    int             `json:"maxRetries"`
	LastAttemptAt int64           `json:"lastAttemptAt,omitempty"`
}

// toJobResponse converts a model.Record to its wire form.
func toJobResponse(rec *model.Record) JobResponse {
	return JobResponse{
		ID:            rec.ID,
		RequestID:     rec.RequestID,
		ClientID:      rec.ClientID,
		Status:        string(rec.Status),
		Step:          rec.Step,
		TotalSteps:    rec.TotalSteps,
		StepName:      rec.StepName,
		Result:        rec.Result,
		Error:         rec.Error,
		CreatedAt:     rec.CreatedAt,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
		RetryCount:    rec.RetryCount,
		MaxRetries:    rec.MaxRetries,
		LastAttemptAt: rec.LastAttemptAt,
	}
}
