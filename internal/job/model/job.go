package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/articleforge/articleforge/internal/job/state"
)

// Mode selects the kind of content pipeline a job runs.
type Mode string

const (
	// ModeGenerate produces a new article from scratch for the keyword.
	ModeGenerate Mode = "generate"

	// ModeRefresh rewrites existing content supplied with the request.
	ModeRefresh Mode = "refresh"
)

// IsValid returns true if the mode is recognized.
func (m Mode) IsValid() bool {
	return m == ModeGenerate || m == ModeRefresh
}

// Request is the immutable input for one content job. It is absorbed
// into execution and never persisted on its own; the correlation ids
// and timestamps are copied onto the Record at creation.
type Request struct {
	// Keyword is the target search keyword the pipeline optimizes for.
	Keyword string `json:"keyword"`

	// Mode is either "generate" or "refresh".
	Mode Mode `json:"mode"`

	// Model optionally selects which LLM the pipeline should use.
	Model string `json:"model,omitempty"`

	// ExistingContent carries the current article body for refresh jobs.
	ExistingContent string `json:"existingContent,omitempty"`

	// Aux holds work-function-specific fields the orchestrator does not
	// interpret (brand voice, internal links, schema hints, ...).
	Aux json.RawMessage `json:"aux,omitempty"`

	// RequestID and ClientID are caller-supplied correlation tokens,
	// echoed back on the acknowledgement and on every status read.
	RequestID string `json:"requestId"`
	ClientID  string `json:"clientId"`

	// SubmittedAt is the caller's submission timestamp in milliseconds
	// since epoch. Optional; informational only.
	SubmittedAt int64 `json:"submittedAt,omitempty"`
}

// Validate checks the request has the required shape.
// Returns an error describing the first violated rule.
func (r *Request) Validate() error {
	if r.Keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeGenerate, ModeRefresh, r.Mode)
	}
	if r.RequestID == "" {
		return fmt.Errorf("requestId is required")
	}
	if r.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if r.Mode == ModeRefresh && r.ExistingContent == "" {
		return fmt.Errorf("existingContent is required for refresh jobs")
	}
	if len(r.Aux) > 0 && !json.Valid(r.Aux) {
		return fmt.Errorf("aux must be valid JSON")
	}
	return nil
}

// Record is the state machine instance for one job. The orchestrator is
// its sole owner; every mutation goes through the methods below and is
// written through to the durable store before it counts as committed.
//
// All timestamps are milliseconds since epoch; zero means unset.
type Record struct {
	// ID uniquely identifies this job. Assigned once at creation,
	// never reused. ULIDs keep ids time-sortable.
	ID string `json:"id"`

	// RequestID and ClientID are copied verbatim from the Request.
	RequestID string `json:"requestId"`
	ClientID  string `json:"clientId"`

	// Status tracks the current lifecycle status (see state package).
	Status state.Status `json:"status"`

	// Step, TotalSteps and StepName are the progress indicators updated
	// on every progress callback. Step is not reset across retries.
	Step       int    `json:"step"`
	TotalSteps int    `json:"totalSteps"`
	StepName   string `json:"stepName,omitempty"`

	// Result is the opaque success payload. Set exactly once, on the
	// transition to completed. Mutually exclusive with Error.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the failure description. Set exactly once, on the
	// transition to failed. Mutually exclusive with Result.
	Error *string `json:"error,omitempty"`

	CreatedAt   int64 `json:"createdAt"`
	StartedAt   int64 `json:"startedAt,omitempty"`
	CompletedAt int64 `json:"completedAt,omitempty"`

	// RetryCount is how many retry attempts have been scheduled so far.
	// Monotonically increasing, bounded by MaxRetries.
	RetryCount int `json:"retryCount"`

	// MaxRetries is the retry ceiling fixed at creation.
	MaxRetries int `json:"maxRetries"`

	// LastAttemptAt is when the most recent retry was scheduled.
	LastAttemptAt int64 `json:"lastAttemptAt,omitempty"`
}

// NewRecord creates a queued record for the given request.
func NewRecord(id string, req *Request, maxRetries int, now time.Time) *Record {
	return &Record{
		ID:         id,
		RequestID:  req.RequestID,
		ClientID:   req.ClientID,
		Status:     state.Queued,
		MaxRetries: maxRetries,
		CreatedAt:  now.UnixMilli(),
	}
}

// Begin marks the start of execution: queued -> processing.
// StartedAt is set only on the first attempt.
func (r *Record) Begin(now time.Time) {
	r.Status = state.Processing
	if r.StartedAt == 0 {
		r.StartedAt = now.UnixMilli()
		r.Step = 1
	}
}

// Progress applies one progress tick from the work function.
func (r *Record) Progress(step, totalSteps int, name string) {
	r.Step = step
	r.TotalSteps = totalSteps
	r.StepName = name
}

// Complete transitions the record to its successful terminal status.
func (r *Record) Complete(result json.RawMessage, now time.Time) {
	r.Status = state.Completed
	r.Result = result
	r.CompletedAt = now.UnixMilli()
}

// Fail transitions the record to its failed terminal status.
func (r *Record) Fail(err error, now time.Time) {
	msg := err.Error()
	r.Status = state.Failed
	r.Error = &msg
	r.CompletedAt = now.UnixMilli()
}

// CanRetry returns true if the retry budget is not yet exhausted.
func (r *Record) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// ScheduleRetry consumes one unit of retry budget. The record stays in
// processing; the caller is responsible for the delayed re-execution.
func (r *Record) ScheduleRetry(now time.Time) {
	r.RetryCount++
	r.LastAttemptAt = now.UnixMilli()
}

// IsTerminal returns true if the record reached completed or failed.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Clone returns a deep copy. Reads hand out clones so callers can never
// mutate the orchestrator-owned instance.
func (r *Record) Clone() *Record {
	c := *r
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Error != nil {
		msg := *r.Error
		c.Error = &msg
	}
	return &c
}

// Validate checks the record's invariants.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if r.RequestID == "" {
		return fmt.Errorf("record requestId is required")
	}
	if r.ClientID == "" {
		return fmt.Errorf("record clientId is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid record status: %s", r.Status)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", r.MaxRetries)
	}
	if r.RetryCount < 0 || r.RetryCount > r.MaxRetries {
		return fmt.Errorf("retry count %d out of range [0, %d]", r.RetryCount, r.MaxRetries)
	}
	if r.Result != nil && r.Error != nil {
		return fmt.Errorf("result and error are mutually exclusive")
	}
	if r.Result != nil && r.Status != state.Completed {
		return fmt.Errorf("result set on non-completed record (status %s)", r.Status)
	}
	if r.Error != nil && r.Status != state.Failed {
		return fmt.Errorf("error set on non-failed record (status %s)", r.Status)
	}
	if r.CreatedAt == 0 {
		return fmt.Errorf("createdAt must be set")
	}
	return nil
}

// Encode serializes the record to its durable JSON form. HTML escaping
// is disabled so result payloads round-trip byte for byte.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode deserializes a record from its durable JSON form.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
