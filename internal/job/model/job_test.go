package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articleforge/articleforge/internal/job/state"
)

func validRequest() *Request {
	return &Request{
		Keyword:   "standing desk",
		Mode:      ModeGenerate,
		RequestID: "r1",
		ClientID:  "c1",
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid generate", func(r *Request) {}, ""},
		{"valid refresh", func(r *Request) {
			r.Mode = ModeRefresh
			r.ExistingContent = "<p>old</p>"
		}, ""},
		{"missing keyword", func(r *Request) { r.Keyword = "" }, "keyword is required"},
		{"bad mode", func(r *Request) { r.Mode = "rewrite" }, "mode must be"},
		{"missing requestId", func(r *Request) { r.RequestID = "" }, "requestId is required"},
		{"missing clientId", func(r *Request) { r.ClientID = "" }, "clientId is required"},
		{"refresh without content", func(r *Request) { r.Mode = ModeRefresh }, "existingContent is required"},
		{"invalid aux json", func(r *Request) { r.Aux = json.RawMessage(`{broken`) }, "aux must be valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 5, now)

	assert.Equal(t, "job1", rec.ID)
	assert.Equal(t, "r1", rec.RequestID)
	assert.Equal(t, "c1", rec.ClientID)
	assert.Equal(t, state.Queued, rec.Status)
	assert.Equal(t, 5, rec.MaxRetries)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, now.UnixMilli(), rec.CreatedAt)
	assert.Zero(t, rec.StartedAt)
	assert.NoError(t, rec.Validate())
}

func TestRecordLifecycle(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 2, now)

	rec.Begin(now)
	assert.Equal(t, state.Processing, rec.Status)
	assert.Equal(t, now.UnixMilli(), rec.StartedAt)
	assert.Equal(t, 1, rec.Step)

	rec.Progress(3, 8, "draft")
	assert.Equal(t, 3, rec.Step)
	assert.Equal(t, 8, rec.TotalSteps)
	assert.Equal(t, "draft", rec.StepName)

	// StartedAt is set once; a retry re-entering Begin keeps it.
	started := rec.StartedAt
	later := now.Add(time.Minute)
	rec.Begin(later)
	assert.Equal(t, started, rec.StartedAt)
	assert.Equal(t, 3, rec.Step, "step is not reset across retries")

	rec.Complete(json.RawMessage(`{"html":"<p>ok</p>"}`), later)
	assert.Equal(t, state.Completed, rec.Status)
	assert.Equal(t, later.UnixMilli(), rec.CompletedAt)
	assert.Nil(t, rec.Error)
	assert.True(t, rec.IsTerminal())
	assert.NoError(t, rec.Validate())
}

func TestRecordFail(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 1, now)
	rec.Begin(now)

	rec.Fail(errors.New("boom"), now)
	assert.Equal(t, state.Failed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "boom")
	assert.Nil(t, rec.Result)
	assert.True(t, rec.IsTerminal())
	assert.NoError(t, rec.Validate())
}

func TestRecordRetryBudget(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 2, now)
	rec.Begin(now)

	require.True(t, rec.CanRetry())
	rec.ScheduleRetry(now)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Equal(t, now.UnixMilli(), rec.LastAttemptAt)

	require.True(t, rec.CanRetry())
	rec.ScheduleRetry(now)
	assert.Equal(t, 2, rec.RetryCount)

	assert.False(t, rec.CanRetry())
	assert.NoError(t, rec.Validate())
}

func TestRecordValidateInvariants(t *testing.T) {
	now := time.Now()

	rec := NewRecord("job1", validRequest(), 3, now)
	rec.Result = json.RawMessage(`{}`)
	assert.ErrorContains(t, rec.Validate(), "result set on non-completed")

	rec = NewRecord("job1", validRequest(), 3, now)
	msg := "boom"
	rec.Error = &msg
	assert.ErrorContains(t, rec.Validate(), "error set on non-failed")

	rec = NewRecord("job1", validRequest(), 3, now)
	rec.Status = state.Completed
	rec.Result = json.RawMessage(`{}`)
	rec.Error = &msg
	assert.ErrorContains(t, rec.Validate(), "mutually exclusive")

	rec = NewRecord("job1", validRequest(), 3, now)
	rec.RetryCount = 4
	assert.ErrorContains(t, rec.Validate(), "retry count")

	rec = NewRecord("", validRequest(), 3, now)
	assert.ErrorContains(t, rec.Validate(), "ID is required")
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 5, now)
	rec.Begin(now)
	rec.Progress(4, 8, "seo-score")
	rec.ScheduleRetry(now)
	rec.Complete(json.RawMessage(`{"html":"<p>ok</p>"}`), now.Add(time.Second))

	data, err := rec.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	// HTML in the result payload is stored verbatim, not \u-escaped.
	assert.Contains(t, string(data), `"<p>ok</p>"`)
	assert.NotContains(t, string(data), `<`)
}

func TestRecordCloneIsDeep(t *testing.T) {
	now := time.Now()
	rec := NewRecord("job1", validRequest(), 5, now)
	rec.Begin(now)
	rec.Complete(json.RawMessage(`{"a":1}`), now)

	clone := rec.Clone()
	clone.Result[1] = 'x'
	clone.Step = 99

	assert.Equal(t, json.RawMessage(`{"a":1}`), rec.Result)
	assert.Equal(t, 1, rec.Step)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorContains(t, err, "decode record")
}
