package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articleforge/articleforge/internal/job/model"
)

func testRecord(id string) *model.Record {
	req := &model.Request{
		Keyword:   "standing desk",
		Mode:      model.ModeGenerate,
		RequestID: "r-" + id,
		ClientID:  "c1",
	}
	return model.NewRecord(id, req, 5, time.Now())
}

func TestMemoryPutGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	rec := testRecord("job1")
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestMemoryGetNotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPutOverwrites(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	rec := testRecord("job1")
	require.NoError(t, s.Put(ctx, rec))

	rec.Begin(time.Now())
	rec.Progress(3, 8, "draft")
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Step)
	assert.Equal(t, "draft", got.StepName)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoredCopyIsDetached(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	rec := testRecord("job1")
	rec.Begin(time.Now())
	rec.Complete(json.RawMessage(`{"html":"<p>ok</p>"}`), time.Now())
	require.NoError(t, s.Put(ctx, rec))

	// Mutating the caller's record must not affect the stored entry.
	rec.Step = 99

	got, err := s.Get(ctx, "job1")
	require.NoError(t, err)
	assert.NotEqual(t, 99, got.Step)
}

func TestKeyNamespace(t *testing.T) {
	assert.Equal(t, "job:abc", Key("abc"))
}
