package store

import (
	"context"
	"errors"

	"github.com/articleforge/articleforge/internal/job/model"
)

// ErrNotFound is returned by Get when no record exists for the id.
var ErrNotFound = errors.New("job not found")

// Store is the durable mirror of job records. The orchestrator writes
// every mutation through before considering it committed; on a cold
// read miss it falls back here.
//
// The contract is a plain keyed upsert: one entry per job under the
// key "job:<id>", value = JSON-serialized record. Listing jobs is
// deliberately not part of the contract.
type Store interface {
	// Put upserts the record under its id.
	Put(ctx context.Context, rec *model.Record) error

	// Get retrieves the record for the id.
	// Returns ErrNotFound if no entry exists.
	Get(ctx context.Context, id string) (*model.Record, error)
}

// Key returns the namespaced storage key for a job id.
func Key(id string) string {
	return "job:" + id
}
