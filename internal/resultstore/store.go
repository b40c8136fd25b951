// Package resultstore persists the output of completed jobs, one artifact
// per job id.
package resultstore

import (
	"context"
	"errors"
)

// ErrNotReady is returned by Load when the artifact for a job is absent or
// not yet fully written. Callers should poll again.
var ErrNotReady = errors.New("result not ready")

// Store defines the persistence operations for job results. Payloads are
// JSON documents.
type Store interface {
	Save(ctx context.Context, jobID int64, payload []byte) error
	Load(ctx context.Context, jobID int64) ([]byte, error)
	Close() error
}
