// Package persist stores fitted transformer models and step output
// bundles across process runs, keyed by (step name, record kind).
//
// Records have no expiry, no versioning, and no staleness check: a stored
// record is valid from the store's point of view until the caller clears
// it. Managing staleness when input data changes is deliberately left to
// the operator.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the two record slots a step owns.
type Kind string

const (
	// KindModel holds serialized fitted transformer state.
	KindModel Kind = "model"
	// KindOutput holds a serialized step output bundle.
	KindOutput Kind = "output"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Record describes one stored slot, for listings.
type Record struct {
	Step    string    `json:"step"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store is a durable per-step slot store. One Store instance corresponds
// to one experiment directory (or bucket prefix); pipelines that must not
// share state use distinct stores.
type Store interface {
	Put(ctx context.Context, step string, kind Kind, data []byte) error
	Get(ctx context.Context, step string, kind Kind) ([]byte, error)
	Exists(ctx context.Context, step string, kind Kind) (bool, error)
	Clear(ctx context.Context, step string, kind Kind) error
	List(ctx context.Context) ([]Record, error)
}

// StoreError reports an I/O failure reading or writing a record. The
// engine never falls back to recomputation on a store failure; the error
// surfaces to the caller.
type StoreError struct {
	Op   string
	Step string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("persist %s %s/%s: %v", e.Op, e.Step, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
