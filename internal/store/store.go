// Package store persists client records and enrichment runs behind a
// driver-selectable interface (Postgres or SQLite).
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/leadfactor/enrich-cli/internal/model"
)

// ErrNotFound is returned when an update or delete matches no row.
var ErrNotFound = eris.New("store: not found")

// PhonePredicate filters the worklist on the stored phone field.
type PhonePredicate int

const (
	// PhoneAny applies no phone filter.
	PhoneAny PhonePredicate = iota
	// PhoneMissing selects records whose phone field is null or empty.
	PhoneMissing
	// PhonePresent selects records whose phone field is non-null and non-empty.
	PhonePresent
)

// Filter selects the worklist for an orchestrator run.
type Filter struct {
	OwnerID int64
	Phone   PhonePredicate
	Checked *bool // nil = any
	Limit   int   // 0 = no limit
}

// ClientSeed is one bulk-imported row.
type ClientSeed struct {
	CPF   string
	Name  *string
	Phone *string
}

// Store defines the persistence operations used by the pipeline.
type Store interface {
	// Worklist returns records matching the filter, oldest first.
	Worklist(ctx context.Context, f Filter) ([]model.ClientRecord, error)
	// InsertClients bulk-inserts seeds for an owner, skipping CPFs that
	// already exist. Returns the number of rows inserted.
	InsertClients(ctx context.Context, ownerID int64, seeds []ClientSeed) (int, error)
	// UpdateClient applies a partial field set to one record.
	UpdateClient(ctx context.Context, id int64, upd model.RecordUpdate) error
	// DeleteClient removes one record.
	DeleteClient(ctx context.Context, id int64) error
	// ResetChecked clears the checked flag for an owner so records become
	// eligible for re-enrichment.
	ResetChecked(ctx context.Context, ownerID int64) (int64, error)

	// Runs
	CreateRun(ctx context.Context, ownerID int64) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, outcome *model.BatchOutcome) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
