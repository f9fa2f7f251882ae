package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReachableMark and UnreachableMark annotate phone numbers in the stored
// phone field: "11987654321 ✅, 1134567890 ❌".
const (
	ReachableMark   = "✅"
	UnreachableMark = "❌"
)

// LifecycleStatus tracks a client's position in the sales funnel. It is
// owned by the CRM screens around the pipeline; the enricher only reads it.
type LifecycleStatus string

const (
	LifecycleNone    LifecycleStatus = ""
	LifecycleSuccess LifecycleStatus = "success"
	LifecycleFailure LifecycleStatus = "failure"
)

// ClientRecord is a stored client keyed by its 11-digit CPF.
type ClientRecord struct {
	ID           int64            `json:"id"`
	CPF          string           `json:"cpf"`
	Name         *string          `json:"name,omitempty"`
	BirthDate    *string          `json:"birth_date,omitempty"` // ISO YYYY-MM-DD
	Income       *decimal.Decimal `json:"income,omitempty"`
	Score        *int             `json:"score,omitempty"`
	Phone        *string          `json:"phone,omitempty"` // comma-separated "digits mark" tokens
	Checked      bool             `json:"checked"`
	OwnerID      int64            `json:"owner_id"`
	AssignmentID *int64           `json:"assignment_id,omitempty"`
	Status       LifecycleStatus  `json:"status,omitempty"`
	CardBIN      *string          `json:"card_bin,omitempty"`
	CardExpiry   *string          `json:"card_expiry,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// HasName reports whether the record holds a non-empty name.
func (c ClientRecord) HasName() bool {
	return c.Name != nil && *c.Name != ""
}

// HasPhone reports whether the record holds a non-empty phone field.
func (c ClientRecord) HasPhone() bool {
	return c.Phone != nil && *c.Phone != ""
}

// RecordUpdate is a partial field set to apply to a stored client.
// Nil pointers mean "leave unchanged"; Checked is always written.
type RecordUpdate struct {
	Name      *string          `json:"name,omitempty"`
	BirthDate *string          `json:"birth_date,omitempty"`
	Income    *decimal.Decimal `json:"income,omitempty"`
	Score     *int             `json:"score,omitempty"`
	Phone     *string          `json:"phone,omitempty"`
	Checked   bool             `json:"checked"`
}

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusFetching   RunStatus = "fetching_worklist"
	RunStatusRunning    RunStatus = "running"
	RunStatusCancelling RunStatus = "cancelling"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run represents a single orchestrator run over one owner scope.
type Run struct {
	ID        string        `json:"id"`
	OwnerID   int64         `json:"owner_id"`
	Status    RunStatus     `json:"status"`
	Outcome   *BatchOutcome `json:"outcome,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BatchOutcome aggregates the result of one orchestrator run.
type BatchOutcome struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Excluded  int      `json:"excluded"` // deleted because the lookup confirmed no data exists
	Cancelled bool     `json:"cancelled"`
	Errors    []string `json:"errors,omitempty"` // bounded; see enrich.Config.MaxErrors
}
