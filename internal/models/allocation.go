package models

import (
	"strings"
	"time"

	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Allocation is one signed ledger entry moving money into or out of an
// envelope. The ledger is append-mostly and the source of truth for all
// envelope balances.
//
// Unlike the other models, allocations use an auto-incrementing integer ID:
// the ID is time-ordered and doubles as the implicit timestamp where no
// transaction date applies, e.g. when claw-back walks entries most recent
// first. Allocations are deleted for real, never soft-deleted, since a
// soft-deleted ledger entry would still have to count towards balances or
// silently change them.
type Allocation struct {
	ID        uint64 `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	BudgetID         uuid.UUID `gorm:"index:allocation_budget_envelope,priority:1"`
	Envelope         Envelope  `json:"-"`
	EnvelopeID       uuid.UUID `gorm:"index:allocation_budget_envelope,priority:2"`
	Amount           int64     // Signed, in minor units. Positive = inflow to the envelope
	Date             types.Date
	GroupID          uuid.UUID  `gorm:"index"` // Correlates the sides of a transfer or credit card move
	TransactionID    *uuid.UUID `gorm:"index"` // Nil for manual or rule-driven moves
	AllocationRuleID *uuid.UUID // The rule that produced the entry, if any
	ExecutionOrder   uint       // Tie-break ordering within a group
	Memo             string
}

// BeforeSave defaults the date and trims the memo.
func (a *Allocation) BeforeSave(_ *gorm.DB) error {
	a.Memo = strings.TrimSpace(a.Memo)

	if a.Date.IsZero() {
		a.Date = types.Today()
	}

	return nil
}

func (a *Allocation) BeforeCreate(tx *gorm.DB) error {
	if a.GroupID == uuid.Nil {
		a.GroupID = uuid.New()
	}

	toSave := tx.Statement.Dest.(*Allocation)
	return tx.First(&Envelope{}, toSave.EnvelopeID).Error
}
