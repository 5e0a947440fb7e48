// Package ledger maintains the balance invariants of the budget.
//
// The Allocation ledger is the source of truth: every envelope's cached
// balance must equal the sum of its ledger entries at rest. All operations
// in this package run inside a single gorm transaction so that no partial
// ledger state is ever visible, and the repair routines (Recalculate,
// claw-back) correct drift instead of failing.
package ledger

import (
	"errors"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNothingToAllocate is returned when there is no money to
	// distribute. It is a typed "nothing to do" condition, not a failure.
	ErrNothingToAllocate = errors.New("there are no unallocated funds to distribute")

	// ErrNoActiveRules is returned when the budget has no active
	// allocating rules configured.
	ErrNoActiveRules = errors.New("there are no active allocation rules for this budget")

	ErrAllocationSumMismatch     = errors.New("the allocation amounts must sum to the transaction amount")
	ErrTransferAmountNotPositive = errors.New("the transfer amount must be larger than zero")
	ErrTransferSameEnvelope      = errors.New("the source and destination envelope of a transfer must be different")
	ErrNotCreditCardPayment      = errors.New("credit card payments must be positive transactions on a credit card account")
)

// Correction describes one balance repair made by Recalculate or claw-back.
// A nil EnvelopeID refers to the computed Unallocated balance.
type Correction struct {
	EnvelopeID   *uuid.UUID `json:"envelopeId"`
	EnvelopeName string     `json:"envelopeName"`
	OldBalance   int64      `json:"oldBalance"`
	NewBalance   int64      `json:"newBalance"`
}

// UnallocatedBalance returns the Ready-to-Assign balance of the budget.
//
// It is never stored: it is the sum of all on-budget account balances,
// excluding credit card accounts, minus the sum of all envelope balances.
// Credit card accounts are excluded from the asset side because card
// spending is a zero-sum move between envelopes, not a change in available
// cash.
func UnallocatedBalance(db *gorm.DB, budgetID uuid.UUID) (int64, error) {
	var accounts int64
	err := db.Model(&models.Account{}).
		Where("budget_id = ? AND on_budget AND NOT credit_card", budgetID).
		Select("COALESCE(SUM(cleared_balance + uncleared_balance), 0)").
		Scan(&accounts).Error
	if err != nil {
		return 0, err
	}

	var envelopes int64
	err = db.Model(&models.Envelope{}).
		Where("budget_id = ? AND NOT is_unallocated", budgetID).
		Select("COALESCE(SUM(current_balance), 0)").
		Scan(&envelopes).Error
	if err != nil {
		return 0, err
	}

	return accounts - envelopes, nil
}

// addToBalance adjusts the cached balance of an envelope. It is the only
// place the write path touches the cache, the repair path overwrites it
// from Envelope.ComputedBalance instead.
func addToBalance(tx *gorm.DB, envelopeID uuid.UUID, amount int64) error {
	return tx.Model(&models.Envelope{}).
		Where("id = ?", envelopeID).
		Update("current_balance", gorm.Expr("current_balance + ?", amount)).Error
}

// periodAllocatedIncome returns the income allocated to the envelope within
// the period: positive ledger entries linked to a transaction whose amount
// is also positive, with the transaction date inside [Start, End).
func periodAllocatedIncome(db *gorm.DB, envelopeID uuid.UUID, period types.Period) (int64, error) {
	var sum int64
	err := db.Model(&models.Allocation{}).
		Joins("JOIN transactions ON transactions.id = allocations.transaction_id AND transactions.deleted_at IS NULL").
		Where("allocations.envelope_id = ? AND allocations.amount > 0 AND transactions.amount > 0", envelopeID).
		Where("transactions.date >= ? AND transactions.date < ?", period.Start, period.End).
		Select("COALESCE(SUM(allocations.amount), 0)").
		Scan(&sum).Error

	return sum, err
}
