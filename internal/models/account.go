package models

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account represents an account of the budget, e.g. a bank account or a
// credit card.
//
// Account management happens outside of this engine. The engine maintains
// the cleared balance as transactions are posted and deleted, and checks
// the flags relevant for budget math.
type Account struct {
	DefaultModel
	Budget           Budget    `json:"-"`
	BudgetID         uuid.UUID `gorm:"uniqueIndex:account_name_budget_id"`
	Name             string    `gorm:"uniqueIndex:account_name_budget_id"`
	Note             string
	OnBudget         bool  // Whether the account counts towards the money available for budgeting
	CreditCard       bool  // Credit card accounts are excluded from the asset side of the budget
	ClearedBalance   int64 // Cleared balance in minor units, maintained by the account service
	UnclearedBalance int64 // Uncleared balance in minor units, maintained by the account service
	Archived         bool
}

var ErrAccountNameNotUnique = errors.New("the account name must be unique for the budget")

// Balance returns the working balance of the account in minor units.
func (a Account) Balance() int64 {
	return a.ClearedBalance + a.UnclearedBalance
}

// BeforeSave ensures consistency for the account.
//
// A credit card is never on budget, card spending is modeled as a zero-sum
// move between envelopes instead.
//
// It trims whitespace from all strings.
func (a *Account) BeforeSave(_ *gorm.DB) error {
	if a.CreditCard {
		a.OnBudget = false
	}

	a.Name = strings.TrimSpace(a.Name)
	a.Note = strings.TrimSpace(a.Note)

	return nil
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	_ = a.DefaultModel.BeforeCreate(tx)

	toSave := tx.Statement.Dest.(*Account)
	return a.checkIntegrity(tx, *toSave)
}

// BeforeUpdate verifies the state of the account before
// committing an update to the database.
func (a *Account) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("BudgetID") {
		toSave := tx.Statement.Dest.(Account)
		return a.checkIntegrity(tx, toSave)
	}

	return nil
}

// checkIntegrity verifies references to other resources
func (a *Account) checkIntegrity(tx *gorm.DB, toSave Account) error {
	return tx.First(&Budget{}, toSave.BudgetID).Error
}

// TrackingEnvelope returns the envelope tracking this credit card account.
// If the card has none, the error wraps ErrResourceNotFound.
func (a Account) TrackingEnvelope(db *gorm.DB) (Envelope, error) {
	var envelope Envelope
	err := db.Where("linked_account_id = ?", a.ID).First(&envelope).Error
	return envelope, err
}
