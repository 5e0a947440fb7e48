package models

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Envelope represents an envelope in your budget.
//
// CurrentBalance is a materialized cache: for every envelope except the
// reserved "Unallocated" one it must equal the sum of the envelope's
// Allocation entries. The ledger is the source of truth, see
// Envelope.ComputedBalance and ledger.Recalculate.
type Envelope struct {
	DefaultModel
	Budget          Budget    `json:"-"`
	BudgetID        uuid.UUID `gorm:"uniqueIndex:envelope_name_budget_id"`
	Name            string    `gorm:"uniqueIndex:envelope_name_budget_id"`
	Note            string
	CurrentBalance  int64      // Cached balance in minor units
	TargetBalance   *int64     // Optional goal amount in minor units
	IsUnallocated   bool       // True for the reserved "Unallocated" envelope
	LinkedAccountID *uuid.UUID // Set if this envelope tracks a credit card account
	Archived        bool
}

var (
	ErrEnvelopeNameNotUnique        = errors.New("the envelope name must be unique for the budget")
	ErrEnvelopeNameReserved         = errors.New("the envelope name is reserved for the unallocated envelope")
	ErrUnallocatedEnvelopeExists    = errors.New("the budget already has an unallocated envelope")
	ErrUnallocatedEnvelopeProtected = errors.New("the unallocated envelope cannot be renamed, archived or deleted")
	ErrLinkedAccountNotCreditCard   = errors.New("envelopes can only be linked to credit card accounts")
	ErrLinkedAccountAlreadyTracked  = errors.New("the credit card account already has a tracking envelope")
	ErrTargetBalanceNegative        = errors.New("the target balance must not be negative")
)

// BeforeSave trims whitespace from all strings
func (e *Envelope) BeforeSave(_ *gorm.DB) error {
	e.Name = strings.TrimSpace(e.Name)
	e.Note = strings.TrimSpace(e.Note)

	if e.TargetBalance != nil && *e.TargetBalance < 0 {
		return ErrTargetBalanceNegative
	}

	return nil
}

func (e *Envelope) BeforeCreate(tx *gorm.DB) error {
	_ = e.DefaultModel.BeforeCreate(tx)

	toSave := tx.Statement.Dest.(*Envelope)

	if toSave.IsUnallocated {
		// Exactly one unallocated envelope per budget, with the reserved name
		var count int64
		err := tx.Model(&Envelope{}).Where(&Envelope{BudgetID: toSave.BudgetID, IsUnallocated: true}).Count(&count).Error
		if err != nil {
			return err
		}

		if count > 0 {
			return ErrUnallocatedEnvelopeExists
		}

		e.Name = UnallocatedEnvelopeName
	} else if strings.TrimSpace(toSave.Name) == UnallocatedEnvelopeName {
		return ErrEnvelopeNameReserved
	}

	return e.checkIntegrity(tx, *toSave)
}

// BeforeUpdate protects the unallocated envelope. It cannot be renamed,
// archived, unset or moved to another budget.
func (e *Envelope) BeforeUpdate(tx *gorm.DB) error {
	if e.IsUnallocated &&
		(tx.Statement.Changed("Name") || tx.Statement.Changed("Archived") ||
			tx.Statement.Changed("IsUnallocated") || tx.Statement.Changed("BudgetID")) {
		return ErrUnallocatedEnvelopeProtected
	}

	if tx.Statement.Changed("BudgetID") || tx.Statement.Changed("LinkedAccountID") {
		toSave := tx.Statement.Dest.(Envelope)
		return e.checkIntegrity(tx, toSave)
	}

	return nil
}

// BeforeDelete prevents the unallocated envelope from being deleted.
func (e *Envelope) BeforeDelete(_ *gorm.DB) error {
	if e.IsUnallocated {
		return ErrUnallocatedEnvelopeProtected
	}

	return nil
}

// checkIntegrity verifies references to other resources
func (e *Envelope) checkIntegrity(tx *gorm.DB, toSave Envelope) error {
	err := tx.First(&Budget{}, toSave.BudgetID).Error
	if err != nil {
		return err
	}

	if toSave.LinkedAccountID != nil {
		var account Account
		err = tx.First(&account, *toSave.LinkedAccountID).Error
		if err != nil {
			return err
		}

		if !account.CreditCard {
			return ErrLinkedAccountNotCreditCard
		}

		// One tracking envelope per card
		var count int64
		err = tx.Model(&Envelope{}).
			Where("linked_account_id = ? AND id != ?", *toSave.LinkedAccountID, e.ID).
			Count(&count).Error
		if err != nil {
			return err
		}

		if count > 0 {
			return ErrLinkedAccountAlreadyTracked
		}
	}

	return nil
}

// ComputedBalance returns the balance of the envelope as computed from its
// ledger entries. This is the single recompute function shared by the write
// path and the repair path.
func (e Envelope) ComputedBalance(tx *gorm.DB) (int64, error) {
	var balance int64
	err := tx.Model(&Allocation{}).
		Where(&Allocation{EnvelopeID: e.ID}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&balance).Error

	return balance, err
}
