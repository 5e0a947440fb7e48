package models

import (
	"strings"

	"gorm.io/gorm"
)

// UnallocatedEnvelopeName is the reserved name of the envelope holding
// money that has not been assigned to any other envelope yet. The balance
// of this envelope is never stored, it is always computed, see
// ledger.UnallocatedBalance.
const UnallocatedEnvelopeName = "Unallocated"

// Budget represents a budget
//
// A budget is the highest level of organization, all other
// resources reference it directly or transitively.
type Budget struct {
	DefaultModel
	Name string
	Note string
}

func (b *Budget) BeforeSave(_ *gorm.DB) error {
	b.Name = strings.TrimSpace(b.Name)
	b.Note = strings.TrimSpace(b.Note)

	return nil
}

// AfterCreate provisions the reserved "Unallocated" envelope for the budget.
// Exactly one exists per budget.
func (b *Budget) AfterCreate(tx *gorm.DB) error {
	return tx.Create(&Envelope{
		BudgetID:      b.ID,
		Name:          UnallocatedEnvelopeName,
		IsUnallocated: true,
	}).Error
}

// UnallocatedEnvelope returns the reserved "Unallocated" envelope of the budget.
func (b Budget) UnallocatedEnvelope(db *gorm.DB) (Envelope, error) {
	var envelope Envelope
	err := db.Where(&Envelope{BudgetID: b.ID, IsUnallocated: true}).First(&envelope).Error
	return envelope, err
}
