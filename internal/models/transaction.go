package models

import (
	"errors"
	"strings"

	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrOccurrenceAlreadyPosted = errors.New("this occurrence of the scheduled transaction has already been posted")

// Transaction represents a posted transaction on an account.
//
// Editing of transactions lives outside of this engine. The engine posts
// and deletes the rows that ledger entries link to: income detection for
// period caps reads the sign of Amount, and deleting a transaction removes
// its ledger entries, see ledger.DeleteTransaction.
type Transaction struct {
	DefaultModel
	Budget                 Budget    `json:"-"`
	BudgetID               uuid.UUID
	Account                Account `json:"-"`
	AccountID              uuid.UUID
	Date                   types.Date `gorm:"uniqueIndex:transaction_schedule_occurrence"`
	Amount                 int64      // Signed, in minor units. Positive = money into the account
	Memo                   string
	ScheduledTransactionID *uuid.UUID `gorm:"uniqueIndex:transaction_schedule_occurrence"` // Set when posted from a schedule
}

// BeforeSave defaults the date and trims the memo.
func (t *Transaction) BeforeSave(_ *gorm.DB) error {
	t.Memo = strings.TrimSpace(t.Memo)

	if t.Date.IsZero() {
		t.Date = types.Today()
	}

	return nil
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	_ = t.DefaultModel.BeforeCreate(tx)

	toSave := tx.Statement.Dest.(*Transaction)
	return t.checkIntegrity(tx, *toSave)
}

// checkIntegrity verifies references to other resources
func (t *Transaction) checkIntegrity(tx *gorm.DB, toSave Transaction) error {
	err := tx.First(&Budget{}, toSave.BudgetID).Error
	if err != nil {
		return err
	}

	return tx.First(&Account{}, toSave.AccountID).Error
}

// AfterCreate books the transaction amount on the account so that the
// computed Ready-to-Assign balance follows posted income and spending.
func (t *Transaction) AfterCreate(tx *gorm.DB) error {
	return addToAccountBalance(tx, t.AccountID, t.Amount)
}

// AfterDelete reverses the account-side booking of AfterCreate.
func (t *Transaction) AfterDelete(tx *gorm.DB) error {
	return addToAccountBalance(tx, t.AccountID, -t.Amount)
}

func addToAccountBalance(tx *gorm.DB, accountID uuid.UUID, amount int64) error {
	return tx.Model(&Account{}).
		Where("id = ?", accountID).
		Update("cleared_balance", gorm.Expr("cleared_balance + ?", amount)).Error
}

// Allocations returns all ledger entries linked to the transaction.
func (t Transaction) Allocations(db *gorm.DB) ([]Allocation, error) {
	var allocations []Allocation
	err := db.Where("transaction_id = ?", t.ID).Order("execution_order ASC, id ASC").Find(&allocations).Error
	return allocations, err
}
