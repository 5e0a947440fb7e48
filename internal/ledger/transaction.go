package ledger

import (
	"errors"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllocationInput is one envelope assignment supplied with a transaction.
type AllocationInput struct {
	EnvelopeID uuid.UUID
	Amount     int64 // Signed, in minor units
	Memo       string
}

// PostTransaction persists a transaction together with its envelope
// assignments.
//
// When assignments are supplied, their amounts must sum to the transaction
// amount, otherwise ErrAllocationSumMismatch is returned before anything is
// written. An empty assignment set is allowed: income that lands in the
// Unallocated pool has no envelope.
//
// Spending on a credit card account with a linked tracking envelope
// additionally creates the offsetting entry on the tracking envelope in the
// same group, so the total envelope balance and Ready-to-Assign stay
// unchanged by card spending.
func PostTransaction(db *gorm.DB, transaction *models.Transaction, allocations []AllocationInput) ([]models.Allocation, error) {
	if len(allocations) > 0 {
		var sum int64
		for _, allocation := range allocations {
			sum += allocation.Amount
		}

		if sum != transaction.Amount {
			return nil, ErrAllocationSumMismatch
		}
	}

	var entries []models.Allocation

	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Create(transaction).Error
		if err != nil {
			return err
		}

		groupID := uuid.New()
		for i, allocation := range allocations {
			entry := models.Allocation{
				BudgetID:       transaction.BudgetID,
				EnvelopeID:     allocation.EnvelopeID,
				Amount:         allocation.Amount,
				Date:           transaction.Date,
				GroupID:        groupID,
				TransactionID:  &transaction.ID,
				ExecutionOrder: uint(i),
				Memo:           allocation.Memo,
			}

			err = tx.Create(&entry).Error
			if err != nil {
				return err
			}

			err = addToBalance(tx, allocation.EnvelopeID, allocation.Amount)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		// Credit card spending: pair the assignments with the opposite
		// entry on the card's tracking envelope
		if len(allocations) > 0 {
			var account models.Account
			err = tx.First(&account, transaction.AccountID).Error
			if err != nil {
				return err
			}

			if account.CreditCard {
				tracking, err := account.TrackingEnvelope(tx)
				if err != nil && !errors.Is(err, models.ErrResourceNotFound) {
					return err
				}

				if err == nil {
					entry := models.Allocation{
						BudgetID:       transaction.BudgetID,
						EnvelopeID:     tracking.ID,
						Amount:         -transaction.Amount,
						Date:           transaction.Date,
						GroupID:        groupID,
						TransactionID:  &transaction.ID,
						ExecutionOrder: uint(len(allocations)),
						Memo:           "Credit card move",
					}

					err = tx.Create(&entry).Error
					if err != nil {
						return err
					}

					err = addToBalance(tx, tracking.ID, -transaction.Amount)
					if err != nil {
						return err
					}

					entries = append(entries, entry)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// DeleteTransaction removes a transaction and all its ledger entries.
//
// If removing the entries leaves the Ready-to-Assign balance negative,
// which happens when deleted income was already distributed onwards, the
// ripple is clawed back, see clawBack. The corrections made are returned
// as data, deletion itself never fails because of them.
func DeleteTransaction(db *gorm.DB, budgetID, transactionID uuid.UUID) ([]Correction, error) {
	var corrections []Correction

	err := db.Transaction(func(tx *gorm.DB) error {
		var transaction models.Transaction
		err := tx.Where("budget_id = ?", budgetID).First(&transaction, transactionID).Error
		if err != nil {
			return err
		}

		entries, err := transaction.Allocations(tx)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			err = addToBalance(tx, entry.EnvelopeID, -entry.Amount)
			if err != nil {
				return err
			}

			err = tx.Delete(&models.Allocation{}, entry.ID).Error
			if err != nil {
				return err
			}
		}

		// Ledger entries are gone for real, so the transaction row
		// is removed for real as well
		err = tx.Unscoped().Delete(&transaction).Error
		if err != nil {
			return err
		}

		unallocated, err := UnallocatedBalance(tx, budgetID)
		if err != nil {
			return err
		}

		if unallocated < 0 {
			corrections, err = clawBack(tx, budgetID, -unallocated)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return corrections, nil
}
