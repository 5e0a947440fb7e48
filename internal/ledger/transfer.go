package ledger

import (
	"fmt"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transfer moves money between two envelopes of a budget.
//
// A transfer between two regular envelopes creates two ledger entries that
// share a group id and sum to zero. The Unallocated envelope never has
// ledger entries since its balance is computed, so transfers from or to it
// are one-sided: only the regular envelope's entry is written. These
// one-sided entries are exactly what claw-back reverses when the income
// they distributed is deleted later.
func Transfer(db *gorm.DB, budgetID, fromID, toID uuid.UUID, amount int64, date types.Date, memo string) ([]models.Allocation, error) {
	if amount <= 0 {
		return nil, ErrTransferAmountNotPositive
	}

	if fromID == toID {
		return nil, ErrTransferSameEnvelope
	}

	var entries []models.Allocation

	err := db.Transaction(func(tx *gorm.DB) error {
		var from, to models.Envelope
		err := tx.Where("budget_id = ?", budgetID).First(&from, fromID).Error
		if err != nil {
			return fmt.Errorf("source envelope: %w", err)
		}

		err = tx.Where("budget_id = ?", budgetID).First(&to, toID).Error
		if err != nil {
			return fmt.Errorf("destination envelope: %w", err)
		}

		groupID := uuid.New()

		if !from.IsUnallocated {
			entry := models.Allocation{
				BudgetID:       budgetID,
				EnvelopeID:     from.ID,
				Amount:         -amount,
				Date:           date,
				GroupID:        groupID,
				ExecutionOrder: 0,
				Memo:           memo,
			}

			err = tx.Create(&entry).Error
			if err != nil {
				return err
			}

			err = addToBalance(tx, from.ID, -amount)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		if !to.IsUnallocated {
			entry := models.Allocation{
				BudgetID:       budgetID,
				EnvelopeID:     to.ID,
				Amount:         amount,
				Date:           date,
				GroupID:        groupID,
				ExecutionOrder: 1,
				Memo:           memo,
			}

			err = tx.Create(&entry).Error
			if err != nil {
				return err
			}

			err = addToBalance(tx, to.ID, amount)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
