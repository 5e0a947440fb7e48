package ledger

import (
	"errors"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/waterfall"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Recalculate verifies and repairs all balance invariants of a budget.
//
// It removes ledger entries whose transaction no longer exists, recreates
// missing credit card moves, recomputes every envelope balance from the
// ledger, and claws back over-distribution when the Ready-to-Assign balance
// has gone negative. It is idempotent: on a consistent budget it changes
// nothing and returns no corrections.
func Recalculate(db *gorm.DB, budgetID uuid.UUID) ([]Correction, error) {
	var corrections []Correction

	err := db.Transaction(func(tx *gorm.DB) error {
		err := deleteOrphanEntries(tx, budgetID)
		if err != nil {
			return err
		}

		err = recreateCreditCardMoves(tx, budgetID)
		if err != nil {
			return err
		}

		var envelopes []models.Envelope
		err = tx.Where("budget_id = ? AND NOT is_unallocated", budgetID).Find(&envelopes).Error
		if err != nil {
			return err
		}

		for _, envelope := range envelopes {
			balance, err := envelope.ComputedBalance(tx)
			if err != nil {
				return err
			}

			if balance == envelope.CurrentBalance {
				continue
			}

			err = tx.Model(&models.Envelope{}).
				Where("id = ?", envelope.ID).
				Update("current_balance", balance).Error
			if err != nil {
				return err
			}

			envelopeID := envelope.ID
			corrections = append(corrections, Correction{
				EnvelopeID:   &envelopeID,
				EnvelopeName: envelope.Name,
				OldBalance:   envelope.CurrentBalance,
				NewBalance:   balance,
			})
		}

		unallocated, err := UnallocatedBalance(tx, budgetID)
		if err != nil {
			return err
		}

		if unallocated < 0 {
			clawed, err := clawBack(tx, budgetID, -unallocated)
			if err != nil {
				return err
			}

			corrections = append(corrections, clawed...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return corrections, nil
}

// deleteOrphanEntries removes ledger entries that reference a transaction
// that has been deleted. The balance repair afterwards picks up the change.
func deleteOrphanEntries(tx *gorm.DB, budgetID uuid.UUID) error {
	var orphans []models.Allocation
	err := tx.
		Where("budget_id = ? AND transaction_id IS NOT NULL", budgetID).
		Where("transaction_id NOT IN (?)", tx.Model(&models.Transaction{}).Select("id").Where("budget_id = ?", budgetID)).
		Find(&orphans).Error
	if err != nil {
		return err
	}

	for _, orphan := range orphans {
		log.Warn().
			Uint64("allocation", orphan.ID).
			Str("envelope", orphan.EnvelopeID.String()).
			Msg("deleting ledger entry of deleted transaction")

		err = tx.Delete(&models.Allocation{}, orphan.ID).Error
		if err != nil {
			return err
		}
	}

	return nil
}

// recreateCreditCardMoves ensures every payment transaction on a credit
// card with a tracking envelope has its releasing entry on that envelope.
func recreateCreditCardMoves(tx *gorm.DB, budgetID uuid.UUID) error {
	var cards []models.Account
	err := tx.Where("budget_id = ? AND credit_card", budgetID).Find(&cards).Error
	if err != nil {
		return err
	}

	for _, card := range cards {
		tracking, err := card.TrackingEnvelope(tx)
		if errors.Is(err, models.ErrResourceNotFound) {
			// Cards without a tracking envelope have no moves to repair
			continue
		}
		if err != nil {
			return err
		}

		var payments []models.Transaction
		err = tx.Where("account_id = ? AND amount > 0", card.ID).Find(&payments).Error
		if err != nil {
			return err
		}

		for _, payment := range payments {
			var count int64
			err = tx.Model(&models.Allocation{}).
				Where("transaction_id = ? AND envelope_id = ? AND amount < 0", payment.ID, tracking.ID).
				Count(&count).Error
			if err != nil {
				return err
			}

			if count > 0 {
				continue
			}

			log.Warn().
				Str("transaction", payment.ID.String()).
				Str("envelope", tracking.ID.String()).
				Msg("recreating missing credit card payment entry")

			entry := models.Allocation{
				BudgetID:      budgetID,
				EnvelopeID:    tracking.ID,
				Amount:        -payment.Amount,
				Date:          payment.Date,
				TransactionID: &payment.ID,
				Memo:          "Credit card payment",
			}

			err = tx.Create(&entry).Error
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// clawBack reverses distributed money until the Ready-to-Assign deficit is
// covered.
//
// Only one-sided entries are candidates: positive entries without a linked
// transaction whose group has no negative counterpart, which is exactly
// what distributing from the Unallocated pool writes. Entries are reversed
// newest first, partially where the last one is larger than the remaining
// deficit.
func clawBack(tx *gorm.DB, budgetID uuid.UUID, deficit int64) ([]Correction, error) {
	var candidates []models.Allocation
	err := tx.
		Where("budget_id = ? AND transaction_id IS NULL AND amount > 0", budgetID).
		Where("NOT EXISTS (SELECT 1 FROM allocations siblings WHERE siblings.group_id = allocations.group_id AND siblings.amount < 0)").
		Order("id DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	reversed := make(map[uuid.UUID]int64)
	for _, candidate := range candidates {
		if deficit <= 0 {
			break
		}

		amount := min(candidate.Amount, deficit)
		if amount == candidate.Amount {
			err = tx.Delete(&models.Allocation{}, candidate.ID).Error
		} else {
			err = tx.Model(&models.Allocation{}).
				Where("id = ?", candidate.ID).
				Update("amount", candidate.Amount-amount).Error
		}
		if err != nil {
			return nil, err
		}

		err = addToBalance(tx, candidate.EnvelopeID, -amount)
		if err != nil {
			return nil, err
		}

		reversed[candidate.EnvelopeID] += amount
		deficit -= amount
	}

	var corrections []Correction
	for envelopeID, amount := range reversed {
		var envelope models.Envelope
		err = tx.First(&envelope, envelopeID).Error
		if err != nil {
			return nil, err
		}

		id := envelopeID
		corrections = append(corrections, Correction{
			EnvelopeID:   &id,
			EnvelopeName: envelope.Name,
			OldBalance:   envelope.CurrentBalance + amount,
			NewBalance:   envelope.CurrentBalance,
		})

		log.Info().
			Str("envelope", envelope.Name).
			Str("amount", waterfall.FormatAmount(amount)).
			Msg("clawed back over-distributed funds")
	}

	return corrections, nil
}
