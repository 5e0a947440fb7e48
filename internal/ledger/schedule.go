package ledger

import (
	"errors"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// PostDueOccurrences posts a transaction for every due occurrence of the
// budget's active schedules and advances their next date.
//
// Each occurrence is posted in its own transaction. The unique index on
// (scheduled_transaction_id, date) makes posting race-free: when two
// processes post the same occurrence, the loser sees
// models.ErrOccurrenceAlreadyPosted and simply moves on to the next date.
// Schedules with auto-allocation distribute posted income through the rule
// waterfall right away.
func PostDueOccurrences(db *gorm.DB, budgetID uuid.UUID, today types.Date) ([]models.Transaction, error) {
	var schedules []models.ScheduledTransaction
	err := db.Where("budget_id = ? AND NOT archived", budgetID).Find(&schedules).Error
	if err != nil {
		return nil, err
	}

	var posted []models.Transaction
	for _, schedule := range schedules {
		due := schedule.NextDate
		for !due.After(today) {
			transaction, err := postOccurrence(db, schedule, due)
			if err != nil {
				return posted, err
			}

			if transaction != nil {
				posted = append(posted, *transaction)
			}

			due = schedule.NextOccurrence(due)
			err = db.Model(&schedule).Update("next_date", due).Error
			if err != nil {
				return posted, err
			}
		}
	}

	return posted, nil
}

// postOccurrence posts a single occurrence. A nil transaction with a nil
// error means another process posted it first.
func postOccurrence(db *gorm.DB, schedule models.ScheduledTransaction, due types.Date) (*models.Transaction, error) {
	var transaction models.Transaction

	err := db.Transaction(func(tx *gorm.DB) error {
		transaction = models.Transaction{
			BudgetID:               schedule.BudgetID,
			AccountID:              schedule.AccountID,
			Date:                   due,
			Amount:                 schedule.Amount,
			Memo:                   schedule.Memo,
			ScheduledTransactionID: &schedule.ID,
		}

		err := tx.Create(&transaction).Error
		if err != nil {
			return err
		}

		if schedule.AutoAllocate && schedule.Amount > 0 {
			_, _, err = CommitWaterfall(tx, schedule.BudgetID, schedule.Amount, due, &transaction.ID)
			if err != nil && !errors.Is(err, ErrNoActiveRules) {
				return err
			}
		}

		return nil
	})
	if errors.Is(err, models.ErrOccurrenceAlreadyPosted) {
		log.Debug().
			Str("schedule", schedule.ID.String()).
			Str("date", due.String()).
			Msg("occurrence already posted")

		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &transaction, nil
}
