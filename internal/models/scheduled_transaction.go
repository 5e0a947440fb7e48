package models

import (
	"errors"
	"strings"

	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledTransaction is a recurring transaction template.
//
// Due occurrences are turned into Transaction rows by
// ledger.PostDueOccurrences. The unique index on
// (scheduled_transaction_id, date) of the transactions table makes posting
// idempotent: two concurrent posters race on the constraint and the loser
// rolls back, no advisory lock is needed.
type ScheduledTransaction struct {
	DefaultModel
	Budget       Budget    `json:"-"`
	BudgetID     uuid.UUID
	Account      Account `json:"-"`
	AccountID    uuid.UUID
	Memo         string
	Amount       int64            // Signed, in minor units, like Transaction.Amount
	NextDate     types.Date       // Date of the next occurrence to post
	PeriodValue  int              // Length of the recurrence interval
	PeriodUnit   types.PeriodUnit // Unit of the recurrence interval
	AutoAllocate bool             // Run the rule waterfall on posted income
	Archived     bool
}

var ErrScheduleRecurrenceInvalid = errors.New("a schedule needs a positive period value and a known period unit")

// BeforeSave validates the recurrence configuration and trims the memo.
func (s *ScheduledTransaction) BeforeSave(_ *gorm.DB) error {
	s.Memo = strings.TrimSpace(s.Memo)

	if s.PeriodValue <= 0 || !s.PeriodUnit.Valid() {
		return ErrScheduleRecurrenceInvalid
	}

	return nil
}

func (s *ScheduledTransaction) BeforeCreate(tx *gorm.DB) error {
	_ = s.DefaultModel.BeforeCreate(tx)

	toSave := tx.Statement.Dest.(*ScheduledTransaction)

	err := tx.First(&Budget{}, toSave.BudgetID).Error
	if err != nil {
		return err
	}

	return tx.First(&Account{}, toSave.AccountID).Error
}

// NextOccurrence returns the occurrence date following the given one.
func (s ScheduledTransaction) NextOccurrence(after types.Date) types.Date {
	switch s.PeriodUnit {
	case types.PeriodUnitWeek:
		return after.AddDate(0, 0, s.PeriodValue*7)
	case types.PeriodUnitMonth:
		return after.AddDate(0, s.PeriodValue, 0)
	default:
		return after.AddDate(s.PeriodValue, 0, 0)
	}
}
