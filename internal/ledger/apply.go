package ledger

import (
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/envelopeflow/backend/internal/waterfall"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// waterfallInput loads everything the waterfall needs: the budget's active
// rules, the envelope snapshots, and the period-to-date allocated income
// for every envelope with an active PERIOD_CAP rule.
func waterfallInput(db *gorm.DB, budgetID uuid.UUID, date types.Date) ([]models.AllocationRule, map[uuid.UUID]models.Envelope, map[uuid.UUID]int64, error) {
	var rules []models.AllocationRule
	err := db.Where("budget_id = ? AND NOT archived", budgetID).Find(&rules).Error
	if err != nil {
		return nil, nil, nil, err
	}

	var envelopes []models.Envelope
	err = db.Where("budget_id = ? AND NOT is_unallocated", budgetID).Find(&envelopes).Error
	if err != nil {
		return nil, nil, nil, err
	}

	snapshots := make(map[uuid.UUID]models.Envelope, len(envelopes))
	for _, envelope := range envelopes {
		snapshots[envelope.ID] = envelope
	}

	periodAllocated := make(map[uuid.UUID]int64)
	for _, rule := range rules {
		if rule.Type != models.RuleTypePeriodCap {
			continue
		}

		period, err := types.Boundaries(date, rule.CapPeriodValue, rule.CapPeriodUnit)
		if err != nil {
			// Unreachable for stored rules, validation rejects bad cap
			// configurations on write
			return nil, nil, nil, err
		}

		sum, err := periodAllocatedIncome(db, rule.EnvelopeID, period)
		if err != nil {
			return nil, nil, nil, err
		}

		periodAllocated[rule.EnvelopeID] = sum
	}

	return rules, snapshots, periodAllocated, nil
}

// PreviewWaterfall runs the rule waterfall without persisting anything.
//
// Returns ErrNothingToAllocate for a non-positive income and
// ErrNoActiveRules when the budget has no active allocating rules, so that
// callers can surface the condition instead of a silent no-op.
func PreviewWaterfall(db *gorm.DB, budgetID uuid.UUID, income int64, date types.Date) (waterfall.Result, error) {
	if income <= 0 {
		return waterfall.Result{}, ErrNothingToAllocate
	}

	rules, envelopes, periodAllocated, err := waterfallInput(db, budgetID, date)
	if err != nil {
		return waterfall.Result{}, err
	}

	active := false
	for _, rule := range rules {
		if rule.Type != models.RuleTypePeriodCap {
			active = true
			break
		}
	}
	if !active {
		return waterfall.Result{}, ErrNoActiveRules
	}

	return waterfall.Apply(rules, envelopes, income, date, periodAllocated), nil
}

// CommitWaterfall runs the rule waterfall and persists the result: one
// ledger entry per intent, sharing a group id, and the matching balance
// increments. Everything happens in one transaction.
//
// transactionID links the entries to the income transaction that is being
// distributed and may be nil for manual "apply rules" runs.
func CommitWaterfall(db *gorm.DB, budgetID uuid.UUID, income int64, date types.Date, transactionID *uuid.UUID) (waterfall.Result, []models.Allocation, error) {
	var result waterfall.Result
	var entries []models.Allocation

	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = PreviewWaterfall(tx, budgetID, income, date)
		if err != nil {
			return err
		}

		groupID := uuid.New()
		for i, intent := range result.Intents {
			ruleID := intent.RuleID
			entry := models.Allocation{
				BudgetID:         budgetID,
				EnvelopeID:       intent.EnvelopeID,
				Amount:           intent.Amount,
				Date:             date,
				GroupID:          groupID,
				TransactionID:    transactionID,
				AllocationRuleID: &ruleID,
				ExecutionOrder:   uint(i),
				Memo:             intent.Memo,
			}

			err = tx.Create(&entry).Error
			if err != nil {
				return err
			}

			err = addToBalance(tx, intent.EnvelopeID, intent.Amount)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return waterfall.Result{}, nil, err
	}

	return result, entries, nil
}

// ApplyRulesToUnallocated distributes the current Ready-to-Assign pool
// across the budget's rules. This backs the manual "apply rules" action.
func ApplyRulesToUnallocated(db *gorm.DB, budgetID uuid.UUID, date types.Date) (waterfall.Result, []models.Allocation, error) {
	available, err := UnallocatedBalance(db, budgetID)
	if err != nil {
		return waterfall.Result{}, nil, err
	}

	if available <= 0 {
		return waterfall.Result{}, nil, ErrNothingToAllocate
	}

	return CommitWaterfall(db, budgetID, available, date, nil)
}
