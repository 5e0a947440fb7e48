package ledger

import (
	"errors"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayCreditCard posts a credit card payment transaction and releases the
// matching amount from the card's tracking envelope.
//
// The payment must be a positive transaction on a credit card account. The
// tracking envelope is reduced by the payment amount, but never below zero:
// paying more than was set aside releases only what is there.
func PayCreditCard(db *gorm.DB, payment *models.Transaction) (*models.Allocation, error) {
	if payment.Amount <= 0 {
		return nil, ErrNotCreditCardPayment
	}

	var entry *models.Allocation

	err := db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.Where("budget_id = ?", payment.BudgetID).First(&account, payment.AccountID).Error
		if err != nil {
			return err
		}

		if !account.CreditCard {
			return ErrNotCreditCardPayment
		}

		err = tx.Create(payment).Error
		if err != nil {
			return err
		}

		tracking, err := account.TrackingEnvelope(tx)
		if errors.Is(err, models.ErrResourceNotFound) {
			// No tracking envelope, the payment is cash-only
			return nil
		}
		if err != nil {
			return err
		}

		release := min(payment.Amount, tracking.CurrentBalance)
		if release <= 0 {
			return nil
		}

		release = -release
		entry = &models.Allocation{
			BudgetID:      payment.BudgetID,
			EnvelopeID:    tracking.ID,
			Amount:        release,
			Date:          payment.Date,
			GroupID:       uuid.New(),
			TransactionID: &payment.ID,
			Memo:          "Credit card payment",
		}

		err = tx.Create(entry).Error
		if err != nil {
			return err
		}

		return addToBalance(tx, tracking.ID, release)
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// UnfundedCreditCardDebt returns how much credit card debt of the budget is
// not backed by money set aside in the cards' tracking envelopes.
//
// A card without a tracking envelope counts as fully unfunded. Cards with a
// positive balance (overpaid cards) do not offset other cards' debt.
func UnfundedCreditCardDebt(db *gorm.DB, budgetID uuid.UUID) (int64, error) {
	var cards []models.Account
	err := db.Where("budget_id = ? AND credit_card", budgetID).Find(&cards).Error
	if err != nil {
		return 0, err
	}

	var unfunded int64
	for _, card := range cards {
		debt := -card.Balance()
		if debt <= 0 {
			continue
		}

		var funded int64
		tracking, err := card.TrackingEnvelope(db)
		if err != nil && !errors.Is(err, models.ErrResourceNotFound) {
			return 0, err
		}
		if err == nil {
			funded = tracking.CurrentBalance
		}

		unfunded += max(0, debt-funded)
	}

	return unfunded, nil
}
