package ledger_test

import (
	"github.com/envelopeflow/backend/internal/ledger"
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
)

// createTestCreditCard creates a credit card account with its tracking
// envelope.
func (suite *TestSuiteStandard) createTestCreditCard(budget models.Budget) (models.Account, models.Envelope) {
	card := suite.createTestAccount(models.Account{BudgetID: budget.ID, CreditCard: true})
	tracking := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID, LinkedAccountID: &card.ID})

	return card, tracking
}

func (suite *TestSuiteStandard) TestCreditCardSpendingZeroSum() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})
	groceries := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID, Name: "Groceries"})
	card, tracking := suite.createTestCreditCard(budget)

	_, err := ledger.PostTransaction(models.DB, &models.Transaction{
		BudgetID:  budget.ID,
		AccountID: account.ID,
		Amount:    50000,
	}, nil)
	suite.Require().Nil(err)

	unallocated, err := budget.UnallocatedEnvelope(models.DB)
	suite.Require().Nil(err)
	_, err = ledger.Transfer(models.DB, budget.ID, unallocated.ID, groceries.ID, 10000, types.Today(), "")
	suite.Require().Nil(err)

	before, err := ledger.UnallocatedBalance(models.DB, budget.ID)
	suite.Require().Nil(err)

	// Spend 1000 on the card against the groceries envelope
	entries, err := ledger.PostTransaction(models.DB, &models.Transaction{
		BudgetID:  budget.ID,
		AccountID: card.ID,
		Amount:    -1000,
	}, []ledger.AllocationInput{
		{EnvelopeID: groceries.ID, Amount: -1000},
	})
	suite.Require().Nil(err)
	suite.Require().Len(entries, 2, "card spending creates the paired tracking entry")

	suite.Assert().Equal(entries[0].GroupID, entries[1].GroupID)
	suite.Assert().Equal(int64(0), entries[0].Amount+entries[1].Amount)

	suite.assertLedgerBalance(groceries, 9000)
	suite.assertLedgerBalance(tracking, 1000)

	// The total envelope balance and Ready-to-Assign are unchanged
	after, err := ledger.UnallocatedBalance(models.DB, budget.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(before, after)

	var current models.Account
	suite.Require().Nil(models.DB.First(&current, card.ID).Error)
	suite.Assert().Equal(int64(-1000), current.Balance())
}

func (suite *TestSuiteStandard) TestPayCreditCardValidation() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})
	card, _ := suite.createTestCreditCard(budget)

	_, err := ledger.PayCreditCard(models.DB, &models.Transaction{BudgetID: budget.ID, AccountID: card.ID, Amount: -500})
	suite.Assert().ErrorIs(err, ledger.ErrNotCreditCardPayment)

	_, err = ledger.PayCreditCard(models.DB, &models.Transaction{BudgetID: budget.ID, AccountID: account.ID, Amount: 500})
	suite.Assert().ErrorIs(err, ledger.ErrNotCreditCardPayment)
}

func (suite *TestSuiteStandard) TestPayCreditCardClampsToTrackingBalance() {
	budget := suite.createTestBudget(models.Budget{})
	card, tracking := suite.createTestCreditCard(budget)

	// 500 is set aside for the card
	suite.Require().Nil(models.DB.Create(&models.Allocation{BudgetID: budget.ID, EnvelopeID: tracking.ID, Amount: 500}).Error)
	suite.Require().Nil(models.DB.Model(&models.Envelope{}).Where("id = ?", tracking.ID).Update("current_balance", 500).Error)

	// Paying 1000 releases only what is there, the envelope never goes
	// negative
	payment := models.Transaction{BudgetID: budget.ID, AccountID: card.ID, Amount: 1000}
	entry, err := ledger.PayCreditCard(models.DB, &payment)
	suite.Require().Nil(err)
	suite.Require().NotNil(entry)
	suite.Assert().Equal(int64(-500), entry.Amount)
	suite.Assert().Equal(payment.ID, *entry.TransactionID)

	suite.assertLedgerBalance(tracking, 0)
}

func (suite *TestSuiteStandard) TestPayCreditCardWithoutTrackingEnvelope() {
	budget := suite.createTestBudget(models.Budget{})
	card := suite.createTestAccount(models.Account{BudgetID: budget.ID, CreditCard: true})

	entry, err := ledger.PayCreditCard(models.DB, &models.Transaction{BudgetID: budget.ID, AccountID: card.ID, Amount: 1000})
	suite.Require().Nil(err)
	suite.Assert().Nil(entry, "payments on untracked cards have no envelope side")
}

func (suite *TestSuiteStandard) TestUnfundedCreditCardDebt() {
	budget := suite.createTestBudget(models.Budget{})

	// Partially funded card: 30000 debt, 10000 set aside
	card, tracking := suite.createTestCreditCard(budget)
	suite.Require().Nil(models.DB.Model(&models.Account{}).Where("id = ?", card.ID).Update("cleared_balance", -30000).Error)
	suite.Require().Nil(models.DB.Model(&models.Envelope{}).Where("id = ?", tracking.ID).Update("current_balance", 10000).Error)

	// Untracked card counts as fully unfunded
	suite.createTestAccount(models.Account{BudgetID: budget.ID, CreditCard: true, ClearedBalance: -5000})

	// Overpaid card does not offset other cards
	suite.createTestAccount(models.Account{BudgetID: budget.ID, CreditCard: true, ClearedBalance: 1000})

	unfunded, err := ledger.UnfundedCreditCardDebt(models.DB, budget.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(25000), unfunded)
}
