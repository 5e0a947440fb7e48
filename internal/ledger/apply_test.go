package ledger_test

import (
	"github.com/envelopeflow/backend/internal/ledger"
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
)

// assertLedgerBalance checks the cached balance against the ledger sum.
func (suite *TestSuiteStandard) assertLedgerBalance(envelope models.Envelope, balance int64) {
	current := suite.reloadEnvelope(envelope.ID)
	suite.Assert().Equal(balance, current.CurrentBalance, "cached balance of %s is %d, should be %d", current.Name, current.CurrentBalance, balance)

	computed, err := current.ComputedBalance(models.DB)
	suite.Require().Nil(err)
	suite.Assert().Equal(current.CurrentBalance, computed, "cached balance of %s diverged from its ledger entries", current.Name)
}

func (suite *TestSuiteStandard) TestCommitWaterfall() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})

	rent := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID, Name: "Rent"})
	savings := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID, Name: "Savings"})

	suite.createTestAllocationRule(models.AllocationRule{BudgetID: budget.ID, EnvelopeID: rent.ID, Priority: 1, Type: models.RuleTypeFixed, Amount: 30000})
	suite.createTestAllocationRule(models.AllocationRule{BudgetID: budget.ID, EnvelopeID: savings.ID, Priority: 2, Type: models.RuleTypeRemainder, Amount: 1})

	transaction := models.Transaction{
		BudgetID:  budget.ID,
		AccountID: account.ID,
		Date:      types.NewDate(2024, 6, 14),
		Amount:    100000,
	}
	income, err := ledger.PostTransaction(models.DB, &transaction, nil)
	suite.Require().Nil(err)
	suite.Assert().Empty(income, "income without assignments has no ledger entries")

	result, entries, err := ledger.CommitWaterfall(models.DB, budget.ID, transaction.Amount, transaction.Date, &transaction.ID)
	suite.Require().Nil(err)

	suite.Assert().Len(entries, 2)
	suite.Assert().Equal(int64(0), result.Unallocated)
	suite.assertLedgerBalance(rent, 30000)
	suite.assertLedgerBalance(savings, 70000)

	// All entries of one run share a group and are ordered by execution
	suite.Assert().Equal(entries[0].GroupID, entries[1].GroupID)
	suite.Assert().Less(entries[0].ExecutionOrder, entries[1].ExecutionOrder)
	for _, entry := range entries {
		suite.Assert().NotNil(entry.AllocationRuleID)
		suite.Assert().Equal(transaction.ID, *entry.TransactionID)
	}

	unallocated, err := ledger.UnallocatedBalance(models.DB, budget.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(0), unallocated)
}

func (suite *TestSuiteStandard) TestPreviewWaterfallNothingToAllocate() {
	budget := suite.createTestBudget(models.Budget{})

	_, err := ledger.PreviewWaterfall(models.DB, budget.ID, 0, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNothingToAllocate)

	_, err = ledger.PreviewWaterfall(models.DB, budget.ID, -5000, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNothingToAllocate)
}

func (suite *TestSuiteStandard) TestPreviewWaterfallNoActiveRules() {
	budget := suite.createTestBudget(models.Budget{})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID})

	_, err := ledger.PreviewWaterfall(models.DB, budget.ID, 10000, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNoActiveRules)

	// A lone PERIOD_CAP rule caps, it does not allocate
	suite.createTestAllocationRule(models.AllocationRule{
		BudgetID:       budget.ID,
		EnvelopeID:     envelope.ID,
		Type:           models.RuleTypePeriodCap,
		Amount:         5000,
		CapPeriodValue: 1,
		CapPeriodUnit:  types.PeriodUnitMonth,
	})

	_, err = ledger.PreviewWaterfall(models.DB, budget.ID, 10000, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNoActiveRules)
}

func (suite *TestSuiteStandard) TestApplyRulesToUnallocated() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID})

	suite.createTestAllocationRule(models.AllocationRule{BudgetID: budget.ID, EnvelopeID: envelope.ID, Type: models.RuleTypeRemainder, Amount: 1})

	_, _, err := ledger.ApplyRulesToUnallocated(models.DB, budget.ID, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNothingToAllocate, "empty budget has nothing to distribute")

	_, err = ledger.PostTransaction(models.DB, &models.Transaction{
		BudgetID:  budget.ID,
		AccountID: account.ID,
		Amount:    42000,
	}, nil)
	suite.Require().Nil(err)

	result, entries, err := ledger.ApplyRulesToUnallocated(models.DB, budget.ID, types.Today())
	suite.Require().Nil(err)
	suite.Assert().Len(entries, 1)
	suite.Assert().Equal(int64(0), result.Unallocated)
	suite.Assert().Nil(entries[0].TransactionID, "manual runs are not linked to a transaction")
	suite.assertLedgerBalance(envelope, 42000)

	// Everything is distributed, a second run has nothing to do
	_, _, err = ledger.ApplyRulesToUnallocated(models.DB, budget.ID, types.Today())
	suite.Assert().ErrorIs(err, ledger.ErrNothingToAllocate)
}

func (suite *TestSuiteStandard) TestCommitWaterfallPeriodCap() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID, Name: "Dining"})

	suite.createTestAllocationRule(models.AllocationRule{BudgetID: budget.ID, EnvelopeID: envelope.ID, Priority: 1, Type: models.RuleTypeFixed, Amount: 50000})
	suite.createTestAllocationRule(models.AllocationRule{
		BudgetID:       budget.ID,
		EnvelopeID:     envelope.ID,
		Type:           models.RuleTypePeriodCap,
		Amount:         20000,
		CapPeriodValue: 1,
		CapPeriodUnit:  types.PeriodUnitMonth,
	})

	payday := func(date types.Date) models.Transaction {
		transaction := models.Transaction{BudgetID: budget.ID, AccountID: account.ID, Date: date, Amount: 50000}
		_, err := ledger.PostTransaction(models.DB, &transaction, nil)
		suite.Require().Nil(err)
		return transaction
	}

	first := payday(types.NewDate(2024, 6, 1))
	result, _, err := ledger.CommitWaterfall(models.DB, budget.ID, first.Amount, first.Date, &first.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(30000), result.Unallocated, "the monthly cap clamps the fixed rule")
	suite.assertLedgerBalance(envelope, 20000)

	// The cap is exhausted for June
	second := payday(types.NewDate(2024, 6, 15))
	result, _, err = ledger.CommitWaterfall(models.DB, budget.ID, second.Amount, second.Date, &second.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(50000), result.Unallocated)
	suite.assertLedgerBalance(envelope, 20000)

	// July opens a fresh cap period
	third := payday(types.NewDate(2024, 7, 1))
	result, _, err = ledger.CommitWaterfall(models.DB, budget.ID, third.Amount, third.Date, &third.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(30000), result.Unallocated)
	suite.assertLedgerBalance(envelope, 40000)
}
