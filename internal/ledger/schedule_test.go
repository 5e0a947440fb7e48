package ledger_test

import (
	"github.com/envelopeflow/backend/internal/ledger"
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
)

func (suite *TestSuiteStandard) TestPostDueOccurrences() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})

	schedule := models.ScheduledTransaction{
		BudgetID:    budget.ID,
		AccountID:   account.ID,
		Memo:        "Salary",
		Amount:      250000,
		NextDate:    types.NewDate(2024, 6, 1),
		PeriodValue: 1,
		PeriodUnit:  types.PeriodUnitMonth,
	}
	suite.Require().Nil(models.DB.Create(&schedule).Error)

	posted, err := ledger.PostDueOccurrences(models.DB, budget.ID, types.NewDate(2024, 8, 5))
	suite.Require().Nil(err)
	suite.Require().Len(posted, 3, "June, July and August are due")

	suite.Assert().True(posted[0].Date.Equal(types.NewDate(2024, 6, 1)))
	suite.Assert().True(posted[2].Date.Equal(types.NewDate(2024, 8, 1)))
	for _, transaction := range posted {
		suite.Assert().Equal("Salary", transaction.Memo)
		suite.Assert().Equal(schedule.ID, *transaction.ScheduledTransactionID)
	}

	var current models.ScheduledTransaction
	suite.Require().Nil(models.DB.First(&current, schedule.ID).Error)
	suite.Assert().True(current.NextDate.Equal(types.NewDate(2024, 9, 1)), "next date is %s, should be 2024-09-01", current.NextDate)

	var reloaded models.Account
	suite.Require().Nil(models.DB.First(&reloaded, account.ID).Error)
	suite.Assert().Equal(int64(750000), reloaded.Balance())

	// Nothing else is due, posting again is a no-op
	posted, err = ledger.PostDueOccurrences(models.DB, budget.ID, types.NewDate(2024, 8, 5))
	suite.Require().Nil(err)
	suite.Assert().Empty(posted)
}

func (suite *TestSuiteStandard) TestPostDueOccurrencesSkipsPosted() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})

	schedule := models.ScheduledTransaction{
		BudgetID:    budget.ID,
		AccountID:   account.ID,
		Amount:      10000,
		NextDate:    types.NewDate(2024, 6, 1),
		PeriodValue: 1,
		PeriodUnit:  types.PeriodUnitMonth,
	}
	suite.Require().Nil(models.DB.Create(&schedule).Error)

	// The June occurrence was already posted elsewhere
	_, err := ledger.PostTransaction(models.DB, &models.Transaction{
		BudgetID:               budget.ID,
		AccountID:              account.ID,
		Date:                   types.NewDate(2024, 6, 1),
		Amount:                 10000,
		ScheduledTransactionID: &schedule.ID,
	}, nil)
	suite.Require().Nil(err)

	posted, err := ledger.PostDueOccurrences(models.DB, budget.ID, types.NewDate(2024, 7, 1))
	suite.Require().Nil(err)
	suite.Require().Len(posted, 1, "only July is missing")
	suite.Assert().True(posted[0].Date.Equal(types.NewDate(2024, 7, 1)))
}

func (suite *TestSuiteStandard) TestPostDueOccurrencesAutoAllocate() {
	budget := suite.createTestBudget(models.Budget{})
	account := suite.createTestAccount(models.Account{BudgetID: budget.ID, OnBudget: true})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID})

	suite.createTestAllocationRule(models.AllocationRule{BudgetID: budget.ID, EnvelopeID: envelope.ID, Type: models.RuleTypeRemainder, Amount: 1})

	schedule := models.ScheduledTransaction{
		BudgetID:     budget.ID,
		AccountID:    account.ID,
		Amount:       100000,
		NextDate:     types.NewDate(2024, 6, 1),
		PeriodValue:  1,
		PeriodUnit:   types.PeriodUnitMonth,
		AutoAllocate: true,
	}
	suite.Require().Nil(models.DB.Create(&schedule).Error)

	posted, err := ledger.PostDueOccurrences(models.DB, budget.ID, types.NewDate(2024, 6, 1))
	suite.Require().Nil(err)
	suite.Require().Len(posted, 1)

	suite.assertLedgerBalance(envelope, 100000)

	entries, err := posted[0].Allocations(models.DB)
	suite.Require().Nil(err)
	suite.Require().Len(entries, 1)
	suite.Assert().NotNil(entries[0].AllocationRuleID)

	balance, err := ledger.UnallocatedBalance(models.DB, budget.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(int64(0), balance)
}
