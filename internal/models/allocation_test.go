package models_test

import (
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
)

func (suite *TestSuiteStandard) TestAllocationDefaults() {
	budget := suite.createTestBudget(models.Budget{})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID})

	allocation := models.Allocation{
		BudgetID:   budget.ID,
		EnvelopeID: envelope.ID,
		Amount:     1234,
		Memo:       "  manual move ",
	}
	err := models.DB.Create(&allocation).Error
	suite.Require().Nil(err)

	suite.Assert().NotEqual(uuid.Nil, allocation.GroupID, "a group id is generated when none is set")
	suite.Assert().False(allocation.Date.IsZero(), "the date defaults to today")
	suite.Assert().Equal("manual move", allocation.Memo)
	suite.Assert().NotZero(allocation.ID)
}

func (suite *TestSuiteStandard) TestAllocationRequiresEnvelope() {
	budget := suite.createTestBudget(models.Budget{})

	err := models.DB.Create(&models.Allocation{
		BudgetID:   budget.ID,
		EnvelopeID: uuid.New(),
		Amount:     1234,
	}).Error
	suite.Assert().NotNil(err, "ledger entries cannot reference a missing envelope")
}

func (suite *TestSuiteStandard) TestAllocationIDsAreTimeOrdered() {
	budget := suite.createTestBudget(models.Budget{})
	envelope := suite.createTestEnvelope(models.Envelope{BudgetID: budget.ID})

	var previous uint64
	for i := 0; i < 3; i++ {
		allocation := models.Allocation{
			BudgetID:   budget.ID,
			EnvelopeID: envelope.ID,
			Amount:     100,
			Date:       types.NewDate(2024, 5, 1),
		}
		err := models.DB.Create(&allocation).Error
		suite.Require().Nil(err)

		suite.Assert().Greater(allocation.ID, previous, "allocation ids must increase in creation order")
		previous = allocation.ID
	}
}
