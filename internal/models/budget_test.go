package models_test

import (
	"github.com/envelopeflow/backend/internal/models"
)

func (suite *TestSuiteStandard) TestBudgetCreatesUnallocatedEnvelope() {
	budget := suite.createTestBudget(models.Budget{Name: "Household"})

	envelope, err := budget.UnallocatedEnvelope(models.DB)
	suite.Assert().Nil(err)
	suite.Assert().Equal(models.UnallocatedEnvelopeName, envelope.Name)
	suite.Assert().True(envelope.IsUnallocated)

	var count int64
	err = models.DB.Model(&models.Envelope{}).Where("budget_id = ?", budget.ID).Count(&count).Error
	suite.Assert().Nil(err)
	suite.Assert().Equal(int64(1), count, "exactly one envelope is provisioned with the budget")
}

func (suite *TestSuiteStandard) TestBudgetTrimsWhitespace() {
	budget := suite.createTestBudget(models.Budget{Name: "  Household ", Note: " For the family\n"})

	suite.Assert().Equal("Household", budget.Name)
	suite.Assert().Equal("For the family", budget.Note)
}
