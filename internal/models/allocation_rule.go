package models

import (
	"errors"
	"strings"

	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleType determines how an allocation rule computes its amount in the
// waterfall. It is a closed set, the waterfall engine matches exhaustively
// over it.
type RuleType string

const (
	RuleTypeFixed        RuleType = "FIXED"          // Amount is a fixed amount in minor units
	RuleTypePercentage   RuleType = "PERCENTAGE"     // Amount is a share of the remaining income in basis points
	RuleTypeFillToTarget RuleType = "FILL_TO_TARGET" // Amount is ignored, fills the envelope up to its target
	RuleTypePeriodCap    RuleType = "PERIOD_CAP"     // Amount is the allocation ceiling per period in minor units
	RuleTypeRemainder    RuleType = "REMAINDER"      // Amount is the relative weight in the remainder split
)

// Valid reports whether the rule type is one of the known types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeFixed, RuleTypePercentage, RuleTypeFillToTarget, RuleTypePeriodCap, RuleTypeRemainder:
		return true
	}

	return false
}

// AllocationRule configures how income is distributed to an envelope.
//
// Rules are evaluated in ascending (Priority, ID) order. A PERIOD_CAP rule
// does not allocate itself, it caps what the other rules may allocate to its
// envelope within a calendar-aligned period.
type AllocationRule struct {
	DefaultModel
	Budget         Budget    `json:"-"`
	BudgetID       uuid.UUID
	Envelope       Envelope `json:"-"`
	EnvelopeID     uuid.UUID
	Name           string
	Priority       uint
	Type           RuleType
	Amount         int64            // Meaning depends on Type, see the RuleType constants
	RespectTarget  bool             // Clamp allocations to the envelope's headroom against its target balance
	CapPeriodValue int              // Only for PERIOD_CAP: length of the cap period
	CapPeriodUnit  types.PeriodUnit // Only for PERIOD_CAP: unit of the cap period
	Archived       bool
}

var (
	ErrRuleTypeUnknown          = errors.New("the allocation rule type is unknown")
	ErrRuleAmountNotPositive    = errors.New("the rule amount must be larger than zero")
	ErrRulePercentageOutOfRange = errors.New("the rule percentage must be between 1 and 10000 basis points")
	ErrRuleWeightNotPositive    = errors.New("the remainder weight must be larger than zero")
	ErrRuleCapPeriodInvalid     = errors.New("a period cap rule needs a positive period value and a known period unit")
	ErrRuleEnvelopeUnallocated  = errors.New("allocation rules cannot target the unallocated envelope")
	ErrPeriodCapRuleExists      = errors.New("the envelope already has an active period cap rule")
)

// BeforeSave validates the rule configuration. Misconfigured rules are
// rejected here and never reach the waterfall.
func (r *AllocationRule) BeforeSave(_ *gorm.DB) error {
	r.Name = strings.TrimSpace(r.Name)

	if !r.Type.Valid() {
		return ErrRuleTypeUnknown
	}

	switch r.Type {
	case RuleTypeFixed:
		if r.Amount <= 0 {
			return ErrRuleAmountNotPositive
		}
	case RuleTypePercentage:
		if r.Amount <= 0 || r.Amount > 10000 {
			return ErrRulePercentageOutOfRange
		}
	case RuleTypeRemainder:
		if r.Amount <= 0 {
			return ErrRuleWeightNotPositive
		}
	case RuleTypePeriodCap:
		if r.Amount <= 0 {
			return ErrRuleAmountNotPositive
		}

		if r.CapPeriodValue <= 0 || !r.CapPeriodUnit.Valid() {
			return ErrRuleCapPeriodInvalid
		}
	}

	return nil
}

func (r *AllocationRule) BeforeCreate(tx *gorm.DB) error {
	_ = r.DefaultModel.BeforeCreate(tx)

	toSave := tx.Statement.Dest.(*AllocationRule)
	return r.checkIntegrity(tx, *toSave)
}

// BeforeUpdate verifies the state of the rule before committing an update.
// Moving a PERIOD_CAP rule onto an envelope that already has one is
// rejected, as is unarchiving a second one.
func (r *AllocationRule) BeforeUpdate(tx *gorm.DB) error {
	if !tx.Statement.Changed("EnvelopeID", "Type", "Archived", "BudgetID") {
		return nil
	}

	// Merge the update into the current state to validate the final state
	toSave := *r
	update := tx.Statement.Dest.(AllocationRule)
	if tx.Statement.Changed("EnvelopeID") {
		toSave.EnvelopeID = update.EnvelopeID
	}
	if tx.Statement.Changed("Type") {
		toSave.Type = update.Type
	}
	if tx.Statement.Changed("Archived") {
		toSave.Archived = update.Archived
	}
	if tx.Statement.Changed("BudgetID") {
		toSave.BudgetID = update.BudgetID
	}

	return r.checkIntegrity(tx, toSave)
}

// checkIntegrity verifies references to other resources and the
// one-active-PERIOD_CAP-per-envelope invariant.
func (r *AllocationRule) checkIntegrity(tx *gorm.DB, toSave AllocationRule) error {
	err := tx.First(&Budget{}, toSave.BudgetID).Error
	if err != nil {
		return err
	}

	var envelope Envelope
	err = tx.First(&envelope, toSave.EnvelopeID).Error
	if err != nil {
		return err
	}

	if envelope.IsUnallocated {
		return ErrRuleEnvelopeUnallocated
	}

	if toSave.Type == RuleTypePeriodCap && !toSave.Archived {
		var count int64
		err = tx.Model(&AllocationRule{}).
			Where("envelope_id = ? AND type = ? AND NOT archived AND id != ?", toSave.EnvelopeID, RuleTypePeriodCap, r.ID).
			Count(&count).Error
		if err != nil {
			return err
		}

		if count > 0 {
			return ErrPeriodCapRuleExists
		}
	}

	return nil
}
