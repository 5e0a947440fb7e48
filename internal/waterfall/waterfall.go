// Package waterfall implements the allocation rule waterfall.
//
// The waterfall distributes a finite income amount across envelopes by
// walking the active allocation rules in ascending (priority, id) order.
// It is pure: it reads rule and envelope snapshots and returns allocation
// intents, persistence is up to the ledger package.
package waterfall

import (
	"bytes"

	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Intent is one planned allocation. Committing an intent creates a ledger
// entry, see ledger.CommitWaterfall.
type Intent struct {
	EnvelopeID uuid.UUID
	Amount     int64 // Always positive, in minor units
	RuleID     uuid.UUID
	RuleName   string
	Memo       string
}

// Result is the outcome of one waterfall run.
//
// The run conserves money: the sum of all intent amounts plus Unallocated
// always equals the income amount passed in.
type Result struct {
	Intents     []Intent
	Unallocated int64
}

// FormatAmount renders an amount in minor units as a decimal string in
// major units, e.g. 123456 -> "1234.56".
func FormatAmount(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// Apply runs the rule waterfall for one income amount.
//
// periodAllocated holds the period-to-date allocated income per envelope
// with an active PERIOD_CAP rule, computed by the caller for the cap period
// containing the reference date.
//
// Rules whose envelope is missing from the snapshot or archived are skipped
// silently. Within the run, a working balance per envelope tracks intents
// already emitted, so target-respecting rules never jointly overshoot a
// target.
func Apply(rules []models.AllocationRule, envelopes map[uuid.UUID]models.Envelope, income int64, date types.Date, periodAllocated map[uuid.UUID]int64) Result {
	if income <= 0 {
		return Result{Unallocated: income}
	}

	// Partition into cap rules and allocating rules, in strict
	// (priority, id) order for determinism
	capRules := make(map[uuid.UUID]models.AllocationRule)
	var allocating []models.AllocationRule

	for _, rule := range rules {
		if rule.Archived {
			continue
		}

		envelope, ok := envelopes[rule.EnvelopeID]
		if !ok || envelope.Archived {
			continue
		}

		if rule.Type == models.RuleTypePeriodCap {
			capRules[rule.EnvelopeID] = rule
			continue
		}

		allocating = append(allocating, rule)
	}

	slices.SortStableFunc(allocating, func(a, b models.AllocationRule) int {
		if a.Priority != b.Priority {
			if a.Priority < b.Priority {
				return -1
			}
			return 1
		}

		return bytes.Compare(a.ID[:], b.ID[:])
	})

	// Running headroom of every capped envelope, decremented as the
	// waterfall consumes it
	capHeadroom := make(map[uuid.UUID]int64, len(capRules))
	for envelopeID, rule := range capRules {
		headroom := rule.Amount - periodAllocated[envelopeID]
		if headroom < 0 {
			headroom = 0
		}
		capHeadroom[envelopeID] = headroom
	}

	// Working balances include intents emitted earlier in this run
	working := make(map[uuid.UUID]int64, len(envelopes))
	for id, envelope := range envelopes {
		working[id] = envelope.CurrentBalance
	}

	result := Result{}
	remaining := income
	var remainderRules []models.AllocationRule

	emit := func(rule models.AllocationRule, amount int64) {
		result.Intents = append(result.Intents, Intent{
			EnvelopeID: rule.EnvelopeID,
			Amount:     amount,
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Memo:       ruleMemo(rule),
		})
	}

	for _, rule := range allocating {
		if rule.Type == models.RuleTypeRemainder {
			remainderRules = append(remainderRules, rule)
			continue
		}

		if remaining <= 0 {
			continue
		}

		envelope := envelopes[rule.EnvelopeID]
		amount := ruleAmount(rule, envelope.TargetBalance, working[rule.EnvelopeID], remaining)

		// A period cap on the envelope clamps every allocating rule
		if headroom, capped := capHeadroom[rule.EnvelopeID]; capped {
			if amount > headroom {
				amount = headroom
			}
			capHeadroom[rule.EnvelopeID] -= amount
		}

		if amount <= 0 {
			continue
		}

		emit(rule, amount)
		working[rule.EnvelopeID] += amount
		remaining -= amount
	}

	remaining = distributeRemainder(remainderRules, envelopes, remaining, capHeadroom, working, emit)

	result.Unallocated = remaining
	return result
}

// ruleAmount computes the amount a single non-remainder rule allocates,
// before period cap clamping. The match over rule types is exhaustive.
func ruleAmount(rule models.AllocationRule, target *int64, balance, remaining int64) int64 {
	var amount int64

	switch rule.Type {
	case models.RuleTypeFixed:
		amount = min(rule.Amount, remaining)
		if rule.RespectTarget {
			amount = min(amount, targetHeadroom(target, balance))
		}

	case models.RuleTypePercentage:
		// Basis points out of 10,000, truncated towards zero
		amount = remaining * rule.Amount / 10000
		if rule.RespectTarget {
			amount = min(amount, targetHeadroom(target, balance))
		}

	case models.RuleTypeFillToTarget:
		if target == nil {
			return 0
		}
		amount = min(max(0, *target-balance), remaining)
	}

	return amount
}

// targetHeadroom returns how much fits into the envelope before it reaches
// its target. Envelopes without a target have unlimited headroom.
func targetHeadroom(target *int64, balance int64) int64 {
	if target == nil {
		return int64(^uint64(0) >> 1)
	}

	return max(0, *target-balance)
}

// distributeRemainder splits the remaining pool across REMAINDER rules
// proportionally by weight.
//
// The split is iterative: when a recipient hits its headroom (target or
// period cap), it is removed from the active set and the next round
// redistributes among the remaining recipients instead of stranding money.
// Each round assigns the truncation leftover to the last active rule in
// iteration order, so a round's shares sum exactly to the pool it started
// with. The active set strictly shrinks whenever the loop continues, which
// makes termination trivial.
//
// Returns the amount left over after the split.
func distributeRemainder(rules []models.AllocationRule, envelopes map[uuid.UUID]models.Envelope, pool int64, capHeadroom map[uuid.UUID]int64, working map[uuid.UUID]int64, emit func(models.AllocationRule, int64)) int64 {
	if pool <= 0 || len(rules) == 0 {
		return pool
	}

	assigned := make([]int64, len(rules))

	// headroom returns the remaining finite headroom of a rule, or nil if
	// neither a target clamp nor a period cap applies
	headroom := func(i int) *int64 {
		rule := rules[i]
		var limit *int64

		if rule.RespectTarget {
			if target := envelopes[rule.EnvelopeID].TargetBalance; target != nil {
				h := max(0, *target-working[rule.EnvelopeID])
				limit = &h
			}
		}

		if capLeft, capped := capHeadroom[rule.EnvelopeID]; capped {
			if limit == nil || capLeft < *limit {
				h := capLeft
				limit = &h
			}
		}

		return limit
	}

	active := make([]int, 0, len(rules))
	for i := range rules {
		active = append(active, i)
	}

	for pool > 0 && len(active) > 0 {
		var totalWeight int64
		for _, i := range active {
			totalWeight += rules[i].Amount
		}

		// Raw shares truncate, the leftover goes to the last active rule
		// in iteration order so the round sums exactly to the pool
		shares := make([]int64, len(active))
		var sum int64
		for n, i := range active {
			shares[n] = pool * rules[i].Amount / totalWeight
			sum += shares[n]
		}
		shares[len(active)-1] += pool - sum

		next := active[:0:0]
		limitHit := false

		for n, i := range active {
			share := shares[n]

			if limit := headroom(i); limit != nil && share >= *limit {
				share = *limit
				limitHit = true
			} else {
				next = append(next, i)
			}

			if share > 0 {
				assigned[i] += share
				working[rules[i].EnvelopeID] += share
				if _, capped := capHeadroom[rules[i].EnvelopeID]; capped {
					capHeadroom[rules[i].EnvelopeID] -= share
				}
				pool -= share
			}
		}

		// Steady state: nobody hit a limit, everything is distributed
		if !limitHit {
			break
		}

		active = next
	}

	for i, rule := range rules {
		if assigned[i] > 0 {
			emit(rule, assigned[i])
		}
	}

	return pool
}

func ruleMemo(rule models.AllocationRule) string {
	if rule.Name != "" {
		return rule.Name
	}

	switch rule.Type {
	case models.RuleTypeFixed:
		return "Fixed allocation"
	case models.RuleTypePercentage:
		return "Percentage allocation"
	case models.RuleTypeFillToTarget:
		return "Fill to target"
	case models.RuleTypeRemainder:
		return "Remainder split"
	default:
		return "Allocation"
	}
}
