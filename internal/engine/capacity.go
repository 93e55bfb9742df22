package engine

import (
	"fmt"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

// Adjustment tells the order consumer whether the suggestion was changed.
type Adjustment string

const (
	AdjustmentNone        Adjustment = "none"
	AdjustmentCappedToMax Adjustment = "cappedToMax"
	AdjustmentRaisedToMin Adjustment = "raisedToMin"
)

// CapacityWarning describes an adjustment for the end consumer.
type CapacityWarning struct {
	Code    Adjustment            `json:"code"`
	Message string                `json:"message"`
	Limit   int                   `json:"limit"`
	Kind    domain.ConstraintKind `json:"tipo_restriccion,omitempty"`
}

// ClampResult is the outcome of applying a capacity constraint.
type ClampResult struct {
	RawUnits   int              `json:"raw_units"`
	FinalUnits int              `json:"final_units"`
	Adjustment Adjustment       `json:"adjustment"`
	Warning    *CapacityWarning `json:"warning,omitempty"`
}

// ApplyCapacity clamps a raw suggested quantity to a constraint. A nil or inactive
// constraint, or one without limits, leaves the quantity unchanged. The maximum is
// checked first, so when min > max slips through the maximum wins.
func ApplyCapacity(rawUnits int, c *domain.CapacityConstraint) ClampResult {
	result := ClampResult{
		RawUnits:   rawUnits,
		FinalUnits: rawUnits,
		Adjustment: AdjustmentNone,
	}
	if c == nil || !c.Active {
		return result
	}

	if maxUnits, ok := c.MaxUnits.Get(); ok && rawUnits > maxUnits {
		result.FinalUnits = maxUnits
		result.Adjustment = AdjustmentCappedToMax
		result.Warning = &CapacityWarning{
			Code:    AdjustmentCappedToMax,
			Message: fmt.Sprintf("order truncated by %s capacity", kindLabel(c.Kind)),
			Limit:   maxUnits,
			Kind:    c.Kind,
		}
		return result
	}

	if minUnits, ok := c.MinDisplayUnits.Get(); ok && rawUnits < minUnits {
		result.FinalUnits = minUnits
		result.Adjustment = AdjustmentRaisedToMin
		result.Warning = &CapacityWarning{
			Code:    AdjustmentRaisedToMin,
			Message: "order raised to minimum display quantity",
			Limit:   minUnits,
			Kind:    c.Kind,
		}
	}

	return result
}

// ApplyCapacityFromSnapshot looks up the active constraint for (store, product) and applies it.
func ApplyCapacityFromSnapshot(snap *domain.Snapshot, storeID, productCode string, rawUnits int) ClampResult {
	c, ok := snap.ActiveCapacityConstraint(storeID, productCode)
	if !ok {
		return ApplyCapacity(rawUnits, nil)
	}
	return ApplyCapacity(rawUnits, &c)
}

func kindLabel(k domain.ConstraintKind) string {
	if k == "" {
		return domain.ConstraintShelf.Label()
	}
	return k.Label()
}
