package domain

import (
	"fmt"
	"math"
	"strings"
)

// Valid domains for configuration fields.
const (
	MinLeadTimeDays    = 0.5
	MaxLeadTimeDays    = 10.0
	MinVentanaSigmaD   = 7
	MaxVentanaSigmaD   = 90
	MinServiceLevelPct = 70.0
	MaxServiceLevelPct = 100.0
	MinMaxCoverageDays = 1
	MaxMaxCoverageDays = 90
)

// Validate checks lead time and the variance window.
func (g GlobalParameters) Validate() error {
	if !withinRange(g.LeadTime, MinLeadTimeDays, MaxLeadTimeDays) {
		return outOfRange("lead_time", floatValue(g.LeadTime),
			fmt.Sprintf("must be between %.1f and %.1f days", MinLeadTimeDays, MaxLeadTimeDays))
	}
	if g.VentanaSigmaD < MinVentanaSigmaD || g.VentanaSigmaD > MaxVentanaSigmaD {
		return outOfRange("ventana_sigma_d", g.VentanaSigmaD,
			fmt.Sprintf("must be between %d and %d days", MinVentanaSigmaD, MaxVentanaSigmaD))
	}
	return nil
}

// Validate enforces strict ordering a < b < c of positive cutoffs.
func (t ABCThresholds) Validate() error {
	if t.A <= 0 {
		return &ValidationError{Kind: ErrInvalidThresholds, Field: "umbral_a", Value: t.A, Detail: "must be positive"}
	}
	if t.A >= t.B {
		return &ValidationError{Kind: ErrInvalidThresholds, Field: "umbral_b", Value: t.B,
			Detail: fmt.Sprintf("must be greater than umbral_a (%d)", t.A)}
	}
	if t.B >= t.C {
		return &ValidationError{Kind: ErrInvalidThresholds, Field: "umbral_c", Value: t.C,
			Detail: fmt.Sprintf("must be greater than umbral_b (%d)", t.B)}
	}
	return nil
}

// ValidateServiceLevel checks a service-level write for class c.
// pct is nil when the caller only changes the coverage ceiling.
func ValidateServiceLevel(c ABCClass, pct *float64, maxDays int) error {
	if !c.Valid() {
		return &ValidationError{Kind: ErrUnknownClass, Field: "clase", Value: c}
	}
	if c.Method() == MethodHeuristic && pct != nil {
		return &ValidationError{
			Kind:   ErrInvalidForHeuristicClass,
			Field:  "nivel_servicio_pct",
			Value:  *pct,
			Detail: fmt.Sprintf("class %s uses the heuristic method and has no service level", c),
		}
	}
	if pct != nil && !withinRange(*pct, MinServiceLevelPct, MaxServiceLevelPct) {
		return outOfRange("nivel_servicio_pct", floatValue(*pct),
			fmt.Sprintf("must be between %.0f and %.0f", MinServiceLevelPct, MaxServiceLevelPct))
	}
	if maxDays < MinMaxCoverageDays || maxDays > MaxMaxCoverageDays {
		return outOfRange("dias_cobertura_max", maxDays,
			fmt.Sprintf("must be between %d and %d days", MinMaxCoverageDays, MaxMaxCoverageDays))
	}
	return nil
}

// Validate checks a service-level record as a whole, including the method invariant.
func (s ServiceLevelClass) Validate() error {
	if err := ValidateServiceLevel(s.Class, s.ServiceLevelPct, s.MaxCoverageDays); err != nil {
		return err
	}
	if s.Class.Method() == MethodStatistical && s.ServiceLevelPct == nil {
		return outOfRange("nivel_servicio_pct", nil, fmt.Sprintf("required for class %s", s.Class))
	}
	if s.Method != "" && s.Method != s.Class.Method() {
		return outOfRange("metodo", s.Method, fmt.Sprintf("class %s must use %s", s.Class, s.Class.Method()))
	}
	return nil
}

// Validate checks the optional lead time and coverage fields of a store override.
func (o StoreOverride) Validate() error {
	if o.StoreID == "" {
		return outOfRange("tienda_id", o.StoreID, "required")
	}
	if v, ok := o.LeadTime.Get(); ok && !withinRange(v, MinLeadTimeDays, MaxLeadTimeDays) {
		return outOfRange("lead_time_override", floatValue(v),
			fmt.Sprintf("must be between %.1f and %.1f days", MinLeadTimeDays, MaxLeadTimeDays))
	}
	for _, c := range AllClasses {
		if v, ok := o.Coverage.For(c).Get(); ok && v <= 0 {
			return outOfRange(coverageField(c), v, "must be positive")
		}
	}
	return nil
}

// Validate requires all four coverage-day fields to be positive.
func (o CategoryCoverageOverride) Validate() error {
	if o.Category == "" {
		return outOfRange("categoria", o.Category, "required")
	}
	for _, c := range AllClasses {
		if v := o.Coverage.For(c); v <= 0 {
			return outOfRange(coverageField(c), v, "must be positive")
		}
	}
	return nil
}

// Validate requires at least one positive limit and min <= max when both are set.
func (c CapacityConstraint) Validate() error {
	if c.StoreID == "" {
		return outOfRange("tienda_id", c.StoreID, "required")
	}
	if c.ProductCode == "" {
		return outOfRange("producto_codigo", c.ProductCode, "required")
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return outOfRange("tipo_restriccion", c.Kind, "unknown constraint type")
	}

	maxUnits, hasMax := c.MaxUnits.Get()
	minUnits, hasMin := c.MinDisplayUnits.Get()
	if (!hasMax || maxUnits <= 0) && (!hasMin || minUnits <= 0) {
		return &ValidationError{
			Kind:   ErrNoLimitSpecified,
			Field:  "capacidad_maxima_unidades",
			Value:  nil,
			Detail: "set capacidad_maxima_unidades or minimo_exhibicion_unidades",
		}
	}
	if hasMax && maxUnits <= 0 {
		return outOfRange("capacidad_maxima_unidades", maxUnits, "must be positive")
	}
	if hasMin && minUnits <= 0 {
		return outOfRange("minimo_exhibicion_unidades", minUnits, "must be positive")
	}
	if hasMax && hasMin && minUnits > maxUnits {
		return &ValidationError{
			Kind:   ErrConflictingLimits,
			Field:  "minimo_exhibicion_unidades",
			Value:  minUnits,
			Detail: fmt.Sprintf("exceeds capacidad_maxima_unidades (%d)", maxUnits),
		}
	}
	return nil
}

// withinRange is false for NaN and infinities.
func withinRange(v, min, max float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= min && v <= max
}

// floatValue keeps non-finite values JSON-encodable in error payloads.
func floatValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return v
}

func coverageField(c ABCClass) string {
	return "dias_cobertura_" + strings.ToLower(string(c))
}
