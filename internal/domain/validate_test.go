package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Field
}

func TestGlobalParameters_Validate(t *testing.T) {
	testCases := []struct {
		name  string
		in    GlobalParameters
		field string
	}{
		{name: "defaults", in: DefaultGlobalParameters()},
		{name: "lower bound", in: GlobalParameters{LeadTime: 0.5, VentanaSigmaD: 7}},
		{name: "upper bound", in: GlobalParameters{LeadTime: 10, VentanaSigmaD: 90}},
		{name: "lead time too small", in: GlobalParameters{LeadTime: 0.4, VentanaSigmaD: 30}, field: "lead_time"},
		{name: "lead time too large", in: GlobalParameters{LeadTime: 10.5, VentanaSigmaD: 30}, field: "lead_time"},
		{name: "window too short", in: GlobalParameters{LeadTime: 1.5, VentanaSigmaD: 6}, field: "ventana_sigma_d"},
		{name: "window too long", in: GlobalParameters{LeadTime: 1.5, VentanaSigmaD: 91}, field: "ventana_sigma_d"},
		{name: "lead time NaN", in: GlobalParameters{LeadTime: math.NaN(), VentanaSigmaD: 30}, field: "lead_time"},
		{name: "lead time infinite", in: GlobalParameters{LeadTime: math.Inf(1), VentanaSigmaD: 30}, field: "lead_time"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Equal(t, tc.field, fieldOf(t, err))
		})
	}
}

func TestABCThresholds_Validate(t *testing.T) {
	assert.NoError(t, ABCThresholds{A: 50, B: 200, C: 800}.Validate())

	testCases := []struct {
		name  string
		in    ABCThresholds
		field string
	}{
		{name: "zero a", in: ABCThresholds{A: 0, B: 200, C: 800}, field: "umbral_a"},
		{name: "a equals b", in: ABCThresholds{A: 200, B: 200, C: 800}, field: "umbral_b"},
		{name: "b above c", in: ABCThresholds{A: 50, B: 900, C: 800}, field: "umbral_c"},
		{name: "b equals c", in: ABCThresholds{A: 50, B: 800, C: 800}, field: "umbral_c"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			assert.ErrorIs(t, err, ErrInvalidThresholds)
			assert.Equal(t, tc.field, fieldOf(t, err))
		})
	}
}

func TestValidateServiceLevel(t *testing.T) {
	testCases := []struct {
		name    string
		class   ABCClass
		pct     *float64
		maxDays int
		kind    error
	}{
		{name: "statistical ok", class: ClassA, pct: ptr(98), maxDays: 7},
		{name: "bounds ok", class: ClassC, pct: ptr(70), maxDays: 90},
		{name: "partial update keeps pct", class: ClassB, pct: nil, maxDays: 14},
		{name: "heuristic without pct", class: ClassD, pct: nil, maxDays: 30},
		{name: "heuristic with pct", class: ClassD, pct: ptr(90), maxDays: 30, kind: ErrInvalidForHeuristicClass},
		{name: "pct below floor", class: ClassA, pct: ptr(69.9), maxDays: 7, kind: ErrOutOfRange},
		{name: "pct above 100", class: ClassA, pct: ptr(100.1), maxDays: 7, kind: ErrOutOfRange},
		{name: "pct NaN", class: ClassA, pct: ptr(math.NaN()), maxDays: 7, kind: ErrOutOfRange},
		{name: "pct negative infinity", class: ClassB, pct: ptr(math.Inf(-1)), maxDays: 7, kind: ErrOutOfRange},
		{name: "coverage zero", class: ClassB, pct: ptr(95), maxDays: 0, kind: ErrOutOfRange},
		{name: "coverage above ceiling", class: ClassB, pct: ptr(95), maxDays: 91, kind: ErrOutOfRange},
		{name: "unknown class", class: "E", pct: ptr(95), maxDays: 7, kind: ErrUnknownClass},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateServiceLevel(tc.class, tc.pct, tc.maxDays)
			if tc.kind == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestServiceLevelClass_Validate(t *testing.T) {
	for _, sl := range DefaultServiceLevels() {
		assert.NoError(t, sl.Validate(), string(sl.Class))
	}

	missing := ServiceLevelClass{Class: ClassA, MaxCoverageDays: 7, Method: MethodStatistical}
	assert.ErrorIs(t, missing.Validate(), ErrOutOfRange)

	wrongMethod := ServiceLevelClass{Class: ClassA, ServiceLevelPct: ptr(98), MaxCoverageDays: 7, Method: MethodHeuristic}
	err := wrongMethod.Validate()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "metodo", fieldOf(t, err))
}

func TestStoreOverride_Validate(t *testing.T) {
	ok := StoreOverride{StoreID: "T1", LeadTime: Set(2.0), Coverage: CoverageOverrides{A: Set(5)}}
	assert.NoError(t, ok.Validate())

	onlyInherit := StoreOverride{StoreID: "T1"}
	assert.NoError(t, onlyInherit.Validate())

	err := StoreOverride{LeadTime: Set(2.0)}.Validate()
	assert.Equal(t, "tienda_id", fieldOf(t, err))

	err = StoreOverride{StoreID: "T1", LeadTime: Set(12.0)}.Validate()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "lead_time_override", fieldOf(t, err))

	err = StoreOverride{StoreID: "T1", LeadTime: Set(math.NaN())}.Validate()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "lead_time_override", fieldOf(t, err))

	err = StoreOverride{StoreID: "T1", Coverage: CoverageOverrides{C: Set(0)}}.Validate()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "dias_cobertura_c", fieldOf(t, err))
}

func TestValidationError_NonFiniteValueEncodes(t *testing.T) {
	err := GlobalParameters{LeadTime: math.NaN(), VentanaSigmaD: 30}.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "NaN", verr.Value)
}

func TestCategoryCoverageOverride_Validate(t *testing.T) {
	ok := CategoryCoverageOverride{Category: "LACTEOS", Coverage: CoverageDays{A: 3, B: 4, C: 5, D: 6}}
	assert.NoError(t, ok.Validate())

	missingD := CategoryCoverageOverride{Category: "LACTEOS", Coverage: CoverageDays{A: 3, B: 4, C: 5}}
	err := missingD.Validate()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "dias_cobertura_d", fieldOf(t, err))
}

func TestCapacityConstraint_Validate(t *testing.T) {
	base := CapacityConstraint{StoreID: "T1", ProductCode: "P1", Kind: ConstraintFreezer}

	testCases := []struct {
		name   string
		mutate func(c *CapacityConstraint)
		kind   error
		field  string
	}{
		{name: "max only", mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(100) }},
		{name: "min only", mutate: func(c *CapacityConstraint) { c.MinDisplayUnits = Set(10) }},
		{name: "min equals max", mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(10); c.MinDisplayUnits = Set(10) }},
		{name: "no limit", mutate: func(c *CapacityConstraint) {}, kind: ErrNoLimitSpecified},
		{name: "zero limits", mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(0); c.MinDisplayUnits = Set(0) }, kind: ErrNoLimitSpecified},
		{
			name:   "min above max",
			mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(10); c.MinDisplayUnits = Set(20) },
			kind:   ErrConflictingLimits,
			field:  "minimo_exhibicion_unidades",
		},
		{
			name:   "negative max with min",
			mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(-1); c.MinDisplayUnits = Set(20) },
			kind:   ErrOutOfRange,
			field:  "capacidad_maxima_unidades",
		},
		{
			name:   "unknown kind",
			mutate: func(c *CapacityConstraint) { c.MaxUnits = Set(10); c.Kind = "roof" },
			kind:   ErrOutOfRange,
			field:  "tipo_restriccion",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if tc.kind == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.kind)
			if tc.field != "" {
				assert.Equal(t, tc.field, fieldOf(t, err))
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Kind: ErrOutOfRange, Field: "lead_time", Value: 12.0, Detail: "too long"}
	assert.Equal(t, "OutOfRange: lead_time=12 (too long)", err.Error())
	assert.Equal(t, "OutOfRange", err.KindName())
}
