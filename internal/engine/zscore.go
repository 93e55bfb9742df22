package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Anchor maps a service-level percentage to its standard-normal z-score.
type Anchor struct {
	ServiceLevelPct float64
	ZScore          float64
}

// DefaultAnchors is the standard table, strictly decreasing in both columns.
var DefaultAnchors = []Anchor{
	{99.9, 3.09},
	{99.5, 2.58},
	{99.0, 2.33},
	{98.0, 2.05},
	{97.5, 1.96},
	{97.0, 1.88},
	{96.0, 1.75},
	{95.0, 1.65},
	{94.0, 1.55},
	{93.0, 1.48},
	{92.0, 1.41},
	{91.0, 1.34},
	{90.0, 1.28},
	{85.0, 1.04},
	{80.0, 0.84},
	{75.0, 0.67},
	{70.0, 0.52},
}

// ZScoreTable looks up z-scores with linear interpolation between anchors.
type ZScoreTable struct {
	anchors []Anchor
}

// NewZScoreTable validates that anchors are strictly decreasing in both percentage and z-score.
func NewZScoreTable(anchors []Anchor) (*ZScoreTable, error) {
	if len(anchors) == 0 {
		return nil, fmt.Errorf("z-score table needs at least one anchor")
	}
	for i := 1; i < len(anchors); i++ {
		prev, cur := anchors[i-1], anchors[i]
		if cur.ServiceLevelPct >= prev.ServiceLevelPct {
			return nil, fmt.Errorf("anchor %d: percentage %.2f is not below %.2f", i, cur.ServiceLevelPct, prev.ServiceLevelPct)
		}
		if cur.ZScore >= prev.ZScore {
			return nil, fmt.Errorf("anchor %d: z-score %.2f is not below %.2f", i, cur.ZScore, prev.ZScore)
		}
	}

	owned := make([]Anchor, len(anchors))
	copy(owned, anchors)
	return &ZScoreTable{anchors: owned}, nil
}

// DefaultZScoreTable returns the table built from DefaultAnchors.
func DefaultZScoreTable() *ZScoreTable {
	t, err := NewZScoreTable(DefaultAnchors)
	if err != nil {
		panic(err)
	}
	return t
}

// Anchors returns a copy of the table.
func (t *ZScoreTable) Anchors() []Anchor {
	out := make([]Anchor, len(t.anchors))
	copy(out, t.anchors)
	return out
}

// ZScoreFor returns the z-score for a service-level percentage. Exact anchors return
// the tabled value, values between anchors are interpolated linearly and values
// outside the table clamp to the nearest end.
func (t *ZScoreTable) ZScoreFor(serviceLevelPct float64) float64 {
	first, last := t.anchors[0], t.anchors[len(t.anchors)-1]
	if serviceLevelPct >= first.ServiceLevelPct {
		return first.ZScore
	}
	if serviceLevelPct <= last.ServiceLevelPct {
		return last.ZScore
	}

	for i := 1; i < len(t.anchors); i++ {
		hi, lo := t.anchors[i-1], t.anchors[i]
		if serviceLevelPct == lo.ServiceLevelPct {
			return lo.ZScore
		}
		if serviceLevelPct > lo.ServiceLevelPct {
			return hi.ZScore + (lo.ZScore-hi.ZScore)*(serviceLevelPct-hi.ServiceLevelPct)/(lo.ServiceLevelPct-hi.ServiceLevelPct)
		}
	}

	return last.ZScore
}

// RoundedZScoreFor is ZScoreFor rounded to two decimal places, the precision stored
// on a service-level class.
func (t *ZScoreTable) RoundedZScoreFor(serviceLevelPct float64) float64 {
	return RoundZScore(t.ZScoreFor(serviceLevelPct))
}

// RoundZScore rounds half away from zero to two decimal places.
func RoundZScore(z float64) float64 {
	return decimal.NewFromFloat(z).Round(2).InexactFloat64()
}
