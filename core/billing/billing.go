package billing

import (
	"math"
	"time"

	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/core/tariff"
)

// Engine accrues energy and cost for charge sessions against a tariff table.
// It is stateless apart from the read-only table and safe to share between
// piles.
type Engine struct {
	tariff *tariff.Table
}

// NewEngine returns an Engine billing against the given table.
func NewEngine(t *tariff.Table) *Engine {
	return &Engine{tariff: t}
}

// Accrue bills the session for the interval [LastBilled, now), splitting it
// at every tariff boundary so each sub-interval is billed at a single price.
// When the accrual would overshoot the requested energy, the last interval
// is clamped to the exact completion instant and the session lands precisely
// on its target; Accrue then reports true. Calling it again with an
// unchanged now is a no-op.
func (e *Engine) Accrue(s *model.ChargeSession, powerKW float64, now time.Time) bool {
	if powerKW <= 0 {
		return false
	}
	if s.RemainingKWh() == 0 {
		return true
	}
	fee := e.tariff.ServiceFee()
	cur := s.LastBilled
	for cur.Before(now) {
		end := e.tariff.NextBoundary(cur)
		if end.After(now) {
			end = now
		}
		price := e.tariff.PriceAt(cur)
		energy := powerKW * end.Sub(cur).Hours()
		remaining := s.Request.RequestedKWh - s.EnergyKWh
		if energy >= remaining {
			s.LastBilled = cur.Add(hoursToDuration(remaining / powerKW))
			s.EnergyKWh = s.Request.RequestedKWh
			s.EnergyCost += remaining * price
			s.ServiceCost += remaining * fee
			return true
		}
		s.EnergyKWh += energy
		s.EnergyCost += energy * price
		s.ServiceCost += energy * fee
		s.LastBilled = end
		cur = end
	}
	return false
}

// EstimatedEnd projects the completion instant assuming charging continues
// uninterrupted at the given power.
func EstimatedEnd(s model.ChargeSession, powerKW float64) time.Time {
	if powerKW <= 0 {
		return s.LastBilled
	}
	return s.LastBilled.Add(hoursToDuration(s.RemainingKWh() / powerKW))
}

// hoursToDuration rounds to the nearest nanosecond so interval arithmetic
// lands on exact instants.
func hoursToDuration(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

// Round2 rounds a monetary amount to two decimals for reporting. Internal
// accounting keeps full precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
