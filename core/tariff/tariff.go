package tariff

import (
	"fmt"
	"sort"
	"time"
)

// Period is one time-of-day pricing window, half-open [Start, End).
// A period whose End is before its Start wraps past midnight.
type Period struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
	Price float64   `json:"price"`
}

type segment struct {
	start, end TimeOfDay
	price      float64
}

// Table is a validated time-of-day tariff: periods covering every instant of
// the day exactly once, plus a flat per-kWh service fee. Immutable after
// construction, safe for concurrent readers.
type Table struct {
	segs       []segment
	serviceFee float64
}

// New validates and normalizes the given periods into a Table. The periods
// must tile the full day with no gaps and no overlaps, and at most one of
// them may wrap past midnight. Violations are configuration errors.
func New(periods []Period, serviceFee float64) (*Table, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("tariff: no periods defined")
	}
	if serviceFee < 0 {
		return nil, fmt.Errorf("tariff: service fee must not be negative, got %v", serviceFee)
	}
	wraps := 0
	segs := make([]segment, 0, len(periods)+1)
	for _, p := range periods {
		start, end := p.Start, p.End
		if end == 0 {
			end = endOfDay
		}
		if start < 0 || start >= endOfDay || end > endOfDay {
			return nil, fmt.Errorf("tariff: period %s-%s out of range", p.Start, p.End)
		}
		if start == end {
			return nil, fmt.Errorf("tariff: period %s-%s is empty", p.Start, p.End)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("tariff: period %s-%s has negative price %v", p.Start, p.End, p.Price)
		}
		if end < start {
			wraps++
			segs = append(segs,
				segment{start: start, end: endOfDay, price: p.Price},
				segment{start: 0, end: end, price: p.Price},
			)
			continue
		}
		segs = append(segs, segment{start: start, end: end, price: p.Price})
	}
	if wraps > 1 {
		return nil, fmt.Errorf("tariff: %d periods wrap past midnight, at most one may", wraps)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
	if segs[0].start != 0 {
		return nil, fmt.Errorf("tariff: day not covered before %s", segs[0].start)
	}
	for i := 1; i < len(segs); i++ {
		switch {
		case segs[i].start > segs[i-1].end:
			return nil, fmt.Errorf("tariff: gap between %s and %s", segs[i-1].end, segs[i].start)
		case segs[i].start < segs[i-1].end:
			return nil, fmt.Errorf("tariff: overlap between %s and %s", segs[i].start, segs[i-1].end)
		}
	}
	if last := segs[len(segs)-1]; last.end != endOfDay {
		return nil, fmt.Errorf("tariff: day not covered after %s", last.end)
	}
	return &Table{segs: segs, serviceFee: serviceFee}, nil
}

// PriceAt returns the energy price per kWh in effect at the given instant.
// Periods are matched against the wall clock of the instant's location, so
// on DST transition days they stretch or shrink with the clock.
func (t *Table) PriceAt(at time.Time) float64 {
	elapsed := sinceMidnight(at)
	for _, s := range t.segs {
		if elapsed < time.Duration(s.end)*time.Second {
			return s.price
		}
	}
	return t.segs[len(t.segs)-1].price
}

// NextBoundary returns the earliest period boundary strictly after the given
// instant. The price is constant on [at, NextBoundary(at)).
func (t *Table) NextBoundary(at time.Time) time.Time {
	elapsed := sinceMidnight(at)
	y, m, d := at.Date()
	for _, s := range t.segs {
		if b := time.Duration(s.end) * time.Second; b > elapsed {
			// time.Date normalizes, so end-of-day boundaries land on the
			// next midnight and skipped DST wall times shift forward.
			return time.Date(y, m, d, 0, 0, int(s.end), 0, at.Location())
		}
	}
	return time.Date(y, m, d+1, 0, 0, 0, 0, at.Location())
}

// ServiceFee returns the flat per-kWh service fee.
func (t *Table) ServiceFee() float64 {
	return t.serviceFee
}

// Periods returns the normalized period list (wrapping periods split, sorted
// by start time).
func (t *Table) Periods() []Period {
	out := make([]Period, len(t.segs))
	for i, s := range t.segs {
		out[i] = Period{Start: s.start, End: s.end, Price: s.price}
	}
	return out
}

// sinceMidnight is the wall-clock time of day, not the elapsed duration
// since midnight. The two differ on DST transition days.
func sinceMidnight(at time.Time) time.Duration {
	hh, mm, ss := at.Clock()
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second + time.Duration(at.Nanosecond())
}

func tod(hour int) TimeOfDay {
	return TimeOfDay(hour * 3600)
}

var defaultPeriods = []Period{
	{Start: tod(0), End: tod(7), Price: 0.4},
	{Start: tod(7), End: tod(10), Price: 0.7},
	{Start: tod(10), End: tod(15), Price: 1.0},
	{Start: tod(15), End: tod(18), Price: 0.7},
	{Start: tod(18), End: tod(21), Price: 1.0},
	{Start: tod(21), End: tod(23), Price: 0.7},
	{Start: tod(23), End: tod(24), Price: 0.4},
}

const defaultServiceFee = 0.8

// Default returns the built-in peak/flat/valley table used when no price
// file exists.
func Default() *Table {
	t, err := New(defaultPeriods, defaultServiceFee)
	if err != nil {
		panic(err)
	}
	return t
}
