package tariff

import (
	"testing"
	"time"
)

func mustTod(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func at(h, m, s int) time.Time {
	return time.Date(2024, 6, 1, h, m, s, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"07:00:00", 7 * 3600, false},
		{"23:59:59", 23*3600 + 59*60 + 59, false},
		{"24:00:00", endOfDay, false},
		{"7:5:3", 7*3600 + 5*60 + 3, false},
		{"24:00:01", 0, true},
		{"25:00:00", 0, true},
		{"12:60:00", 0, true},
		{"12:00", 0, true},
		{"garbage", 0, true},
		{"-1:00:00", 0, true},
	}
	for _, c := range cases {
		got, err := ParseTimeOfDay(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q: got %d want %d", c.in, got, c.want)
		}
	}
}

func TestTimeOfDayString(t *testing.T) {
	if s := TimeOfDay(7*3600 + 30*60).String(); s != "07:30:00" {
		t.Errorf("got %s", s)
	}
	if s := endOfDay.String(); s != "24:00:00" {
		t.Errorf("got %s", s)
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		periods []Period
		fee     float64
		wantErr bool
	}{
		{"default ok", defaultPeriods, 0.8, false},
		{"single full day", []Period{{Start: 0, End: endOfDay, Price: 0.5}}, 0, false},
		{"midnight end token", []Period{{Start: tod(6), End: 0, Price: 0.5}, {Start: 0, End: tod(6), Price: 0.3}}, 0, false},
		{"one wrap ok", []Period{{Start: tod(22), End: tod(6), Price: 0.3}, {Start: tod(6), End: tod(22), Price: 0.8}}, 0, false},
		{"empty list", nil, 0, true},
		{"gap", []Period{{Start: tod(0), End: tod(7), Price: 0.4}, {Start: tod(8), End: endOfDay, Price: 0.7}}, 0, true},
		{"overlap", []Period{{Start: tod(0), End: tod(8), Price: 0.4}, {Start: tod(7), End: endOfDay, Price: 0.7}}, 0, true},
		{"uncovered tail", []Period{{Start: tod(0), End: tod(23), Price: 0.4}}, 0, true},
		{"uncovered head", []Period{{Start: tod(1), End: endOfDay, Price: 0.4}}, 0, true},
		{"two wraps", []Period{{Start: tod(22), End: tod(2), Price: 0.3}, {Start: tod(23), End: tod(3), Price: 0.4}}, 0, true},
		{"empty period", []Period{{Start: tod(10), End: tod(10), Price: 0.4}}, 0, true},
		{"negative price", []Period{{Start: 0, End: endOfDay, Price: -0.1}}, 0, true},
		{"negative fee", []Period{{Start: 0, End: endOfDay, Price: 0.5}}, -1, true},
		{"start out of range", []Period{{Start: endOfDay, End: tod(1), Price: 0.5}}, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(c.periods, c.fee)
			if c.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWrapNormalization(t *testing.T) {
	tb, err := New([]Period{
		{Start: mustTod(t, "23:00:00"), End: mustTod(t, "07:00:00"), Price: 0.4},
		{Start: mustTod(t, "07:00:00"), End: mustTod(t, "23:00:00"), Price: 0.9},
	}, 0.8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n := len(tb.Periods()); n != 3 {
		t.Fatalf("normalized periods: %d", n)
	}
	if p := tb.PriceAt(at(23, 30, 0)); p != 0.4 {
		t.Errorf("23:30 price: %v", p)
	}
	if p := tb.PriceAt(at(0, 30, 0)); p != 0.4 {
		t.Errorf("00:30 price: %v", p)
	}
	if p := tb.PriceAt(at(12, 0, 0)); p != 0.9 {
		t.Errorf("12:00 price: %v", p)
	}
}

func TestDefaultTablePrices(t *testing.T) {
	tb := Default()
	cases := []struct {
		at    time.Time
		price float64
	}{
		{at(0, 0, 0), 0.4},
		{at(6, 59, 59), 0.4},
		{at(7, 0, 0), 0.7},
		{at(9, 59, 59), 0.7},
		{at(10, 0, 0), 1.0},
		{at(14, 59, 59), 1.0},
		{at(15, 0, 0), 0.7},
		{at(18, 0, 0), 1.0},
		{at(21, 0, 0), 0.7},
		{at(23, 0, 0), 0.4},
		{at(23, 59, 59), 0.4},
	}
	for _, c := range cases {
		if p := tb.PriceAt(c.at); p != c.price {
			t.Errorf("%v: got %v want %v", c.at, p, c.price)
		}
	}
	if f := tb.ServiceFee(); f != 0.8 {
		t.Errorf("service fee: %v", f)
	}
}

// Every instant of the day must fall in exactly one normalized segment.
func TestPartitionCoversDay(t *testing.T) {
	tb := Default()
	for sec := 0; sec < 24*3600; sec += 60 {
		n := 0
		for _, s := range tb.segs {
			if TimeOfDay(sec) >= s.start && TimeOfDay(sec) < s.end {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("second %d covered by %d segments", sec, n)
		}
	}
}

func TestNextBoundary(t *testing.T) {
	tb := Default()
	cases := []struct {
		at   time.Time
		want time.Time
	}{
		{at(6, 30, 0), at(7, 0, 0)},
		{at(7, 0, 0), at(10, 0, 0)},
		{at(0, 0, 0), at(7, 0, 0)},
		{at(23, 30, 0), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
		{at(23, 59, 59), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got := tb.NextBoundary(c.at)
		if !got.Equal(c.want) {
			t.Errorf("%v: got %v want %v", c.at, got, c.want)
		}
		if !got.After(c.at) {
			t.Errorf("%v: boundary %v not strictly after", c.at, got)
		}
	}
}

func TestNextBoundarySubSecond(t *testing.T) {
	tb := Default()
	in := at(6, 59, 59).Add(500 * time.Millisecond)
	if got := tb.NextBoundary(in); !got.Equal(at(7, 0, 0)) {
		t.Fatalf("got %v", got)
	}
}

func TestWallClockOnDSTDays(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	tb := Default()

	// 2026-03-29: clocks jump 02:00 -> 03:00, the local day is 23h long.
	spring := time.Date(2026, 3, 29, 10, 30, 0, 0, loc)
	if got := tb.PriceAt(spring); got != 1.0 {
		t.Fatalf("10:30 on spring-forward day: got %v want 1.0", got)
	}
	if got := tb.NextBoundary(time.Date(2026, 3, 29, 1, 0, 0, 0, loc)); got.Hour() != 7 {
		t.Fatalf("boundary after 01:00 should land at 07:00 wall time, got %v", got)
	}

	// 2026-10-25: clocks fall back 03:00 -> 02:00, the local day is 25h long.
	fall := time.Date(2026, 10, 25, 9, 30, 0, 0, loc)
	if got := tb.PriceAt(fall); got != 0.7 {
		t.Fatalf("09:30 on fall-back day: got %v want 0.7", got)
	}
	late := time.Date(2026, 10, 25, 23, 30, 0, 0, loc)
	next := tb.NextBoundary(late)
	if !next.After(late) || next.Day() != 26 || next.Hour() != 0 {
		t.Fatalf("boundary after 23:30 should be next midnight, got %v", next)
	}
}
