package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextPeriodEnd(t *testing.T) {
	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.UTC) }

	cases := []struct {
		name  string
		plan  Plan
		start time.Time
		want  time.Time
	}{
		{"daily", Plan{Interval: IntervalDay, IntervalCount: 3}, at(2026, 1, 30), at(2026, 2, 2)},
		{"weekly", Plan{Interval: IntervalWeek, IntervalCount: 2}, at(2026, 12, 25), at(2027, 1, 8)},
		{"monthly", Plan{Interval: IntervalMonth, IntervalCount: 1}, at(2026, 3, 15), at(2026, 4, 15)},
		{"month end clamps", Plan{Interval: IntervalMonth, IntervalCount: 1}, at(2026, 1, 31), at(2026, 2, 28)},
		{"leap year", Plan{Interval: IntervalMonth, IntervalCount: 1}, at(2028, 1, 31), at(2028, 2, 29)},
		{"quarterly", Plan{Interval: IntervalMonth, IntervalCount: 3}, at(2026, 11, 30), at(2027, 2, 28)},
		{"yearly from leap day", Plan{Interval: IntervalYear, IntervalCount: 1}, at(2028, 2, 29), at(2029, 2, 28)},
		{"zero count means one", Plan{Interval: IntervalMonth}, at(2026, 5, 1), at(2026, 6, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.plan.NextPeriodEnd(tc.start))
		})
	}
}
