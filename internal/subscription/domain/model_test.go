package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusPastDue, true},
		{StatusActive, StatusCanceled, true},
		{StatusPastDue, StatusActive, true},
		{StatusPastDue, StatusPaused, false},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusPastDue, false},
		{StatusCanceled, StatusActive, false},
		{StatusCanceled, StatusCanceled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
