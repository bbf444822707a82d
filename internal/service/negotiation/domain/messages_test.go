package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickIsDeterministicForSameSeed(t *testing.T) {
	a := NewMessageCatalog(7)
	b := NewMessageCatalog(7)

	for i := 0; i < 20; i++ {
		assert.Equal(t,
			a.Pick(DecisionCounter, false, 9700, 300),
			b.Pick(DecisionCounter, false, 9700, 300),
		)
	}
}

func TestPickRendersPrices(t *testing.T) {
	c := NewMessageCatalog(1)

	msg := c.Pick(DecisionAccept, false, 9500, 500)

	assert.Contains(t, msg, "9,500")
	assert.Contains(t, msg, "500")
}

func TestPickFallsBackWhenNoFinalRoundVariant(t *testing.T) {
	c := NewMessageCatalog(1)

	// accept 没有最后一轮的专属话术，应回落到普通话术
	msg := c.Pick(DecisionAccept, true, 100, 10)

	assert.NotEmpty(t, msg)
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{582, "582"},
		{9500, "9,500"},
		{12500, "12,500"},
		{1234567, "1,234,567"},
		{99.5, "99.50"},
		{1234.25, "1,234.25"},
		{0, "0"},
		{-1500, "-1,500"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatPrice(tc.in), "FormatPrice(%v)", tc.in)
	}
}
