package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haggle/internal/service/negotiation/domain"
)

func TestEmptyRuleAllowsEverything(t *testing.T) {
	e, err := NewCelPolicyEngine("")
	require.NoError(t, err)

	ok, err := e.Negotiable(context.Background(), domain.PolicyFact{SKU: "anything"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuleEvaluation(t *testing.T) {
	e, err := NewCelPolicyEngine(`base_price >= 100.0 && category != 'gift_card'`)
	require.NoError(t, err)

	cases := []struct {
		name string
		fact domain.PolicyFact
		want bool
	}{
		{"negotiable product", domain.PolicyFact{SKU: "sku-1", BasePrice: 600, Category: "electronics"}, true},
		{"too cheap", domain.PolicyFact{SKU: "sku-2", BasePrice: 50, Category: "electronics"}, false},
		{"excluded category", domain.PolicyFact{SKU: "sku-3", BasePrice: 600, Category: "gift_card"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Negotiable(context.Background(), tc.fact)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRuleMustCompile(t *testing.T) {
	_, err := NewCelPolicyEngine(`base_price >=`)
	assert.Error(t, err)
}

func TestRuleMustReturnBool(t *testing.T) {
	_, err := NewCelPolicyEngine(`base_price + 1.0`)
	assert.Error(t, err)
}
