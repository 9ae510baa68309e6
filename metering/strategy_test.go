package metering

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengrow/dengrow/types"
)

func baseRequirements(amount string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           "testnet",
		MaxAmountRequired: amount,
		PayTo:             "ST23SRWT9A0CYMPW4Q32D0D7KT2YY07PQAVJY3NJZ",
	}
}

func TestFixedPriceAlwaysRequiresPayment(t *testing.T) {
	s := NewFixedPrice(baseRequirements("1000"))

	r := httptest.NewRequest("POST", "/water/101", nil)
	d := s.Evaluate(r)
	require.Equal(t, DecisionRequirePayment, d.Kind)
	require.NotNil(t, d.Requirements)
	assert.False(t, d.QuotaExhausted)
	assert.Equal(t, "1000", d.Requirements.MaxAmountRequired)
	assert.Equal(t, "/water/101", d.Requirements.Resource)

	// The shared template must not accumulate per-request state.
	d2 := s.Evaluate(httptest.NewRequest("POST", "/water/202", nil))
	assert.Equal(t, "/water/202", d2.Requirements.Resource)
	assert.Equal(t, "/water/101", d.Requirements.Resource)
}

func tierTable() map[string]TierOption {
	return map[string]TierOption{
		TierBasic:   {Amount: "100", Description: "basic plant data"},
		TierPremium: {Amount: "1000", Description: "premium plant data"},
	}
}

func TestTieredPriceSelectsTier(t *testing.T) {
	s := NewTieredPrice("tier", TierBasic, tierTable(), baseRequirements(""))

	d := s.Evaluate(httptest.NewRequest("GET", "/plant/150?tier=premium", nil))
	require.Equal(t, DecisionRequirePayment, d.Kind)
	assert.Equal(t, TierPremium, d.Tier)
	assert.Equal(t, "1000", d.Requirements.MaxAmountRequired)
	assert.Equal(t, "premium plant data", d.Requirements.Description)
}

func TestTieredPriceDefaultsWhenAbsent(t *testing.T) {
	s := NewTieredPrice("tier", TierBasic, tierTable(), baseRequirements(""))

	d := s.Evaluate(httptest.NewRequest("GET", "/plant/150", nil))
	assert.Equal(t, TierBasic, d.Tier)
	assert.Equal(t, "100", d.Requirements.MaxAmountRequired)
}

func TestTieredPriceUnknownFallsBack(t *testing.T) {
	s := NewTieredPrice("tier", TierBasic, tierTable(), baseRequirements(""))

	// A bad tier value is never a rejection, it prices as the default.
	d := s.Evaluate(httptest.NewRequest("GET", "/plant/150?tier=platinum", nil))
	require.Equal(t, DecisionRequirePayment, d.Kind)
	assert.Equal(t, TierBasic, d.Tier)
	assert.Equal(t, "100", d.Requirements.MaxAmountRequired)
}

func TestTieredPricePanicsOnMissingDefault(t *testing.T) {
	assert.Panics(t, func() {
		NewTieredPrice("tier", "gold", tierTable(), baseRequirements(""))
	})
}
