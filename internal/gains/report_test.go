package gains

import (
	"testing"

	"mf-portfolio-go/internal/fund"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	// Arrange
	txs := []fund.Transaction{
		tx(t, "2024-01-01", "119551", fund.Buy, "100", "45.00"),
		tx(t, "2024-06-01", "119551", fund.Buy, "100", "52.30"),
		tx(t, "2025-01-02", "119551", fund.Sell, "150", "55.00"),
		tx(t, "2024-02-01", "120503", fund.Buy, "10", "100"),
		tx(t, "2024-03-01", "120503", fund.Sell, "10", "90"),
	}
	events, err := ComputeGains(txs, Equity, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name      string
		exemption string
		taxable   string
	}{
		{name: "no exemption", exemption: "0", taxable: "1000"},
		{name: "partial exemption", exemption: "400", taxable: "600"},
		{name: "exemption above gain", exemption: "100000", taxable: "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			r := Summarize(events, dec(tc.exemption))

			// Assert
			assert.Equal(t, 3, r.Events)
			assertDecimal(t, "160", r.UnitsSold)
			assertDecimal(t, "1000", r.LongTermGain)
			assertDecimal(t, "35", r.ShortTermGain) // 135 - 100
			assertDecimal(t, "1035", r.TotalGain)
			assertDecimal(t, tc.taxable, r.LongTermTaxable)
		})
	}
}

func TestFilter(t *testing.T) {
	events := []Event{{SchemeCode: "A"}, {SchemeCode: "B"}, {SchemeCode: "A"}}

	assert.Len(t, Filter(events, "A"), 2)
	assert.Empty(t, Filter(events, "C"))
	assert.Len(t, Filter(events, ""), 3)
}

func TestParseAssetClass(t *testing.T) {
	c, err := ParseAssetClass(" Debt ")
	require.NoError(t, err)
	assert.Equal(t, Debt, c)

	c, err = ParseAssetClass("")
	require.NoError(t, err)
	assert.Equal(t, Equity, c)

	_, err = ParseAssetClass("gold")
	assert.Error(t, err)
	assert.Equal(t, "debt", Debt.String())
}
