package fund

import (
	"encoding/json"
	"testing"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	on := date.MustParse("2024-01-01")

	testCases := []struct {
		name          string
		side          Side
		units         string
		price         string
		expectedField string
	}{
		{name: "Valid buy", side: Buy, units: "100", price: "45.00"},
		{name: "Valid sell", side: Sell, units: "0.123", price: "55.5"},
		{name: "Zero units", side: Buy, units: "0", price: "45", expectedField: "units"},
		{name: "Negative price", side: Buy, units: "10", price: "-1", expectedField: "nav"},
		{name: "Unknown side", side: Side(7), units: "10", price: "1", expectedField: "type"},
		{name: "Zero side", side: Side(0), units: "10", price: "1", expectedField: "type"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := NewTransaction(on, "119551", "HDFC Top 100", tc.side,
				decimal.RequireFromString(tc.units), decimal.RequireFromString(tc.price))

			if tc.expectedField != "" {
				require.ErrorIs(t, err, apperrors.ErrInvalidTransaction)
				var ve *apperrors.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Contains(t, ve.Fields, tc.expectedField)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.side, tx.Side)
			assert.True(t, tx.Amount.Equal(tx.Units.Mul(tx.Price)))
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		tx, err := Parse(Input{
			Date:       "2024-06-01",
			SchemeCode: " 119551 ",
			SchemeName: "HDFC Top 100",
			Side:       "buy",
			Units:      decimal.NewFromInt(100),
			Price:      decimal.RequireFromString("52.30"),
		})
		require.NoError(t, err)
		assert.Equal(t, "119551", tx.SchemeCode)
		assert.Equal(t, Buy, tx.Side)
		assert.Equal(t, date.MustParse("2024-06-01"), tx.Date)
		assert.True(t, tx.Amount.Equal(decimal.NewFromInt(5230)))
	})

	t.Run("Every invalid field is reported", func(t *testing.T) {
		_, err := Parse(Input{
			Date:  "31/12/2024",
			Side:  "HOLD",
			Units: decimal.Zero,
			Price: decimal.NewFromInt(10),
		})
		var ve *apperrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "date")
		assert.Contains(t, ve.Fields, "type")
		assert.Contains(t, ve.Fields, "units")
		assert.Contains(t, ve.Fields, "scheme_code")
		assert.NotContains(t, ve.Fields, "nav")
	})
}

func TestTransactionJSON(t *testing.T) {
	tx, err := NewTransaction(date.MustParse("2024-01-01"), "119551", "HDFC Top 100", Sell,
		decimal.NewFromInt(2), decimal.RequireFromString("10.5"))
	require.NoError(t, err)

	out, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"date": "2024-01-01",
		"scheme_code": "119551",
		"scheme_name": "HDFC Top 100",
		"type": "SELL",
		"units": "2",
		"nav": "10.5",
		"amount": "21"
	}`, string(out))

	var back Transaction
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, Sell, back.Side)
	assert.NoError(t, back.Validate())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" Sell ")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)
	assert.Equal(t, "SELL", s.String())

	_, err = ParseSide("SWITCH")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", Side(0).String())
}
