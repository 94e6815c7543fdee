package gains

import (
	"errors"
	"fmt"
	"testing"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seq int64

func tx(t *testing.T, day, code string, side fund.Side, units, price string) fund.Transaction {
	t.Helper()
	out, err := fund.NewTransaction(date.MustParse(day), code, "Fund "+code, side,
		decimal.RequireFromString(units), decimal.RequireFromString(price))
	require.NoError(t, err)
	seq++
	out.Seq = seq
	out.ID = fmt.Sprintf("tx-%d", seq)
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func TestComputeGains_EndToEnd(t *testing.T) {
	// Arrange
	txs := []fund.Transaction{
		tx(t, "2024-01-01", "119551", fund.Buy, "100", "45.00"),
		tx(t, "2024-06-01", "119551", fund.Buy, "100", "52.30"),
		tx(t, "2025-01-02", "119551", fund.Sell, "150", "55.00"),
	}

	// Act
	res, err := Match(txs)
	require.NoError(t, err)
	Classify(res.Events, Equity, DefaultPolicy)

	// Assert
	require.Len(t, res.Events, 2)

	first := res.Events[0]
	assert.Equal(t, date.MustParse("2024-01-01"), first.PurchaseDate)
	assertDecimal(t, "100", first.Units)
	assert.Equal(t, 367, first.HoldingDays)
	assert.Equal(t, LongTerm, first.Category)
	assertDecimal(t, "1000", first.Gain)
	assertDecimal(t, "4500", first.PurchaseAmount)
	assertDecimal(t, "5500", first.SaleAmount)
	assertDecimal(t, "22.22", first.GainPercent)
	assert.Equal(t, txs[0].ID, first.LotTransactionID)
	assert.Equal(t, txs[2].ID, first.SaleTransactionID)

	second := res.Events[1]
	assert.Equal(t, date.MustParse("2024-06-01"), second.PurchaseDate)
	assertDecimal(t, "50", second.Units)
	assert.Equal(t, 215, second.HoldingDays)
	assert.Equal(t, ShortTerm, second.Category)
	assertDecimal(t, "135", second.Gain)
	assert.Equal(t, "Fund 119551", second.SchemeName)

	require.Len(t, res.OpenLots["119551"], 1)
	open := res.OpenLots["119551"][0]
	assertDecimal(t, "50", open.Units)
	assertDecimal(t, "52.30", open.Price)
	assert.Equal(t, date.MustParse("2024-06-01"), open.Date)

	// The input is not modified.
	assertDecimal(t, "100", txs[1].Units)
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		days  int
		class AssetClass
		want  Category
	}{
		{name: "equity 365", days: 365, class: Equity, want: LongTerm},
		{name: "equity 364", days: 364, class: Equity, want: ShortTerm},
		{name: "debt 1095", days: 1095, class: Debt, want: LongTerm},
		{name: "debt 1094", days: 1094, class: Debt, want: ShortTerm},
		{name: "equity threshold does not apply to debt", days: 400, class: Debt, want: ShortTerm},
		{name: "same day", days: 0, class: Equity, want: ShortTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Through the full pipeline as well as the policy alone.
			buy := date.MustParse("2021-03-10")
			txs := []fund.Transaction{
				tx(t, buy.String(), "1", fund.Buy, "10", "10"),
				tx(t, buy.Add(tc.days).String(), "1", fund.Sell, "10", "11"),
			}

			events, err := ComputeGains(txs, tc.class, DefaultPolicy)

			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tc.days, events[0].HoldingDays)
			assert.Equal(t, tc.want, events[0].Category)
			assert.Equal(t, tc.want, DefaultPolicy.Classify(tc.days, tc.class))
		})
	}
}

func TestMatch_Oversell(t *testing.T) {
	t.Run("MoreThanBought", func(t *testing.T) {
		// Arrange
		txs := []fund.Transaction{
			tx(t, "2024-01-01", "A", fund.Buy, "10", "10"),
			tx(t, "2024-01-05", "B", fund.Buy, "100", "10"),
			tx(t, "2024-02-01", "A", fund.Sell, "4", "12"),
			tx(t, "2024-03-01", "A", fund.Sell, "7.5", "12"),
		}

		// Act
		res, err := Match(txs)
		events, errGains := ComputeGains(txs, Equity, DefaultPolicy)

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrOversell)
		var oe *apperrors.OversellError
		require.True(t, errors.As(err, &oe))
		assert.Equal(t, "A", oe.SchemeCode)
		assert.Equal(t, "2024-03-01", oe.Date)
		assert.Equal(t, txs[3].ID, oe.TransactionID)
		assertDecimal(t, "7.5", oe.Requested)
		assertDecimal(t, "6", oe.Available)
		assertDecimal(t, "1.5", oe.Shortfall())

		assert.Empty(t, res.Events, "no partial events")
		assert.ErrorIs(t, errGains, apperrors.ErrOversell)
		assert.Nil(t, events)
	})

	t.Run("SellBeforeBuyByDate", func(t *testing.T) {
		// Entered after the buy but dated before it.
		txs := []fund.Transaction{
			tx(t, "2024-05-01", "A", fund.Buy, "10", "10"),
			tx(t, "2024-04-01", "A", fund.Sell, "1", "10"),
		}

		_, err := Match(txs)

		assert.ErrorIs(t, err, apperrors.ErrOversell)
	})

	t.Run("OtherSchemeUnitsDoNotCount", func(t *testing.T) {
		txs := []fund.Transaction{
			tx(t, "2024-01-01", "B", fund.Buy, "100", "10"),
			tx(t, "2024-02-01", "A", fund.Sell, "1", "10"),
		}

		_, err := Match(txs)

		assert.ErrorIs(t, err, apperrors.ErrOversell)
	})
}

func TestMatch_FIFOProperty(t *testing.T) {
	// Arrange: five buys of increasing size, then one sell that spans several lots.
	var txs []fund.Transaction
	total := decimal.Zero
	for i := 1; i <= 5; i++ {
		units := decimal.NewFromInt(int64(i * 10))
		total = total.Add(units)
		txs = append(txs, tx(t, date.MustParse("2023-01-01").Add(i*30).String(), "X", fund.Buy, units.String(), fmt.Sprintf("%d", 10+i)))
	}
	sell := tx(t, "2024-06-30", "X", fund.Sell, "95", "20")
	txs = append(txs, sell)

	// Act
	res, err := Match(txs)

	// Assert
	require.NoError(t, err)
	matched := decimal.Zero
	for i, e := range res.Events {
		matched = matched.Add(e.Units)
		if i > 0 {
			assert.False(t, e.PurchaseDate.Before(res.Events[i-1].PurchaseDate), "lots consumed oldest first")
		}
	}
	assertDecimal(t, "95", matched)
	assert.Equal(t, txs[0].Date, res.Events[0].PurchaseDate, "first event uses the oldest open lot")
	require.Len(t, res.Events, 4) // 10 + 20 + 30 + 35 of 40

	lots := res.OpenLots["X"]
	require.Len(t, lots, 2)
	assertDecimal(t, "5", lots[0].Units)
	assertDecimal(t, "50", lots[1].Units)

	open := decimal.Zero
	for _, l := range lots {
		open = open.Add(l.Units)
	}
	assertDecimal(t, total.Sub(dec("95")).String(), open)
}

func TestMatch_ExactExhaustionRemovesScheme(t *testing.T) {
	txs := []fund.Transaction{
		tx(t, "2024-01-01", "A", fund.Buy, "10", "10"),
		tx(t, "2024-01-02", "A", fund.Buy, "5", "11"),
		tx(t, "2024-02-01", "A", fund.Sell, "15", "12"),
		tx(t, "2024-01-03", "B", fund.Buy, "1", "100"),
	}

	res, err := Match(txs)

	require.NoError(t, err)
	assert.Len(t, res.Events, 2)
	assert.NotContains(t, res.OpenLots, "A")
	assert.Contains(t, res.OpenLots, "B")
	assert.Equal(t, "Fund A", res.Names["A"])
}

func TestMatch_OrderingAndIdempotence(t *testing.T) {
	// Arrange: supplied out of date order, interleaving two schemes, with a
	// same-day buy and sell resolved by sequence.
	buyA := tx(t, "2024-01-01", "A", fund.Buy, "10", "10")
	buyB := tx(t, "2024-01-02", "B", fund.Buy, "10", "20")
	sellB := tx(t, "2024-03-01", "B", fund.Sell, "5", "25")
	sameDayBuy := tx(t, "2024-02-01", "A", fund.Buy, "5", "12")
	sameDaySell := tx(t, "2024-02-01", "A", fund.Sell, "12", "13")

	txs := []fund.Transaction{sellB, sameDaySell, buyB, sameDayBuy, buyA}

	// Act
	first, err := ComputeGains(txs, Equity, DefaultPolicy)
	require.NoError(t, err)
	second, err := ComputeGains(txs, Equity, DefaultPolicy)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, "A", first[0].SchemeCode)
	assert.Equal(t, buyA.ID, first[0].LotTransactionID)
	assert.Equal(t, sameDayBuy.ID, first[1].LotTransactionID)
	assertDecimal(t, "2", first[1].Units)
	assert.Equal(t, "B", first[2].SchemeCode, "events are chronological across schemes")
}

func TestMatch_TiesWithoutSequenceKeepInputOrder(t *testing.T) {
	buy, err := fund.NewTransaction(date.MustParse("2024-01-01"), "A", "", fund.Buy, dec("1"), dec("10"))
	require.NoError(t, err)
	sell, err := fund.NewTransaction(date.MustParse("2024-01-01"), "A", "", fund.Sell, dec("1"), dec("10"))
	require.NoError(t, err)

	_, err = Match([]fund.Transaction{buy, sell})
	assert.NoError(t, err)

	_, err = Match([]fund.Transaction{sell, buy})
	assert.ErrorIs(t, err, apperrors.ErrOversell)
}

func TestMatch_Empty(t *testing.T) {
	res, err := Match(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.OpenLots)
}

func TestLotQueue_CompactsConsumedPrefix(t *testing.T) {
	q := &lotQueue{}
	for i := 0; i < 100; i++ {
		q.push(fund.Lot{Units: decimal.NewFromInt(1)})
	}
	for i := 0; i < 90; i++ {
		m, _ := q.take(decimal.NewFromInt(1))
		assertDecimal(t, "1", m)
	}
	assert.Len(t, q.open(), 10)
	assertDecimal(t, "10", q.total)
	assert.Less(t, len(q.lots), 100)
}
