package fund

import (
	"mf-portfolio-go/internal/date"

	"github.com/shopspring/decimal"
)

// Lot is the still-open part of a BUY transaction.
type Lot struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Seq           int64           `json:"seq"`
	Date          date.Date       `json:"date"`
	Price         decimal.Decimal `json:"nav"`
	Units         decimal.Decimal `json:"units"`
}

// LotOf opens a lot for a BUY transaction.
func LotOf(t Transaction) Lot {
	return Lot{
		TransactionID: t.ID,
		Seq:           t.Seq,
		Date:          t.Date,
		Price:         t.Price,
		Units:         t.Units,
	}
}

// Cost is the purchase amount of the remaining units.
func (l Lot) Cost() decimal.Decimal { return l.Units.Mul(l.Price) }

// SchemeRef identifies a scheme published by the NAV source.
type SchemeRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// NAVPoint is the net asset value of a scheme on a given day.
type NAVPoint struct {
	Date date.Date       `json:"date"`
	NAV  decimal.Decimal `json:"nav"`
}
