// Package gains matches SELL transactions against open BUY lots in FIFO
// order and classifies the realized gains as short or long term.
//
// Matching is pure: the same transactions always produce the same events in
// the same order.
package gains

import (
	"slices"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Event is the part of one SELL that was satisfied by one lot.
type Event struct {
	SaleDate          date.Date       `json:"sale_date"`
	SchemeCode        string          `json:"scheme_code"`
	SchemeName        string          `json:"scheme_name"`
	Units             decimal.Decimal `json:"units"`
	PurchaseDate      date.Date       `json:"purchase_date"`
	PurchasePrice     decimal.Decimal `json:"purchase_nav"`
	SalePrice         decimal.Decimal `json:"sale_nav"`
	PurchaseAmount    decimal.Decimal `json:"purchase_amount"`
	SaleAmount        decimal.Decimal `json:"sale_amount"`
	Gain              decimal.Decimal `json:"gain"`
	GainPercent       decimal.Decimal `json:"gain_percent"`
	HoldingDays       int             `json:"holding_days"`
	Category          Category        `json:"category,omitempty"`
	SaleTransactionID string          `json:"sale_transaction_id,omitempty"`
	LotTransactionID  string          `json:"lot_transaction_id,omitempty"`
}

// Result is the outcome of matching a transaction history.
type Result struct {
	// Events in processing order: by SELL, then by lot consumed.
	Events []Event
	// OpenLots holds the unconsumed lots per scheme code, oldest first.
	// Schemes without open lots are absent.
	OpenLots map[string][]fund.Lot
	// Names maps every scheme code seen to its most recent non-empty name.
	Names map[string]string
}

// Match replays txs in date order, ties broken by Seq and then by input
// order, keeping a FIFO queue of lots per scheme. Events are left
// unclassified. A SELL that exceeds the units open at that point returns an
// *apperrors.OversellError and no result.
func Match(txs []fund.Transaction) (Result, error) {
	ordered := slices.Clone(txs)
	slices.SortStableFunc(ordered, func(a, b fund.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	queues := make(map[string]*lotQueue)
	names := make(map[string]string)
	var events []Event

	for _, tx := range ordered {
		q, ok := queues[tx.SchemeCode]
		if !ok {
			q = &lotQueue{}
			queues[tx.SchemeCode] = q
		}
		if tx.SchemeName != "" {
			names[tx.SchemeCode] = tx.SchemeName
		} else if _, ok := names[tx.SchemeCode]; !ok {
			names[tx.SchemeCode] = ""
		}

		if tx.IsBuy() {
			q.push(fund.LotOf(tx))
			continue
		}

		if q.total.LessThan(tx.Units) {
			return Result{}, &apperrors.OversellError{
				SchemeCode:    tx.SchemeCode,
				Date:          tx.Date.String(),
				TransactionID: tx.ID,
				Requested:     tx.Units,
				Available:     q.total,
			}
		}

		remaining := tx.Units
		for remaining.IsPositive() && !q.empty() {
			m, lot := q.take(remaining)
			remaining = remaining.Sub(m)
			events = append(events, newEvent(tx, lot, m, names[tx.SchemeCode]))
		}
	}

	open := make(map[string][]fund.Lot)
	for code, q := range queues {
		if !q.empty() {
			open[code] = q.open()
		}
	}
	return Result{Events: events, OpenLots: open, Names: names}, nil
}

func newEvent(sale fund.Transaction, lot fund.Lot, units decimal.Decimal, name string) Event {
	purchase := units.Mul(lot.Price)
	proceeds := units.Mul(sale.Price)
	gain := proceeds.Sub(purchase)

	pct := decimal.Zero
	if purchase.IsPositive() {
		pct = gain.Div(purchase).Mul(hundred).Round(2)
	}

	return Event{
		SaleDate:          sale.Date,
		SchemeCode:        sale.SchemeCode,
		SchemeName:        name,
		Units:             units,
		PurchaseDate:      lot.Date,
		PurchasePrice:     lot.Price,
		SalePrice:         sale.Price,
		PurchaseAmount:    purchase,
		SaleAmount:        proceeds,
		Gain:              gain,
		GainPercent:       pct,
		HoldingDays:       sale.Date.DaysSince(lot.Date),
		SaleTransactionID: sale.ID,
		LotTransactionID:  lot.TransactionID,
	}
}

// ComputeGains matches txs and classifies every event with policy for class.
func ComputeGains(txs []fund.Transaction, class AssetClass, policy Policy) ([]Event, error) {
	res, err := Match(txs)
	if err != nil {
		return nil, err
	}
	Classify(res.Events, class, policy)
	return res.Events, nil
}

// Classify sets the Category of every event in place.
func Classify(events []Event, class AssetClass, policy Policy) {
	for i := range events {
		events[i].Category = policy.Classify(events[i].HoldingDays, class)
	}
}

// Filter returns the events of one scheme. An empty code returns events unchanged.
func Filter(events []Event, schemeCode string) []Event {
	if schemeCode == "" {
		return events
	}
	var out []Event
	for _, e := range events {
		if e.SchemeCode == schemeCode {
			out = append(out, e)
		}
	}
	return out
}
