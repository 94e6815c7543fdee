package gains

import (
	"github.com/shopspring/decimal"
)

// Report totals classified events.
type Report struct {
	Events          int             `json:"events"`
	UnitsSold       decimal.Decimal `json:"units_sold"`
	SaleAmount      decimal.Decimal `json:"sale_amount"`
	PurchaseAmount  decimal.Decimal `json:"purchase_amount"`
	ShortTermGain   decimal.Decimal `json:"stcg"`
	LongTermGain    decimal.Decimal `json:"ltcg"`
	TotalGain       decimal.Decimal `json:"total_gain"`
	Exemption       decimal.Decimal `json:"ltcg_exemption"`
	LongTermTaxable decimal.Decimal `json:"ltcg_taxable"`
}

// Summarize adds up events. LongTermTaxable is the long-term gain above
// exemption, never negative. Unclassified events count as short term.
func Summarize(events []Event, exemption decimal.Decimal) Report {
	r := Report{Events: len(events), Exemption: exemption}
	for _, e := range events {
		r.UnitsSold = r.UnitsSold.Add(e.Units)
		r.SaleAmount = r.SaleAmount.Add(e.SaleAmount)
		r.PurchaseAmount = r.PurchaseAmount.Add(e.PurchaseAmount)
		if e.Category == LongTerm {
			r.LongTermGain = r.LongTermGain.Add(e.Gain)
		} else {
			r.ShortTermGain = r.ShortTermGain.Add(e.Gain)
		}
	}
	r.TotalGain = r.ShortTermGain.Add(r.LongTermGain)
	r.LongTermTaxable = decimal.Max(decimal.Zero, r.LongTermGain.Sub(exemption))
	return r
}
