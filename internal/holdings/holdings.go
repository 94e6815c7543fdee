// Package holdings values the open lots of a portfolio at current NAVs.
package holdings

import (
	"slices"
	"strings"

	"mf-portfolio-go/internal/fund"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Holding is the current position in one scheme.
type Holding struct {
	SchemeCode   string          `json:"scheme_code"`
	SchemeName   string          `json:"scheme_name"`
	Units        decimal.Decimal `json:"units"`
	Invested     decimal.Decimal `json:"invested"`
	AverageCost  decimal.Decimal `json:"average_nav"`
	CurrentNAV   decimal.Decimal `json:"current_nav"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Gain         decimal.Decimal `json:"gain"`
	GainPercent  decimal.Decimal `json:"gain_percent"`
	Lots         int             `json:"lots"`
	// NAVMissing is set when no NAV was supplied for the scheme; the
	// holding is then valued at zero.
	NAVMissing bool `json:"nav_missing,omitempty"`
}

// Summary totals a set of holdings.
type Summary struct {
	Holdings     int             `json:"holdings"`
	Invested     decimal.Decimal `json:"invested"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Gain         decimal.Decimal `json:"gain"`
	GainPercent  decimal.Decimal `json:"gain_percent"`
	// MissingNAVs lists the scheme codes valued without a NAV.
	MissingNAVs []string `json:"missing_navs,omitempty"`
}

// Build returns one holding per scheme with open units, ordered by current
// value (highest first) and then scheme code. names supplies display names;
// navs the current NAV per scheme code.
func Build(openLots map[string][]fund.Lot, names map[string]string, navs map[string]decimal.Decimal) []Holding {
	out := make([]Holding, 0, len(openLots))
	for code, lots := range openLots {
		h := Holding{SchemeCode: code, SchemeName: names[code]}
		for _, l := range lots {
			if !l.Units.IsPositive() {
				continue
			}
			h.Units = h.Units.Add(l.Units)
			h.Invested = h.Invested.Add(l.Cost())
			h.Lots++
		}
		if !h.Units.IsPositive() {
			continue
		}

		nav, ok := navs[code]
		h.NAVMissing = !ok
		h.CurrentNAV = nav
		h.AverageCost = h.Invested.DivRound(h.Units, 4)
		h.CurrentValue = h.Units.Mul(nav)
		h.Gain = h.CurrentValue.Sub(h.Invested)
		h.GainPercent = percent(h.Gain, h.Invested)
		out = append(out, h)
	}

	slices.SortFunc(out, func(a, b Holding) int {
		if c := b.CurrentValue.Cmp(a.CurrentValue); c != 0 {
			return c
		}
		return strings.Compare(a.SchemeCode, b.SchemeCode)
	})
	return out
}

// Summarize totals hs.
func Summarize(hs []Holding) Summary {
	s := Summary{Holdings: len(hs)}
	for _, h := range hs {
		s.Invested = s.Invested.Add(h.Invested)
		s.CurrentValue = s.CurrentValue.Add(h.CurrentValue)
		if h.NAVMissing {
			s.MissingNAVs = append(s.MissingNAVs, h.SchemeCode)
		}
	}
	s.Gain = s.CurrentValue.Sub(s.Invested)
	s.GainPercent = percent(s.Gain, s.Invested)
	slices.Sort(s.MissingNAVs)
	return s
}

// percent is gain/base×100 rounded to two places, or zero when base is not positive.
func percent(gain, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return gain.Div(base).Mul(hundred).Round(2)
}
