package gains

import (
	"fmt"
	"strings"
)

// AssetClass selects the holding period after which a gain is long term.
type AssetClass int

const (
	Equity AssetClass = iota
	Debt
)

func (c AssetClass) String() string {
	switch c {
	case Equity:
		return "equity"
	case Debt:
		return "debt"
	default:
		return "unknown"
	}
}

// ParseAssetClass accepts "equity" or "debt" in any case.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "":
		return Equity, nil
	case "debt":
		return Debt, nil
	}
	return 0, fmt.Errorf("unknown asset class %q", s)
}

// Category is the tax classification of a realized gain.
type Category string

const (
	ShortTerm Category = "STCG"
	LongTerm  Category = "LTCG"
)

// Policy holds the long-term thresholds in whole days.
type Policy struct {
	EquityLongTermDays int
	DebtLongTermDays   int
}

// DefaultPolicy is one year for equity and three years for debt.
var DefaultPolicy = Policy{EquityLongTermDays: 365, DebtLongTermDays: 1095}

// Threshold returns the number of days from which a holding of class is long term.
func (p Policy) Threshold(class AssetClass) int {
	if class == Debt {
		return p.DebtLongTermDays
	}
	return p.EquityLongTermDays
}

// Classify returns LongTerm iff days reaches the threshold for class.
func (p Policy) Classify(days int, class AssetClass) Category {
	if days >= p.Threshold(class) {
		return LongTerm
	}
	return ShortTerm
}
