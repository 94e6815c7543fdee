package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a persisted ledger row.
// Rows are hard deleted so the unique Seq index stays free for reuse.
type Transaction struct {
	gorm.Model
	TxID       string          `gorm:"uniqueIndex;not null" json:"id"`
	Seq        int64           `gorm:"uniqueIndex;not null" json:"seq"`
	Date       string          `gorm:"index;not null" json:"date"` // YYYY-MM-DD
	SchemeCode string          `gorm:"index;not null" json:"scheme_code"`
	SchemeName string          `json:"scheme_name"`
	Type       string          `gorm:"not null" json:"type"` // "BUY" or "SELL"
	Units      decimal.Decimal `gorm:"type:text;not null" json:"units"`
	NAV        decimal.Decimal `gorm:"type:text;not null" json:"nav"`
	Amount     decimal.Decimal `gorm:"type:text;not null" json:"amount"`
}
