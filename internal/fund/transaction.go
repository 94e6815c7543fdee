package fund

import (
	"strings"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable BUY or SELL of fund units.
// ID and Seq are assigned by the ledger on append; Seq records insertion order.
type Transaction struct {
	ID         string          `json:"id,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Date       date.Date       `json:"date"`
	SchemeCode string          `json:"scheme_code"`
	SchemeName string          `json:"scheme_name"`
	Side       Side            `json:"type"`
	Units      decimal.Decimal `json:"units"`
	Price      decimal.Decimal `json:"nav"`
	Amount     decimal.Decimal `json:"amount"`
}

// Input is the loosely typed form of a transaction as entered by a user.
type Input struct {
	Date       string
	SchemeCode string
	SchemeName string
	Side       string
	Units      decimal.Decimal
	Price      decimal.Decimal
}

// NewTransaction validates the fields and returns a transaction with
// Amount = Units × Price. Errors wrap apperrors.ErrInvalidTransaction.
func NewTransaction(on date.Date, schemeCode, schemeName string, side Side, units, price decimal.Decimal) (Transaction, error) {
	fields := make(map[string]string)

	if on.IsZero() {
		fields["date"] = "date is required"
	}
	if strings.TrimSpace(schemeCode) == "" {
		fields["scheme_code"] = "scheme code is required"
	}
	if !side.Valid() {
		fields["type"] = "type must be BUY or SELL"
	}
	if !units.IsPositive() {
		fields["units"] = "units must be positive"
	}
	if !price.IsPositive() {
		fields["nav"] = "nav must be positive"
	}

	if len(fields) > 0 {
		return Transaction{}, &apperrors.ValidationError{Fields: fields}
	}

	return Transaction{
		Date:       on,
		SchemeCode: strings.TrimSpace(schemeCode),
		SchemeName: strings.TrimSpace(schemeName),
		Side:       side,
		Units:      units,
		Price:      price,
		Amount:     units.Mul(price),
	}, nil
}

// Parse builds a transaction from user input, reporting every invalid field at once.
func Parse(in Input) (Transaction, error) {
	fields := make(map[string]string)

	on, err := date.Parse(strings.TrimSpace(in.Date))
	if err != nil {
		fields["date"] = err.Error()
	}
	side, err := ParseSide(in.Side)
	if err != nil {
		fields["type"] = err.Error()
	}

	tx, err := NewTransaction(on, in.SchemeCode, in.SchemeName, side, in.Units, in.Price)
	if err == nil && len(fields) == 0 {
		return tx, nil
	}

	if ve, ok := err.(*apperrors.ValidationError); ok {
		for k, v := range ve.Fields {
			if _, set := fields[k]; !set {
				fields[k] = v
			}
		}
	}
	return Transaction{}, &apperrors.ValidationError{Fields: fields}
}

// IsBuy reports whether the transaction opens a lot.
func (t Transaction) IsBuy() bool { return t.Side == Buy }

// Validate re-checks the structural invariants of an already built transaction,
// e.g. one loaded from storage.
func (t Transaction) Validate() error {
	_, err := NewTransaction(t.Date, t.SchemeCode, t.SchemeName, t.Side, t.Units, t.Price)
	return err
}
