package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Input errors are raised before anything reaches the ledger.
var (
	// ErrInvalidTransaction indicates a transaction with non-positive units or price,
	// an unknown side or a malformed date.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrTransactionNotFound indicates that no transaction with the given ID is recorded.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Business logic errors.
var (
	// ErrOversell indicates that a SELL requests more units than remain open for
	// its scheme at that point of the chronological history.
	ErrOversell = errors.New("sell exceeds open units")
)

// NAV source and cache errors.
var (
	// ErrSchemeNotFound indicates that the remote source has no record for a scheme code.
	ErrSchemeNotFound = errors.New("scheme not found")

	// ErrSourceUnavailable indicates a transport failure, timeout or server error
	// while talking to the remote source.
	ErrSourceUnavailable = errors.New("nav source unavailable")

	// ErrCacheCorrupt indicates a stored cache entry that cannot be decoded.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)

// ValidationError carries per-field messages for a rejected transaction.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidTransaction, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidTransaction }

// OversellError describes the SELL that could not be matched.
type OversellError struct {
	SchemeCode    string
	Date          string
	TransactionID string
	Requested     decimal.Decimal
	Available     decimal.Decimal
}

// Shortfall is the number of units that had no open lot to match.
func (e *OversellError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("%s: scheme %s on %s sells %s units with %s open (short by %s)",
		ErrOversell, e.SchemeCode, e.Date, e.Requested, e.Available, e.Shortfall())
}

func (e *OversellError) Unwrap() error { return ErrOversell }
