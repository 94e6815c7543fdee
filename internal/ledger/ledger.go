// Package ledger keeps the ordered record of fund transactions and persists
// it through a Store.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/fund"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists ledger transactions.
type Store interface {
	// Load returns every stored transaction. IDs and sequence numbers must be set.
	Load(ctx context.Context) ([]fund.Transaction, error)
	// Insert stores a new transaction.
	Insert(ctx context.Context, tx fund.Transaction) error
	// Delete removes the transaction with the given ID, returning
	// apperrors.ErrTransactionNotFound if there is none.
	Delete(ctx context.Context, id string) error
}

// Ledger is the in-memory view of a Store, ordered by date then sequence.
// It is safe for concurrent use; readers receive copies.
type Ledger struct {
	mu      sync.RWMutex
	store   Store
	txs     []fund.Transaction
	nextSeq int64
	logger  *zap.Logger
	newID   func() string
}

// Open loads all transactions from store.
func Open(ctx context.Context, store Store, logger *zap.Logger) (*Ledger, error) {
	txs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	l := &Ledger{
		store:   store,
		txs:     txs,
		nextSeq: 1,
		logger:  logger.Named("ledger"),
		newID:   uuid.NewString,
	}
	for _, tx := range txs {
		if tx.Seq >= l.nextSeq {
			l.nextSeq = tx.Seq + 1
		}
	}
	slices.SortStableFunc(l.txs, compare)

	l.logger.Info("Ledger loaded", zap.Int("transactions", len(txs)))
	return l, nil
}

// compare orders transactions by date, then by insertion sequence.
func compare(a, b fund.Transaction) int {
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
}

// Append validates tx, assigns it an ID and the next sequence number and
// persists it. The stored transaction is returned.
func (l *Ledger) Append(ctx context.Context, tx fund.Transaction) (fund.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return fund.Transaction{}, err
	}
	tx.Amount = tx.Units.Mul(tx.Price)

	l.mu.Lock()
	defer l.mu.Unlock()

	tx.ID = l.newID()
	tx.Seq = l.nextSeq
	if err := l.store.Insert(ctx, tx); err != nil {
		return fund.Transaction{}, fmt.Errorf("failed to store transaction: %w", err)
	}
	l.nextSeq++

	i, _ := slices.BinarySearchFunc(l.txs, tx, compare)
	l.txs = slices.Insert(l.txs, i, tx)

	l.logger.Info("Transaction recorded",
		zap.String("id", tx.ID),
		zap.Int64("seq", tx.Seq),
		zap.String("scheme_code", tx.SchemeCode),
		zap.Stringer("type", tx.Side),
		zap.Stringer("date", tx.Date),
		zap.String("units", tx.Units.String()))
	return tx, nil
}

// All returns every transaction ordered by date, ties by insertion order.
func (l *Ledger) All() []fund.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.txs)
}

// ByScheme returns the transactions of one scheme in ledger order.
func (l *Ledger) ByScheme(code string) []fund.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []fund.Transaction
	for _, tx := range l.txs {
		if tx.SchemeCode == code {
			out = append(out, tx)
		}
	}
	return out
}

// Get returns the transaction with the given ID.
func (l *Ledger) Get(id string) (fund.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := l.index(id); i >= 0 {
		return l.txs[i], nil
	}
	return fund.Transaction{}, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
}

// Len returns the number of transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.txs)
}

// Remove deletes the transaction with the given ID.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
	}
	if err := l.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	l.txs = slices.Delete(l.txs, i, i+1)

	l.logger.Info("Transaction removed", zap.String("id", id))
	return nil
}

func (l *Ledger) index(id string) int {
	return slices.IndexFunc(l.txs, func(tx fund.Transaction) bool { return tx.ID == id })
}
