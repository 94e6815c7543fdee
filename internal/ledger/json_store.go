package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/fileutil"
	"mf-portfolio-go/internal/fund"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// document is the on-disk shape of a JSON ledger.
type document struct {
	Transactions []record `json:"transactions"`
	LastUpdated  string   `json:"last_updated"`
}

// record is one stored transaction. Older documents carry the side under
// "transaction_type" and have no id or seq.
type record struct {
	ID              string          `json:"id,omitempty"`
	Seq             int64           `json:"seq,omitempty"`
	Date            string          `json:"date"`
	SchemeCode      string          `json:"scheme_code"`
	SchemeName      string          `json:"scheme_name"`
	Type            string          `json:"type,omitempty"`
	TransactionType string          `json:"transaction_type,omitempty"`
	Units           decimal.Decimal `json:"units"`
	NAV             decimal.Decimal `json:"nav"`
	Amount          decimal.Decimal `json:"amount"`
}

func recordOf(tx fund.Transaction) record {
	return record{
		ID:         tx.ID,
		Seq:        tx.Seq,
		Date:       tx.Date.String(),
		SchemeCode: tx.SchemeCode,
		SchemeName: tx.SchemeName,
		Type:       tx.Side.String(),
		Units:      tx.Units,
		NAV:        tx.Price,
		Amount:     tx.Amount,
	}
}

func (r record) transaction() (fund.Transaction, error) {
	t, err := fund.Parse(fund.Input{
		Date:       r.Date,
		SchemeCode: r.SchemeCode,
		SchemeName: r.SchemeName,
		Side:       firstNonEmpty(r.Type, r.TransactionType),
		Units:      r.Units,
		Price:      r.NAV,
	})
	if err != nil {
		return fund.Transaction{}, err
	}
	t.ID = r.ID
	t.Seq = r.Seq
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// JSONStore keeps the ledger in a single JSON document that is rewritten
// atomically on every change.
type JSONStore struct {
	path   string
	mu     sync.Mutex
	txs    []fund.Transaction // insertion order
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore returns a store for the document at path. The file is
// created on the first write.
func NewJSONStore(path string, logger *zap.Logger) *JSONStore {
	return &JSONStore{
		path:   path,
		logger: logger.Named("ledger.json"),
		now:    time.Now,
	}
}

// Load reads the document. A missing or empty file is an empty ledger.
// Transactions without an id or seq are given one, in document order, and
// the document is rewritten.
func (s *JSONStore) Load(_ context.Context) ([]fund.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.txs = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		s.txs = nil
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}

	txs := make([]fund.Transaction, 0, len(doc.Transactions))
	var maxSeq int64
	for i, r := range doc.Transactions {
		tx, err := r.transaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %d in %s: %w", i, s.path, err)
		}
		maxSeq = max(maxSeq, tx.Seq)
		txs = append(txs, tx)
	}

	migrated := 0
	seen := make(map[int64]bool, len(txs))
	for i := range txs {
		if txs[i].ID == "" {
			txs[i].ID = uuid.NewString()
			migrated++
		}
		if txs[i].Seq == 0 || seen[txs[i].Seq] {
			maxSeq++
			txs[i].Seq = maxSeq
			migrated++
		}
		seen[txs[i].Seq] = true
	}

	s.txs = txs
	if migrated > 0 {
		s.logger.Info("Assigned missing transaction ids", zap.String("path", s.path), zap.Int("fields", migrated))
		if err := s.write(); err != nil {
			return nil, err
		}
	}
	return slices.Clone(txs), nil
}

func (s *JSONStore) Insert(_ context.Context, tx fund.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.txs
	s.txs = append(slices.Clone(prev), tx)
	if err := s.write(); err != nil {
		s.txs = prev
		return err
	}
	return nil
}

func (s *JSONStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.txs, func(tx fund.Transaction) bool { return tx.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
	}

	prev := s.txs
	s.txs = slices.Delete(slices.Clone(prev), i, i+1)
	if err := s.write(); err != nil {
		s.txs = prev
		return err
	}
	return nil
}

// write stores s.txs sorted by date. The caller holds s.mu.
func (s *JSONStore) write() error {
	sorted := slices.Clone(s.txs)
	slices.SortStableFunc(sorted, compare)

	doc := document{
		Transactions: make([]record, 0, len(sorted)),
		LastUpdated:  s.now().Format(time.RFC3339),
	}
	for _, tx := range sorted {
		doc.Transactions = append(doc.Transactions, recordOf(tx))
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if err := fileutil.WriteAtomic(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
