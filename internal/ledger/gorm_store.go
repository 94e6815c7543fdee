package ledger

import (
	"context"
	"fmt"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"
	"mf-portfolio-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore keeps transactions as rows of models.Transaction.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*GormStore)(nil)

// NewGormStore returns a store backed by db. The transactions table must
// already be migrated (see database.NewDatabase).
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger.Named("ledger.gorm")}
}

func (s *GormStore) Load(ctx context.Context) ([]fund.Transaction, error) {
	var rows []models.Transaction
	if err := s.db.WithContext(ctx).Order("date ASC, seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	txs := make([]fund.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", row.TxID, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *GormStore) Insert(ctx context.Context, tx fund.Transaction) error {
	row := toRow(tx)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// Delete removes the row permanently so its sequence number can be reused
// by the ledger.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Unscoped().Where("tx_id = ?", id).Delete(&models.Transaction{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
	}
	return nil
}

func toRow(tx fund.Transaction) models.Transaction {
	return models.Transaction{
		TxID:       tx.ID,
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

func fromRow(row models.Transaction) (fund.Transaction, error) {
	on, err := date.Parse(row.Date)
	if err != nil {
		return fund.Transaction{}, err
	}
	side, err := fund.ParseSide(row.Type)
	if err != nil {
		return fund.Transaction{}, err
	}
	tx, err := fund.NewTransaction(on, row.SchemeCode, row.SchemeName, side, row.Units, row.NAV)
	if err != nil {
		return fund.Transaction{}, err
	}
	tx.ID = row.TxID
	tx.Seq = row.Seq
	return tx, nil
}
