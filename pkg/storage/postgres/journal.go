package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (p *PostgresClient) InsertTx(ctx context.Context, record *TxRecord) error {
	return p.DB.WithContext(ctx).Create(record).Error
}

// ListByVault returns the newest records that touched vault, newest first.
func (p *PostgresClient) ListByVault(ctx context.Context, vault string, limit int) ([]TxRecord, error) {
	var records []TxRecord
	err := p.DB.WithContext(ctx).
		Where("? = ANY(vaults)", strings.ToLower(vault)).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListRecent returns the newest records of a network, newest first.
func (p *PostgresClient) ListRecent(ctx context.Context, network string, limit int) ([]TxRecord, error) {
	var records []TxRecord
	err := p.DB.WithContext(ctx).
		Where("network = ?", network).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListByRun returns the records of one invocation in insertion order.
func (p *PostgresClient) ListByRun(ctx context.Context, runID uuid.UUID) ([]TxRecord, error) {
	var records []TxRecord
	err := p.DB.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *PostgresClient) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("recorded_at < ?", before).
		Delete(&TxRecord{})
	return tx.RowsAffected, tx.Error
}
