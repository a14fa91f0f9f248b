package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TxRecord is one contract write issued by vaultctl, successful or not.
type TxRecord struct {
	ID uint `gorm:"primaryKey"`

	RunID   uuid.UUID `gorm:"type:uuid;not null;index:idx_tx_run"` // one id per CLI invocation
	Network string    `gorm:"type:text;not null;index:idx_tx_network_op"`
	Account string    `gorm:"type:varchar(42);not null"`
	Op      string    `gorm:"type:varchar(32);not null;index:idx_tx_network_op"` // e.g. "createVault", "lpWithdrawVaults"

	Vaults pq.StringArray `gorm:"type:text[]"`
	TxHash string         `gorm:"type:varchar(66)"` // empty when the write was never sent
	Status *uint64        // receipt status, nil when no receipt
	Error  string         `gorm:"type:text"`

	RecordedAt time.Time `gorm:"autoCreateTime;index:idx_tx_recorded_at"`
}

// TableName overrides the default table name for GORM.
func (TxRecord) TableName() string {
	return "vault_tx_record"
}

// Succeeded reports whether the write was mined with status 1.
func (r TxRecord) Succeeded() bool {
	return r.Error == "" && r.Status != nil && *r.Status == 1
}
