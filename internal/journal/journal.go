// Package journal persists the outcome of every vault write.
package journal

import (
	"context"
	"strings"

	"vaultctl/internal/ledger"
	"vaultctl/internal/vault"
	"vaultctl/pkg/storage/postgres"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TxStore is the write side of the journal table.
type TxStore interface {
	InsertTx(ctx context.Context, record *postgres.TxRecord) error
}

// Journal records outcomes of one CLI run under a fresh run id.
type Journal struct {
	store   TxStore
	runID   uuid.UUID
	network string
	account common.Address
}

var _ vault.Journal = (*Journal)(nil)

func New(store TxStore, network string, account common.Address) *Journal {
	return &Journal{
		store:   store,
		runID:   uuid.New(),
		network: network,
		account: account,
	}
}

func (j *Journal) RunID() uuid.UUID { return j.runID }

// Record stores o.
func (j *Journal) Record(ctx context.Context, o vault.Outcome) error {
	return j.store.InsertTx(ctx, j.toRecord(o))
}

func (j *Journal) toRecord(o vault.Outcome) *postgres.TxRecord {
	record := &postgres.TxRecord{
		RunID:   j.runID,
		Network: j.network,
		Account: strings.ToLower(j.account.Hex()),
		Op:      o.Op,
		Vaults:  make([]string, len(o.Vaults)),
	}
	for i, v := range o.Vaults {
		record.Vaults[i] = strings.ToLower(v.Hex())
	}
	if o.TxHash != (common.Hash{}) {
		record.TxHash = o.TxHash.Hex()
		status := o.Status
		record.Status = &status
	}
	if o.Err != nil {
		record.Error = ledger.ShortMessage(o.Err)
	}
	return record
}
