package journal

import (
	"context"
	"errors"
	"testing"

	"vaultctl/internal/ledger"
	"vaultctl/internal/vault"
	"vaultctl/pkg/storage/postgres"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records []*postgres.TxRecord
}

func (m *memStore) InsertTx(_ context.Context, r *postgres.TxRecord) error {
	m.records = append(m.records, r)
	return nil
}

// go test -v --run TestRecord
func TestRecord(t *testing.T) {
	store := &memStore{}
	account := common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	j := New(store, "testnet", account)

	v := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	require.NoError(t, j.Record(context.Background(), vault.Outcome{
		Op:     "lpCancel",
		Vaults: []common.Address{v},
		TxHash: common.HexToHash("0x01"),
		Status: 1,
	}))
	require.NoError(t, j.Record(context.Background(), vault.Outcome{
		Op:  "approve",
		Err: &ledger.CallError{Method: "approve", Short: "execution reverted: paused", Cause: errors.New("rpc")},
	}))

	require.Len(t, store.records, 2)
	ok := store.records[0]
	assert.Equal(t, j.RunID(), ok.RunID)
	assert.Equal(t, "testnet", ok.Network)
	assert.Equal(t, "0xa11ce00000000000000000000000000000000001", ok.Account)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, []string(ok.Vaults))
	assert.True(t, ok.Succeeded())

	failed := store.records[1]
	assert.Nil(t, failed.Status)
	assert.Empty(t, failed.TxHash)
	assert.Equal(t, "execution reverted: paused", failed.Error)
	assert.False(t, failed.Succeeded())
}
