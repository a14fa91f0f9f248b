package evm

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEth answers eth_call for ERC20 metadata getters.
type fakeEth struct {
	calls int
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	f.calls++
	raw, _ := args["data"].(string)
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, err
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "name":
		return method.Outputs.Pack("Wrapped Ether")
	case "symbol":
		return method.Outputs.Pack("WETH")
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	case "balanceOf":
		return nil, errors.New("execution reverted: paused")
	}
	return nil, errors.New("unsupported")
}

func newTestClient(t *testing.T, eth *fakeEth) *Client {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", eth))
	t.Cleanup(server.Stop)

	c := &Client{
		rpc:    rpc.DialInProc(server),
		logger: zap.NewNop(),
		opts:   Options{CallTimeout: time.Second, MaxBatchSize: 2},
		vaults: make(map[common.Address]*vaultContract),
		tokens: make(map[common.Address]*tokenContract),
	}
	t.Cleanup(c.Close)
	return c
}

// go test -v --run TestBatchTokenMeta
func TestBatchTokenMeta(t *testing.T) {
	eth := &fakeEth{}
	c := newTestClient(t, eth)
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	b, err := c.NewBatch()
	require.NoError(t, err)

	meta := b.TokenMeta(token)
	balance := b.BalanceOf(token, common.HexToAddress("0x01"))

	require.NoError(t, b.Flush(context.Background()))

	require.NoError(t, meta.Err)
	assert.Equal(t, "Wrapped Ether", meta.Meta.Name)
	assert.Equal(t, "WETH", meta.Meta.Symbol)
	assert.Equal(t, uint8(18), meta.Meta.Decimals)
	assert.Equal(t, token, meta.Meta.Address)

	require.Error(t, balance.Err)
	assert.Contains(t, ledger.ShortMessage(balance.Err), "execution reverted")

	assert.Equal(t, 4, eth.calls)
}

// go test -v --run TestBatchWindow
func TestBatchWindow(t *testing.T) {
	c := newTestClient(t, &fakeEth{})

	b, err := c.NewBatch()
	require.NoError(t, err)

	_, err = c.NewBatch()
	assert.ErrorIs(t, err, ledger.ErrBatchOpen)

	_, err = c.Token(common.HexToAddress("0x02")).Approve(context.Background(), common.HexToAddress("0x03"), big.NewInt(1))
	assert.ErrorIs(t, err, ledger.ErrBatchOpen)

	b.Close()
	b.Close()

	next, err := c.NewBatch()
	require.NoError(t, err)
	require.NoError(t, next.Flush(context.Background()))
}

// go test -v --run TestTokenAdapterReused
func TestTokenAdapterReused(t *testing.T) {
	c := newTestClient(t, &fakeEth{})
	addr := common.HexToAddress("0x04")

	assert.Same(t, c.Token(addr), c.Token(addr))
	assert.Same(t, c.Vault(addr), c.Vault(addr))
}

// go test -v --run TestDecodeVaultCreated
func TestDecodeVaultCreated(t *testing.T) {
	event := factoryABI.Events["VaultCreated"]

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	base := common.HexToAddress("0x2222222222222222222222222222222222222222")
	quote := common.HexToAddress("0x3333333333333333333333333333333333333333")
	vault := common.HexToAddress("0x4444444444444444444444444444444444444444")

	data, err := event.Inputs.NonIndexed().Pack(vault, big.NewInt(1735689600), big.NewInt(2500), big.NewInt(3e16), true, big.NewInt(1e18))
	require.NoError(t, err)

	lg := &types.Log{
		Address: common.HexToAddress("0x05"),
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(owner.Bytes()),
			common.BytesToHash(base.Bytes()),
			common.BytesToHash(quote.Bytes()),
		},
		Data: data,
	}

	got := decodeLog(lg, factoryABI, erc20ABI)
	require.Equal(t, "VaultCreated", got.Name)
	assert.Equal(t, vault, got.Args["vaultAddress"])
	assert.Equal(t, owner, got.Args["owner"])
	assert.Equal(t, quote, got.Args["quoteToken"])
	assert.Equal(t, true, got.Args["isBuyLow"])
	assert.Equal(t, 0, got.Args["expiry"].(*big.Int).Cmp(big.NewInt(1735689600)))

	unknown := decodeLog(&types.Log{Topics: []common.Hash{{0x01}}}, factoryABI, erc20ABI)
	assert.Empty(t, unknown.Name)
}

// go test -v --run TestCallErrorShortMessage
func TestCallErrorShortMessage(t *testing.T) {
	err := callError("lpCancel", errors.New("estimate gas: execution reverted: not owner\ntrace"))
	assert.Equal(t, "execution reverted: not owner", ledger.ShortMessage(err))
	assert.EqualError(t, err, "lpCancel failed: execution reverted: not owner")
}

// go test -v --run TestLoadKey
func TestLoadKey(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	keyJSON, err := keystore.EncryptKey(key, "secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))

	loaded, err := LoadKey(path, "secret", key.Address.Hex())
	require.NoError(t, err)
	assert.Equal(t, key.Address, crypto.PubkeyToAddress(loaded.PublicKey))

	_, err = LoadKey(path, "wrong", "")
	assert.Error(t, err)

	_, err = LoadKey(path, "secret", "0x0000000000000000000000000000000000000001")
	assert.ErrorContains(t, err, "expected account")
}
