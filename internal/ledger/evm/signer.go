package evm

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// LoadKey decrypts the JSON keystore at path. When account is set it must
// match the key's address.
func LoadKey(path, passphrase, account string) (*ecdsa.PrivateKey, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet %s: %w", path, err)
	}

	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %s: %w", path, err)
	}

	if account != "" && common.HexToAddress(account) != key.Address {
		return nil, fmt.Errorf("wallet %s holds %s, expected account %s", path, key.Address.Hex(), account)
	}
	return key.PrivateKey, nil
}
