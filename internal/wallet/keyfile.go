package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

// LoadOrCreateKey loads the hex-encoded secp256k1 key at keyPath, creating
// one when the file is missing or empty. Key files are written with 0600
// permissions.
func LoadOrCreateKey(keyPath string) (*ecdsa.PrivateKey, error) {
	if keyPath == "" {
		return nil, errors.New("key file path is empty")
	}
	info, err := os.Stat(keyPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return GenerateKey(keyPath)
	}
	if err != nil {
		return nil, err
	}

	key, err := crypto.LoadECDSA(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", keyPath, err)
	}
	return key, nil
}

// GenerateKey creates a fresh key and writes it to keyPath, replacing any
// existing file.
func GenerateKey(keyPath string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(keyPath, key); err != nil {
		return nil, fmt.Errorf("failed to save key %s: %w", keyPath, err)
	}
	return key, nil
}
