package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"votedesk.mini/vdk/internal/chain"
)

// KeySession signs locally with a secp256k1 key. Its account never changes,
// so the watcher only reports chain switches and node loss.
type KeySession struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	hub     *hub
	watch   *watcher

	mu      sync.RWMutex
	chainID string
}

// NewKeySession creates a session for key over rc.
func NewKeySession(rc *rpc.Client, key *ecdsa.PrivateKey, logger *slog.Logger) *KeySession {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KeySession{
		eth:     ethclient.NewClient(rc),
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		hub:     &hub{},
	}
	s.watch = &watcher{
		hub:      s.hub,
		accounts: func(context.Context) ([]string, error) { return []string{s.address.Hex()}, nil },
		chainID:  s.fetchChainID,
		onRead:   s.store,
		logger:   logger,
	}
	return s
}

// Address is the account derived from the key.
func (s *KeySession) Address() common.Address { return s.address }

// Accounts returns the key's account.
func (s *KeySession) Accounts() []string {
	return []string{s.address.Hex()}
}

// ChainID returns the last known chain id.
func (s *KeySession) ChainID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// RequestAccounts confirms the node is reachable and returns the key's
// account. A local key never needs user approval.
func (s *KeySession) RequestAccounts(ctx context.Context) ([]string, error) {
	chainID, err := s.fetchChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.chainID = chainID
	s.mu.Unlock()

	accounts := s.Accounts()
	s.watch.observe(accounts, chainID)
	return accounts, nil
}

// Subscribe registers fn for session events.
func (s *KeySession) Subscribe(fn func(Event)) func() {
	return s.hub.subscribe(fn)
}

// Signer returns the local signer when account matches the key.
func (s *KeySession) Signer(account string) (chain.Signer, error) {
	if !strings.EqualFold(account, s.address.Hex()) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return &keySigner{eth: s.eth, key: s.key, from: s.address}, nil
}

func (s *KeySession) fetchChainID(ctx context.Context) (string, error) {
	id, err := s.eth.ChainID(ctx)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *KeySession) store(_ []string, chainID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = chainID
}

type keySigner struct {
	eth  *ethclient.Client
	key  *ecdsa.PrivateKey
	from common.Address
}

func (s *keySigner) Account() common.Address { return s.from }

// Send builds a legacy transaction, signs it with the local key and
// broadcasts it with eth_sendRawTransaction.
func (s *keySigner) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	chainID, err := s.eth.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read chain id: %w", err)
	}
	nonce, err := s.eth.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gas, err := s.eth.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}
