package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"votedesk.mini/vdk/internal/chain"
)

// RPCSession uses accounts managed by the node (or by a wallet that speaks
// the standard provider methods over JSON-RPC). Transactions are signed by
// the node through eth_sendTransaction.
type RPCSession struct {
	rpc    *rpc.Client
	hub    *hub
	watch  *watcher
	logger *slog.Logger

	mu       sync.RWMutex
	accounts []string
	chainID  string
}

// NewRPCSession creates a session over rc. The event watcher is started by
// Open.
func NewRPCSession(rc *rpc.Client, logger *slog.Logger) *RPCSession {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RPCSession{rpc: rc, hub: &hub{}, logger: logger}
	s.watch = &watcher{
		hub:      s.hub,
		accounts: s.fetchAccounts,
		chainID:  s.fetchChainID,
		onRead:   s.store,
		logger:   logger,
	}
	s.hub.subscribe(s.track)
	return s
}

// Accounts returns the last known accounts.
func (s *RPCSession) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts)
}

// ChainID returns the last known chain id.
func (s *RPCSession) ChainID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// RequestAccounts calls eth_requestAccounts, falling back to eth_accounts on
// nodes that do not implement the provider method.
func (s *RPCSession) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := s.rpc.CallContext(ctx, &accounts, "eth_requestAccounts")
	if isMethodNotFound(err) {
		accounts, err = s.fetchAccounts(ctx)
	}
	if err != nil {
		return nil, classify(err)
	}

	chainID, err := s.fetchChainID(ctx)
	if err != nil {
		return nil, classify(err)
	}

	s.mu.Lock()
	s.accounts = slices.Clone(accounts)
	s.chainID = chainID
	s.mu.Unlock()
	s.watch.observe(accounts, chainID)
	return accounts, nil
}

// Subscribe registers fn for session events.
func (s *RPCSession) Subscribe(fn func(Event)) func() {
	return s.hub.subscribe(fn)
}

// Signer returns a node-side signer for account.
func (s *RPCSession) Signer(account string) (chain.Signer, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return &rpcSigner{rpc: s.rpc, from: common.HexToAddress(account)}, nil
}

func (s *RPCSession) fetchAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := s.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *RPCSession) fetchChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := s.rpc.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return (*big.Int)(&id).String(), nil
}

func (s *RPCSession) store(accounts []string, chainID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.chainID = chainID
}

// track keeps the synchronous accessors in line with emitted events.
func (s *RPCSession) track(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case EventAccountsChanged:
		s.accounts = slices.Clone(ev.Accounts)
	case EventChainChanged:
		s.chainID = ev.ChainID
	case EventDisconnected:
		s.accounts = nil
	}
}

type rpcSigner struct {
	rpc  *rpc.Client
	from common.Address
}

func (s *rpcSigner) Account() common.Address { return s.from }

// Send asks the node to sign and broadcast a call to the contract.
func (s *rpcSigner) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	args := map[string]any{
		"from": s.from,
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var hash common.Hash
	if err := s.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classify(err)
	}
	return hash, nil
}
