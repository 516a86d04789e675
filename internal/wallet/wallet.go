// Package wallet provides the account sessions the connection controller
// talks to. A session supplies the current account and chain, a request
// operation that asks the wallet for account access, an ordered event
// stream (account switch, chain switch, disconnect) and signers bound to an
// account. Two sessions exist: RPCSession, where the node manages accounts
// and signs, and KeySession, where a local secp256k1 key signs.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"votedesk.mini/vdk/internal/chain"
)

// Wallet modes accepted by Open.
const (
	ModeNone    = "none"
	ModeRPC     = "rpc"
	ModeKeyFile = "keyfile"
)

// JSON-RPC error codes with wallet meaning (EIP-1193 and EIP-1474).
const (
	codeUserRejected   = 4001
	codeRequestPending = -32002
	codeMethodNotFound = -32601
)

var (
	// ErrRequestPending means the wallet already has an outstanding account
	// request; the user has to act in the wallet.
	ErrRequestPending = errors.New("account request already pending")
	// ErrUserRejected means the user declined the request.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrUnknownAccount is returned by Signer for an account the session
	// cannot sign for.
	ErrUnknownAccount = errors.New("unknown account")
)

// EventKind distinguishes session events.
type EventKind int

const (
	EventAccountsChanged EventKind = iota
	EventChainChanged
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventAccountsChanged:
		return "accountsChanged"
	case EventChainChanged:
		return "chainChanged"
	case EventDisconnected:
		return "disconnect"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to subscribers in emission order.
type Event struct {
	Kind     EventKind
	Accounts []string // set for EventAccountsChanged
	ChainID  string   // set for EventChainChanged
}

// Session is the wallet capability consumed by the connection controller.
type Session interface {
	// Accounts returns the last known accounts without asking the wallet.
	Accounts() []string
	// ChainID returns the last known chain id (decimal).
	ChainID() string
	// RequestAccounts asks the wallet for account access.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Subscribe registers fn for session events and returns its remover.
	Subscribe(fn func(Event)) (unsubscribe func())
	// Signer returns a transaction signer for account.
	Signer(account string) (chain.Signer, error)
}

// Options configures Open.
type Options struct {
	Mode         string        // none, rpc or keyfile
	KeyFile      string        // key path for keyfile mode
	PollInterval time.Duration // how often the event watcher polls the node
	Logger       *slog.Logger
}

// Open builds the session for opts.Mode over rc and starts its event
// watcher, which runs until ctx ends. Mode "none" returns a nil session:
// no wallet is available.
func Open(ctx context.Context, rc *rpc.Client, opts Options) (Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	switch strings.ToLower(opts.Mode) {
	case "", ModeNone:
		return nil, nil
	case ModeRPC:
		s := NewRPCSession(rc, opts.Logger)
		go s.watch.run(ctx, opts.PollInterval)
		return s, nil
	case ModeKeyFile:
		key, err := LoadOrCreateKey(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		s := NewKeySession(rc, key, opts.Logger)
		go s.watch.run(ctx, opts.PollInterval)
		return s, nil
	}
	return nil, fmt.Errorf("unknown wallet mode %q", opts.Mode)
}

// classify maps wallet JSON-RPC error codes onto sentinel errors, keeping
// the wallet's message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeRequestPending:
			return fmt.Errorf("%w: %s", ErrRequestPending, rpcErr.Error())
		case codeUserRejected:
			return fmt.Errorf("%w: %s", ErrUserRejected, rpcErr.Error())
		}
	}
	return err
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound
}

// hub fans events out to subscribers. emit runs the callbacks sequentially
// on the caller's goroutine, which preserves emission order.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
