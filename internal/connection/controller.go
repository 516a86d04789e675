// Package connection owns the wallet connection state machine. The
// Controller is the single writer of the process-wide ConnectionState and
// the holder of the signer used for contract writes.
//
// State changes follow last-writer-wins: a wallet event that lands while a
// Connect call is outstanding overrides the state immediately, and the
// Connect result overrides it again when it resolves. Only one account
// request is ever outstanding in the wallet; a Connect issued while one is
// in flight returns at once.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/types"
	"votedesk.mini/vdk/internal/wallet"
)

var (
	// ErrWalletUnavailable is returned by Connect when no wallet session
	// exists. The controller stays disconnected; reads still work.
	ErrWalletUnavailable = errors.New("no wallet available")
	// ErrConnectionPending means the wallet already has an account request
	// open. The user has to finish it in the wallet rather than retry.
	ErrConnectionPending = errors.New("connection request already pending, check your wallet")
	// ErrConnectionRejected means the user declined account access.
	ErrConnectionRejected = errors.New("connection rejected")
	// ErrNoAccounts means the wallet granted access to an empty account list.
	ErrNoAccounts = errors.New("wallet returned no accounts")
	// ErrNotConnected is returned by Signer while no account is bound.
	ErrNotConnected = errors.New("please connect your wallet first")
)

// Controller drives ConnectionState from Connect calls and wallet events.
type Controller struct {
	session  wallet.Session
	logger   *slog.Logger
	onReload func()

	// pubMu serialises state writes with their notification so that
	// subscribers observe writes in the order they were applied.
	pubMu sync.Mutex

	mu         sync.RWMutex
	state      types.ConnectionState
	signer     chain.Signer
	connecting bool
	nextSub    int
	subs       map[int]func(types.ConnectionState)

	closeOnce   sync.Once
	unsubscribe func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithReloadHook sets the function run after a chain switch. It is called
// once the state has been reset to disconnected and should restart the
// read side (drop the snapshot, refresh) as on a fresh start.
func WithReloadHook(fn func()) Option {
	return func(c *Controller) { c.onReload = fn }
}

// New creates a controller over session, which may be nil when no wallet
// is available. Wallet listeners are registered here and removed by Close.
func New(session wallet.Session, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		logger:  slog.Default(),
		state:   types.Disconnected(),
		subs:    make(map[int]func(types.ConnectionState)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if session != nil {
		c.unsubscribe = session.Subscribe(c.handleEvent)
	}
	return c
}

// Close removes the wallet listeners. Events arriving afterwards are
// ignored by the controller.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	})
}

// State returns the current connection state.
func (c *Controller) State() types.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// WalletAvailable reports whether a wallet session exists.
func (c *Controller) WalletAvailable() bool {
	return c.session != nil
}

// Signer returns the signer for the connected account.
func (c *Controller) Signer() (chain.Signer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return nil, ErrNotConnected
	}
	return c.signer, nil
}

// Subscribe registers fn for state changes and returns its remover.
func (c *Controller) Subscribe(fn func(types.ConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Connect asks the wallet for account access.
//
// It returns nil without contacting the wallet when a request is already
// outstanding. ErrWalletUnavailable, ErrConnectionPending and
// ErrConnectionRejected are distinguishable with errors.Is; any other
// failure leaves the state in error with the wallet's message.
func (c *Controller) Connect(ctx context.Context) error {
	if c.session == nil {
		c.logger.Info("connection: no wallet available, staying read-only")
		return ErrWalletUnavailable
	}

	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		c.logger.Debug("connection: request already in flight")
		return nil
	}
	c.connecting = true
	c.mu.Unlock()
	c.set(types.Connecting(), nil)

	accounts, err := c.session.RequestAccounts(ctx)

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()

	switch {
	case errors.Is(err, wallet.ErrRequestPending):
		c.logger.Warn("connection: wallet request already pending", "error", err)
		c.set(types.Disconnected(), nil)
		return ErrConnectionPending
	case errors.Is(err, wallet.ErrUserRejected):
		c.logger.Info("connection: user rejected account access")
		c.set(types.Failed(err.Error()), nil)
		return fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	case err != nil:
		c.logger.Error("connection: account request failed", "error", err)
		c.set(types.Failed(err.Error()), nil)
		return fmt.Errorf("connect: %w", err)
	case len(accounts) == 0:
		c.set(types.Failed(ErrNoAccounts.Error()), nil)
		return ErrNoAccounts
	}

	signer, err := c.session.Signer(accounts[0])
	if err != nil {
		c.logger.Error("connection: no signer for account", "account", accounts[0], "error", err)
		c.set(types.Failed(err.Error()), nil)
		return fmt.Errorf("connect: %w", err)
	}
	c.logger.Info("connection: connected", "account", accounts[0], "chain_id", c.session.ChainID())
	c.set(types.Connected(accounts[0], c.session.ChainID()), signer)
	return nil
}

// OnAccountsChanged applies a wallet account switch. An empty list
// disconnects and drops the signer; otherwise the first account becomes
// the connected one regardless of any Connect in flight. An account the
// session cannot sign for leaves the controller in the error phase.
func (c *Controller) OnAccountsChanged(accounts []string) {
	if len(accounts) == 0 {
		c.logger.Info("connection: wallet has no accounts, disconnecting")
		c.set(types.Disconnected(), nil)
		return
	}
	chainID := ""
	var signer chain.Signer
	if c.session != nil {
		chainID = c.session.ChainID()
		var err error
		if signer, err = c.session.Signer(accounts[0]); err != nil {
			c.logger.Warn("connection: no signer for switched account", "account", accounts[0], "error", err)
			c.set(types.Failed(err.Error()), nil)
			return
		}
	}
	c.logger.Info("connection: account switched", "account", accounts[0])
	c.set(types.Connected(accounts[0], chainID), signer)
}

// OnChainChanged resets to disconnected and runs the reload hook. Nothing
// from the previous chain is reconciled.
func (c *Controller) OnChainChanged() {
	c.logger.Info("connection: chain changed, reloading")
	c.set(types.Disconnected(), nil)
	if c.onReload != nil {
		c.onReload()
	}
}

// OnDisconnected resets to disconnected.
func (c *Controller) OnDisconnected() {
	c.logger.Info("connection: wallet disconnected")
	c.set(types.Disconnected(), nil)
}

func (c *Controller) handleEvent(ev wallet.Event) {
	switch ev.Kind {
	case wallet.EventAccountsChanged:
		c.OnAccountsChanged(ev.Accounts)
	case wallet.EventChainChanged:
		c.OnChainChanged()
	case wallet.EventDisconnected:
		c.OnDisconnected()
	}
}

func (c *Controller) set(state types.ConnectionState, signer chain.Signer) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	c.state = state
	c.signer = signer
	subs := make([]func(types.ConnectionState), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
