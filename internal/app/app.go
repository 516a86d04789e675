// Package app assembles the connection controller, the contract poller, the
// action submitter and their supporting services into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"votedesk.mini/vdk/internal/actions"
	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/config"
	"votedesk.mini/vdk/internal/connection"
	"votedesk.mini/vdk/internal/history"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/poller"
	"votedesk.mini/vdk/internal/types"
	"votedesk.mini/vdk/internal/wallet"
)

// Backend is the chain access the app is built on.
type Backend interface {
	chain.Reader
	chain.Writer
}

// App owns the process-wide state.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	backend Backend
	client  *chain.Client // nil when built from parts

	Feed       *notify.Feed
	Connection *connection.Controller
	Poller     *poller.Poller
	Submitter  *actions.Submitter
	History    *history.Store

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	followMu sync.Mutex
	bound    bool

	closeOnce sync.Once
}

// New dials the node named in cfg, opens the configured wallet and builds
// the app. The wallet watcher runs until Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	contractABI, err := chain.LoadABI(cfg.ABIFile)
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, cfg.RPCURL, common.HexToAddress(cfg.ContractAddress), contractABI)
	if err != nil {
		return nil, err
	}
	client.SetReceiptPollInterval(cfg.ReceiptPollInterval())

	runCtx, cancel := context.WithCancel(context.Background())
	session, err := wallet.Open(runCtx, client.RPC(), wallet.Options{
		Mode:         cfg.WalletMode,
		KeyFile:      cfg.KeyFile,
		PollInterval: cfg.WalletPollInterval(),
		Logger:       logger.With("component", "wallet"),
	})
	if err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	a, err := build(runCtx, cancel, cfg, client, session, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	a.client = client
	return a, nil
}

// FromParts builds the app over an existing backend and wallet session.
// session may be nil when no wallet is available.
func FromParts(cfg *config.Config, backend Backend, session wallet.Session, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return build(ctx, cancel, cfg, backend, session, logger)
}

func build(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, backend Backend, session wallet.Session, logger *slog.Logger) (*App, error) {
	source, err := poller.ParseCandidateSource(cfg.CandidateSource)
	if err != nil {
		cancel()
		return nil, err
	}
	store, err := history.NewStore()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open history: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		Feed:    notify.New(cfg.NotificationBuffer),
		History: store,
		ctx:     ctx,
		cancel:  cancel,
	}
	a.Poller = poller.New(
		poller.WithInterval(cfg.PollInterval()),
		poller.WithCandidateSource(source),
		poller.WithNotifier(a.Feed),
		poller.WithLogger(logger.With("component", "poller")),
	)
	a.Connection = connection.New(session,
		connection.WithLogger(logger.With("component", "connection")),
		connection.WithReloadHook(a.reload),
	)
	a.Submitter = actions.New(backend, a.Connection,
		actions.WithNotifier(a.Feed),
		actions.WithLogger(logger.With("component", "actions")),
	)

	a.unsubs = append(a.unsubs, a.Poller.Subscribe(a.record))
	if cfg.PollRequiresWallet {
		a.unsubs = append(a.unsubs, a.Connection.Subscribe(a.follow))
	} else {
		a.Poller.Bind(backend)
	}
	return a, nil
}

// Start runs the poll timer and, when configured, asks the wallet for
// account access.
func (a *App) Start() {
	a.Poller.Start(a.ctx)
	if a.cfg.AutoConnect && a.Connection.WalletAvailable() {
		go a.connect()
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// ContractAddress returns the polled contract.
func (a *App) ContractAddress() common.Address { return a.backend.Address() }

// ChainID asks the node which chain it serves.
func (a *App) ChainID(ctx context.Context) (uint64, error) {
	if a.client == nil {
		return 0, errors.New("no node client")
	}
	id, err := a.client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// State returns the connection state.
func (a *App) State() types.ConnectionState { return a.Connection.State() }

// Connect asks the wallet for account access.
func (a *App) Connect(ctx context.Context) error { return a.Connection.Connect(ctx) }

// Snapshot returns the last published contract snapshot and the error that
// made it absent, if any.
func (a *App) Snapshot() (*types.Snapshot, error) {
	return a.Poller.Snapshot(), a.Poller.Err()
}

// Refresh re-reads the contract.
func (a *App) Refresh(ctx context.Context) (*types.Snapshot, error) {
	return a.Poller.Refresh(ctx)
}

// Submit runs a contract write and re-reads the contract once it is
// confirmed.
func (a *App) Submit(ctx context.Context, kind types.ActionKind, payload types.Payload) (types.PendingAction, error) {
	action, err := a.Submitter.Submit(ctx, kind, payload)
	if err != nil {
		return action, err
	}
	if _, err := a.Poller.Refresh(ctx); err != nil && !errors.Is(err, poller.ErrNoTarget) {
		a.logger.Warn("refresh after action failed", "kind", kind, "error", err)
	}
	return action, nil
}

// OnChange registers fn to run after any connection, snapshot or action
// update and returns its remover.
func (a *App) OnChange(fn func()) func() {
	unsubs := []func(){
		a.Connection.Subscribe(func(types.ConnectionState) { fn() }),
		a.Poller.Subscribe(func(*types.Snapshot, error) { fn() }),
		a.Submitter.Subscribe(func(types.PendingAction) { fn() }),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Actions returns the tracked actions.
func (a *App) Actions() []types.PendingAction { return a.Submitter.Actions() }

// Dismiss discards a finished action.
func (a *App) Dismiss(kind types.ActionKind) bool { return a.Submitter.Dismiss(kind) }

// Close stops background work and releases the node connection.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for _, unsub := range a.unsubs {
			unsub()
		}
		a.Connection.Close()
		a.Poller.Stop()
		a.cancel()
		if err := a.History.Close(); err != nil {
			a.logger.Warn("close history", "error", err)
		}
		if a.client != nil {
			a.client.Close()
		}
	})
}

func (a *App) connect() {
	if err := a.Connection.Connect(a.ctx); err != nil {
		a.logger.Info("wallet connect failed", "error", err)
	}
}

// reload starts over after the wallet switched networks: the snapshot and
// history are dropped and the contract is read again.
func (a *App) reload() {
	a.logger.Info("network changed, reloading")
	a.Poller.Reset()
	if err := a.History.Reset(); err != nil {
		a.logger.Warn("reset history", "error", err)
	}
	a.Feed.Warning("Network changed. Data has been reloaded.")
	go func() {
		if _, err := a.Poller.Refresh(a.ctx); err != nil && !errors.Is(err, poller.ErrNoTarget) {
			a.logger.Debug("reload refresh", "error", err)
		}
		if a.cfg.AutoConnect {
			a.connect()
		}
	}()
}

// follow binds the poller only while a wallet account is connected. A
// connect attempt in progress leaves the binding alone.
func (a *App) follow(state types.ConnectionState) {
	a.followMu.Lock()
	defer a.followMu.Unlock()
	switch {
	case state.IsConnected() && !a.bound:
		a.bound = true
		a.Poller.Bind(a.backend)
	case !state.IsConnected() && state.Phase != types.PhaseConnecting && a.bound:
		a.bound = false
		a.Poller.Bind(nil)
	}
}

func (a *App) record(snap *types.Snapshot, _ error) {
	if snap == nil {
		return
	}
	if _, err := a.History.Record(snap); err != nil {
		a.logger.Warn("record tally", "error", err)
	}
}
