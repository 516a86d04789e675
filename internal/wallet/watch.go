package wallet

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// watcher turns periodic account/chain reads into session events. The first
// successful read only records a baseline. After that a changed account list
// emits EventAccountsChanged, a changed chain emits EventChainChanged and a
// failed read after a successful one emits EventDisconnected once. When the
// node comes back the current accounts are re-announced. Every successful
// read, the baseline included, is handed to onRead before any event goes out
// so session accessors never lag behind the events they accompany.
type watcher struct {
	hub      *hub
	accounts func(ctx context.Context) ([]string, error)
	chainID  func(ctx context.Context) (string, error)
	onRead   func(accounts []string, chainID string)
	logger   *slog.Logger

	mu           sync.Mutex
	primed       bool
	reachable    bool
	lastAccounts []string
	lastChain    string
}

func (w *watcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *watcher) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chainID, err := w.chainID(reqCtx)
	var accounts []string
	if err == nil {
		accounts, err = w.accounts(reqCtx)
	}

	var events []Event
	w.mu.Lock()
	switch {
	case err != nil:
		if w.reachable {
			w.logger.Warn("wallet: node unreachable", "error", err)
			events = append(events, Event{Kind: EventDisconnected})
		}
		w.reachable = false
	case !w.primed:
		w.primed = true
		w.reachable = true
		w.lastAccounts = accounts
		w.lastChain = chainID
	default:
		if !w.reachable || !sameAccounts(accounts, w.lastAccounts) {
			events = append(events, Event{Kind: EventAccountsChanged, Accounts: slices.Clone(accounts)})
		}
		if chainID != w.lastChain {
			events = append(events, Event{Kind: EventChainChanged, ChainID: chainID})
		}
		w.reachable = true
		w.lastAccounts = accounts
		w.lastChain = chainID
	}
	w.mu.Unlock()

	if err == nil && w.onRead != nil {
		w.onRead(slices.Clone(accounts), chainID)
	}
	for _, ev := range events {
		w.logger.Debug("wallet: event", "kind", ev.Kind.String(), "accounts", ev.Accounts, "chain_id", ev.ChainID)
		w.hub.emit(ev)
	}
}

// observe records values learned outside the poll loop (for example from an
// explicit account request) so they do not surface as changes later.
func (w *watcher) observe(accounts []string, chainID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.primed = true
	w.reachable = true
	w.lastAccounts = slices.Clone(accounts)
	w.lastChain = chainID
}

func sameAccounts(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
