// Package poller keeps the contract snapshot fresh. A Poller queries the
// bound contract on a fixed interval and on demand, coalescing concurrent
// requests into a single fetch, and publishes each resulting snapshot to
// subscribers.
//
// A fetch first checks that code is deployed at the contract address. When
// it is not, the snapshot becomes absent and the interval timer halts until
// a new target is bound or a manual refresh succeeds. Candidates and voters
// are then read independently; a failing source is published as empty and
// named in Snapshot.Partial. Failures are reported to the notifier once per
// distinct failure.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

// DefaultInterval is the polling period.
const DefaultInterval = 10 * time.Second

// Data sources named in failures and in Snapshot.Partial.
const (
	SourceCode       = "code"
	SourceCandidates = "candidates"
	SourceVoters     = "voters"
)

var (
	// ErrContractNotDeployed means no code exists at the contract address.
	ErrContractNotDeployed = errors.New("smart contract not found at the specified address")
	// ErrNoTarget means no contract reader is bound.
	ErrNoTarget = errors.New("no contract bound")
)

// ReadFailure reports a failed read of one data source.
type ReadFailure struct {
	Source string
	Err    error
}

func (e *ReadFailure) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Source, e.Err)
}

func (e *ReadFailure) Unwrap() error { return e.Err }

// Notifier receives user-visible failure messages.
type Notifier interface {
	Error(text string)
}

// Poller periodically fetches the contract snapshot.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	source   CandidateSource
	notifier Notifier
	logger   *slog.Logger
	latch    *notify.Latch
	group    singleflight.Group

	pubMu sync.Mutex

	mu         sync.RWMutex
	reader     chain.Reader
	gen        uint64
	snapshot   *types.Snapshot
	lastErr    error
	halted     bool
	started    bool
	baseCtx    context.Context
	loopCancel context.CancelFunc
	nextSub    int
	subs       map[int]func(*types.Snapshot, error)

	wg sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFetchTimeout bounds a single fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithCandidateSource selects how candidates are enumerated.
func WithCandidateSource(s CandidateSource) Option {
	return func(p *Poller) { p.source = s }
}

// WithNotifier sets where failures are reported.
func WithNotifier(n Notifier) Option {
	return func(p *Poller) { p.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New constructs a Poller with no target bound.
func New(opts ...Option) *Poller {
	p := &Poller{
		interval: DefaultInterval,
		timeout:  30 * time.Second,
		source:   SourceList,
		logger:   slog.Default(),
		latch:    notify.NewLatch(),
		baseCtx:  context.Background(),
		subs:     make(map[int]func(*types.Snapshot, error)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start enables the interval timer. Fetches run on ctx, so cancelling it
// aborts them. The timer only runs while a target is bound.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.baseCtx = ctx
	if p.reader != nil && !p.halted {
		p.startLoopLocked()
	}
}

// Stop disables the timer and waits for the loop to exit. In-flight
// fetches are not cancelled.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.started = false
	p.stopLoopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

// Bind sets the contract target. A nil reader stops the timer; a non-nil
// one (re)starts it with an immediate fetch. Latched failures are
// forgotten.
func (p *Poller) Bind(r chain.Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reader = r
	p.gen++
	p.halted = false
	p.latch.Reset()
	p.stopLoopLocked()
	if r != nil && p.started {
		p.startLoopLocked()
	}
}

// Reset drops the current snapshot and error, as on a fresh start, and
// publishes the absent snapshot. The target and timer are left alone.
func (p *Poller) Reset() {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	p.snapshot = nil
	p.lastErr = nil
	p.latch.Reset()
	subs := p.subscribersLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(nil, nil)
	}
}

// Snapshot returns the last published snapshot, or nil when absent.
func (p *Poller) Snapshot() *types.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Err returns the error of the last fetch, if it failed.
func (p *Poller) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Running reports whether the interval timer is active.
func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loopCancel != nil
}

// Subscribe registers fn for published snapshots and returns its remover.
// fn receives a nil snapshot when the snapshot becomes absent, with the
// reason in err.
func (p *Poller) Subscribe(fn func(*types.Snapshot, error)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Refresh fetches a new snapshot, or joins the fetch already in flight for
// the current target. If ctx ends first Refresh returns ctx.Err(); the fetch
// itself carries on and still publishes its result.
func (p *Poller) Refresh(ctx context.Context) (*types.Snapshot, error) {
	p.mu.RLock()
	r, gen, base := p.reader, p.gen, p.baseCtx
	p.mu.RUnlock()
	if r == nil {
		return nil, ErrNoTarget
	}

	key := fmt.Sprintf("%d/%s", gen, r.Address().Hex())
	ch := p.group.DoChan(key, func() (any, error) {
		return p.fetch(base, r, gen)
	})

	select {
	case res := <-ch:
		snap, _ := res.Val.(*types.Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Poller) fetch(base context.Context, r chain.Reader, gen uint64) (*types.Snapshot, error) {
	ctx, cancel := context.WithTimeout(base, p.timeout)
	defer cancel()

	code, err := r.GetCode(ctx, r.Address())
	if err != nil {
		failure := &ReadFailure{Source: SourceCode, Err: err}
		p.report(SourceCode, failure, fmt.Sprintf("Error fetching dashboard statistics: %v", err))
		p.publishError(failure)
		return nil, failure
	}
	if len(code) == 0 {
		p.report(SourceCode, ErrContractNotDeployed, "Smart contract not found at the specified address")
		p.halt(gen)
		p.publish(nil, ErrContractNotDeployed)
		return nil, ErrContractNotDeployed
	}
	p.latch.Clear(SourceCode)

	var (
		candidates []types.Candidate
		voters     []types.Voter
		candErr    error
		voterErr   error
		g          errgroup.Group
	)
	g.Go(func() error {
		candidates, candErr = p.fetchCandidates(ctx, r)
		return nil
	})
	g.Go(func() error {
		voters, voterErr = fetchVoters(ctx, r)
		return nil
	})
	_ = g.Wait()

	var partial []string
	for _, f := range []struct {
		source string
		err    error
	}{{SourceCandidates, candErr}, {SourceVoters, voterErr}} {
		if f.err == nil {
			p.latch.Clear(f.source)
			continue
		}
		partial = append(partial, f.source)
		p.report(f.source, &ReadFailure{Source: f.source, Err: f.err}, fmt.Sprintf("Error fetching %s: %v", f.source, f.err))
	}
	sort.Strings(partial)
	if candErr != nil {
		candidates = nil
	}
	if voterErr != nil {
		voters = nil
	}

	snap := types.NewSnapshot(candidates, voters, time.Now(), partial...)
	p.resume(gen)
	p.publish(snap, nil)
	p.logger.Debug("poller: snapshot published",
		"candidates", len(snap.Candidates),
		"voters", len(snap.Voters),
		"total_votes", snap.TotalVotes,
		"partial", snap.Partial)
	return snap, nil
}

// report logs every failure and notifies only when it differs from the
// failure already latched for source.
func (p *Poller) report(source string, err error, message string) {
	if !p.latch.Trip(source, err.Error()) {
		p.logger.Debug("poller: repeated failure suppressed", "source", source, "error", err)
		return
	}
	p.logger.Warn("poller: read failed", "source", source, "error", err)
	if p.notifier != nil {
		p.notifier.Error(message)
	}
}

// halt stops the timer after a missing-contract result, unless the target
// has been rebound since the fetch started.
func (p *Poller) halt(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.halted = true
	p.stopLoopLocked()
}

// resume restarts a halted timer once a fetch for the same target succeeds.
func (p *Poller) resume(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || !p.halted {
		return
	}
	p.halted = false
	if p.started && p.loopCancel == nil {
		p.startLoopLocked()
	}
}

func (p *Poller) publish(snap *types.Snapshot, err error) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	p.snapshot = snap
	p.lastErr = err
	subs := p.subscribersLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap, err)
	}
}

// publishError records err and republishes the current snapshot with it.
func (p *Poller) publishError(err error) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	p.lastErr = err
	snap := p.snapshot
	subs := p.subscribersLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap, err)
	}
}

func (p *Poller) subscribersLocked() []func(*types.Snapshot, error) {
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(*types.Snapshot, error), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, p.subs[id])
	}
	return subs
}

func (p *Poller) startLoopLocked() {
	ctx, cancel := context.WithCancel(p.baseCtx)
	p.loopCancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

func (p *Poller) stopLoopLocked() {
	if p.loopCancel != nil {
		p.loopCancel()
		p.loopCancel = nil
	}
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// initial tick immediately
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Debug("poller: tick failed", "error", err)
	}
}
