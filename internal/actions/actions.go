// Package actions submits state-changing contract calls (vote, voter
// registration, candidate registration) and tracks each one through
// submit, confirmation and outcome.
//
// Each action kind is a slot holding at most one non-terminal action. A
// submission while the slot is busy is rejected with ErrAlreadyPending; it
// is neither queued nor allowed to replace the first. A terminal action
// stays in its slot until the caller dismisses it or the next submission of
// that kind begins. The submitter never refreshes contract state itself;
// callers refresh after a success.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/types"
)

// ErrAlreadyPending is returned when the slot for a kind is busy.
var ErrAlreadyPending = errors.New("an action of this kind is already pending")

// SubmissionError is the terminal failure of an action. Reason is the
// user-facing message.
type SubmissionError struct {
	Kind   types.ActionKind
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string { return e.Reason }

func (e *SubmissionError) Unwrap() error { return e.Err }

// SignerSource supplies the signer of the connected account.
type SignerSource interface {
	Signer() (chain.Signer, error)
}

// Notifier receives user-visible outcome messages.
type Notifier interface {
	Success(text string)
	Error(text string)
}

var successMessages = map[types.ActionKind]string{
	types.ActionVote:              "Vote cast successfully!",
	types.ActionRegisterVoter:     "Voter registered successfully!",
	types.ActionRegisterCandidate: "Candidate added successfully!",
}

var fallbackReasons = map[types.ActionKind]string{
	types.ActionVote:              "Error casting vote",
	types.ActionRegisterVoter:     "Error registering voter",
	types.ActionRegisterCandidate: "Error adding candidate",
}

// Submitter runs contract writes, one in flight per kind.
type Submitter struct {
	writer   chain.Writer
	signers  SignerSource
	notifier Notifier
	logger   *slog.Logger

	pubMu sync.Mutex

	mu      sync.Mutex
	slots   map[types.ActionKind]*types.PendingAction
	nextSub int
	subs    map[int]func(types.PendingAction)
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithNotifier sets where outcomes are reported.
func WithNotifier(n Notifier) Option {
	return func(s *Submitter) { s.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) { s.logger = l }
}

// New creates a Submitter writing through writer with signers from
// signers.
func New(writer chain.Writer, signers SignerSource, opts ...Option) *Submitter {
	s := &Submitter{
		writer:  writer,
		signers: signers,
		logger:  slog.Default(),
		slots:   make(map[types.ActionKind]*types.PendingAction),
		subs:    make(map[int]func(types.PendingAction)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends payload as a kind action and waits for its confirmation.
//
// It returns ErrAlreadyPending (with the busy action) when the slot is
// taken, a *SubmissionError when the write or its confirmation fails, and
// the succeeded action otherwise. The payload is assumed valid.
func (s *Submitter) Submit(ctx context.Context, kind types.ActionKind, payload types.Payload) (types.PendingAction, error) {
	if payload == nil || payload.Kind() != kind {
		return types.PendingAction{}, fmt.Errorf("payload %T does not belong to %s", payload, kind)
	}

	s.mu.Lock()
	if cur := s.slots[kind]; cur != nil && !cur.Status.Terminal() {
		busy := *cur
		s.mu.Unlock()
		s.logger.Info("actions: submission rejected, slot busy", "kind", kind, "pending", busy.ID)
		return busy, ErrAlreadyPending
	}
	now := time.Now()
	action := &types.PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Status:    types.StatusSubmitting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.slots[kind] = action
	s.mu.Unlock()
	s.publish(*action)

	signer, err := s.signers.Signer()
	if err != nil {
		return s.fail(action, err)
	}

	method, args := payload.Call()
	s.logger.Info("actions: submitting", "kind", kind, "method", method, "account", signer.Account().Hex())
	handle, err := s.writer.SendTransaction(ctx, signer, method, args...)
	if err != nil {
		return s.fail(action, err)
	}

	s.update(action, func(a *types.PendingAction) {
		a.Status = types.StatusAwaitingConfirmation
		a.TxHash = handle.Hash.Hex()
	})

	if _, err := s.writer.Wait(ctx, handle); err != nil {
		return s.fail(action, err)
	}

	done := s.update(action, func(a *types.PendingAction) {
		a.Status = types.StatusSucceeded
	})
	s.logger.Info("actions: confirmed", "kind", kind, "tx", done.TxHash)
	if s.notifier != nil {
		s.notifier.Success(successMessages[kind])
	}
	return done, nil
}

// Action returns the action in the slot for kind, if any.
func (s *Submitter) Action(kind types.ActionKind) (types.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.slots[kind]
	if a == nil {
		return types.PendingAction{}, false
	}
	return *a, true
}

// Actions returns every occupied slot in kind order.
func (s *Submitter) Actions() []types.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PendingAction, 0, len(s.slots))
	for _, k := range types.ActionKinds {
		if a := s.slots[k]; a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// Dismiss discards the terminal action for kind once the caller has
// observed it. It reports whether an action was removed; in-flight actions
// are never removed.
func (s *Submitter) Dismiss(kind types.ActionKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.slots[kind]
	if a == nil || !a.Status.Terminal() {
		return false
	}
	delete(s.slots, kind)
	return true
}

// Subscribe registers fn for action updates and returns its remover.
func (s *Submitter) Subscribe(fn func(types.PendingAction)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Submitter) fail(action *types.PendingAction, err error) (types.PendingAction, error) {
	reason := reasonFor(action.Kind, err)
	failed := s.update(action, func(a *types.PendingAction) {
		a.Status = types.StatusFailed
		a.Reason = reason
	})
	s.logger.Warn("actions: failed", "kind", action.Kind, "error", err)
	if s.notifier != nil {
		s.notifier.Error(reason)
	}
	return failed, &SubmissionError{Kind: action.Kind, Reason: reason, Err: err}
}

// reasonFor prefers the underlying error message and falls back to a
// per-kind message when there is none.
func reasonFor(kind types.ActionKind, err error) string {
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return fallbackReasons[kind]
}

func (s *Submitter) update(action *types.PendingAction, fn func(*types.PendingAction)) types.PendingAction {
	s.mu.Lock()
	fn(action)
	action.UpdatedAt = time.Now()
	snapshot := *action
	s.mu.Unlock()
	s.publish(snapshot)
	return snapshot
}

func (s *Submitter) publish(a types.PendingAction) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	subs := make([]func(types.PendingAction), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(a)
	}
}
