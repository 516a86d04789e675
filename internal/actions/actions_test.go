package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/connection"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

type fakeSigner struct{}

func (fakeSigner) Account() common.Address { return common.HexToAddress("0xa1") }

func (fakeSigner) Send(context.Context, common.Address, []byte) (common.Hash, error) {
	return common.Hash{}, nil
}

type signerSource struct{ err error }

func (s signerSource) Signer() (chain.Signer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return fakeSigner{}, nil
}

// fakeWriter records sends; Wait blocks on gate when set.
type fakeWriter struct {
	mu      sync.Mutex
	methods []string
	sendErr error
	waitErr error
	waiting chan struct{}
	gate    chan struct{}
}

func (w *fakeWriter) SendTransaction(_ context.Context, _ chain.Signer, method string, _ ...any) (chain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return chain.TxHandle{}, w.sendErr
	}
	w.methods = append(w.methods, method)
	return chain.TxHandle{Hash: common.HexToHash("0x01"), Method: method}, nil
}

func (w *fakeWriter) Wait(ctx context.Context, _ chain.TxHandle) (*gethtypes.Receipt, error) {
	if w.waiting != nil {
		w.waiting <- struct{}{}
	}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.waitErr != nil {
		return nil, w.waitErr
	}
	return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil
}

func (w *fakeWriter) sent() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.methods...)
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestSubmitSucceeds(t *testing.T) {
	feed := notify.New(10)
	w := &fakeWriter{}
	s := New(w, signerSource{}, WithNotifier(feed), WithLogger(slogt.New(t)))

	var statuses []types.ActionStatus
	s.Subscribe(func(a types.PendingAction) { statuses = append(statuses, a.Status) })

	a, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 2})
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, a.Status)
	require.NotEmpty(t, a.ID)
	require.NotEmpty(t, a.TxHash)
	require.Equal(t, []string{types.MethodVote}, w.sent())
	require.Equal(t, []types.ActionStatus{
		types.StatusSubmitting,
		types.StatusAwaitingConfirmation,
		types.StatusSucceeded,
	}, statuses)
	require.Equal(t, "Vote cast successfully!", feed.GetRecent(1)[0].Text)
}

func TestSubmitWhilePendingIsRejected(t *testing.T) {
	w := &fakeWriter{waiting: make(chan struct{}, 1), gate: make(chan struct{})}
	s := New(w, signerSource{}, WithLogger(slogt.New(t)))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
		done <- err
	}()
	<-w.waiting

	first, ok := s.Action(types.ActionVote)
	require.True(t, ok)
	require.Equal(t, types.StatusAwaitingConfirmation, first.Status)

	busy, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 2})
	require.ErrorIs(t, err, ErrAlreadyPending)
	require.Equal(t, first.ID, busy.ID)

	// The slot still holds the first action; nothing was queued.
	cur, _ := s.Action(types.ActionVote)
	require.Equal(t, first.ID, cur.ID)
	require.Equal(t, []string{types.MethodVote}, w.sent())

	// Other kinds are independent.
	w2 := &fakeWriter{}
	s.writer = w2
	_, err = s.Submit(context.Background(), types.ActionRegisterVoter,
		types.RegisterVoterPayload{VoterID: 1, Name: "Ann", Age: 30, Address: "x"})
	require.NoError(t, err)

	close(w.gate)
	require.NoError(t, <-done)

	_, err = s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 2})
	require.NoError(t, err)
}

func TestSubmitFailureReasons(t *testing.T) {
	feed := notify.New(10)
	w := &fakeWriter{sendErr: errors.New("execution reverted: already voted")}
	s := New(w, signerSource{}, WithNotifier(feed), WithLogger(slogt.New(t)))

	a, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "execution reverted: already voted", se.Reason)
	require.Equal(t, types.StatusFailed, a.Status)
	require.Equal(t, se.Reason, a.Reason)
	require.Equal(t, se.Reason, feed.GetRecent(1)[0].Text)

	w.sendErr = emptyError{}
	_, err = s.Submit(context.Background(), types.ActionRegisterCandidate,
		types.RegisterCandidatePayload{CandidateID: 1, Name: "A", Party: "P", Age: 40, Qualification: "Q"})
	require.ErrorAs(t, err, &se)
	require.Equal(t, "Error adding candidate", se.Reason)
}

func TestSubmitConfirmationFailure(t *testing.T) {
	w := &fakeWriter{waitErr: chain.ErrReverted}
	s := New(w, signerSource{}, WithLogger(slogt.New(t)))

	a, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
	require.ErrorIs(t, err, chain.ErrReverted)
	require.Equal(t, types.StatusFailed, a.Status)
	require.NotEmpty(t, a.TxHash)
}

func TestSubmitWithoutConnection(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, signerSource{err: connection.ErrNotConnected}, WithLogger(slogt.New(t)))

	a, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
	require.ErrorIs(t, err, connection.ErrNotConnected)
	require.Equal(t, "please connect your wallet first", a.Reason)
	require.Empty(t, w.sent())
}

func TestSubmitAbandonedWaitResolves(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	s := New(w, signerSource{}, WithLogger(slogt.New(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a, err := s.Submit(ctx, types.ActionVote, types.VotePayload{CandidateID: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, types.StatusFailed, a.Status)

	// The slot is free again.
	close(w.gate)
	_, err = s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
	require.NoError(t, err)
}

func TestSubmitKindMismatch(t *testing.T) {
	s := New(&fakeWriter{}, signerSource{})
	_, err := s.Submit(context.Background(), types.ActionRegisterVoter, types.VotePayload{CandidateID: 1})
	require.Error(t, err)
	require.Empty(t, s.Actions())
}

func TestDismiss(t *testing.T) {
	s := New(&fakeWriter{}, signerSource{}, WithLogger(slogt.New(t)))
	require.False(t, s.Dismiss(types.ActionVote))

	_, err := s.Submit(context.Background(), types.ActionVote, types.VotePayload{CandidateID: 1})
	require.NoError(t, err)
	require.Len(t, s.Actions(), 1)

	require.True(t, s.Dismiss(types.ActionVote))
	_, ok := s.Action(types.ActionVote)
	require.False(t, ok)
}
