package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/neilotoole/slogt"

	"votedesk.mini/vdk/internal/history"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

// MockCore implements Core for testing
type MockCore struct {
	mu         sync.Mutex
	state      types.ConnectionState
	connectErr error
	snapshot   *types.Snapshot
	snapErr    error
	refreshErr error
	submitted  []types.Payload
	submitFn   func(types.ActionKind, types.Payload) (types.PendingAction, error)
	actions    []types.PendingAction
	dismissed  []types.ActionKind
}

func (m *MockCore) State() types.ConnectionState { return m.state }

func (m *MockCore) Connect(context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.state = types.Connected("0x00000000000000000000000000000000000000a1", "1337")
	return nil
}

func (m *MockCore) Snapshot() (*types.Snapshot, error) { return m.snapshot, m.snapErr }

func (m *MockCore) Refresh(context.Context) (*types.Snapshot, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.snapshot, nil
}

func (m *MockCore) Submit(_ context.Context, kind types.ActionKind, payload types.Payload) (types.PendingAction, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, payload)
	m.mu.Unlock()
	if m.submitFn != nil {
		return m.submitFn(kind, payload)
	}
	return types.PendingAction{ID: "a1", Kind: kind, Payload: payload, Status: types.StatusSucceeded}, nil
}

func (m *MockCore) Actions() []types.PendingAction { return m.actions }

func (m *MockCore) Dismiss(kind types.ActionKind) bool {
	for _, a := range m.actions {
		if a.Kind == kind && a.Status.Terminal() {
			m.dismissed = append(m.dismissed, kind)
			return true
		}
	}
	return false
}

func (m *MockCore) ContractAddress() common.Address {
	return common.HexToAddress("0x0fee2908afda3d25e876c05ed5a6b9e40c37d909")
}

func sampleSnapshot() *types.Snapshot {
	return types.NewSnapshot([]types.Candidate{
		{ID: 1, Name: "Alice", Party: "Blue", VoteCount: 3},
		{ID: 2, Name: "Bob", Party: "Green", VoteCount: 5},
	}, []types.Voter{{ID: 1, Name: "Carol", Age: 40}}, time.Now().Add(-2*time.Minute))
}

// setupTest creates a service over a mock core and an in-memory history
func setupTest(t *testing.T) (*Service, *MockCore, *history.Store) {
	t.Helper()
	store, err := history.NewStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	core := &MockCore{state: types.Disconnected(), snapshot: sampleSnapshot()}
	svc := NewService(core, store, notify.New(100), slogt.New(t))
	return svc, core, store
}
