package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"votedesk.mini/vdk/internal/chaintest"
	"votedesk.mini/vdk/internal/types"
)

var contractAddr = common.HexToAddress("0x0fee2908afda3d25e876c05ed5a6b9e40c37d909")

type candidateTuple struct {
	Id               *big.Int
	Name             string
	Party            string
	Age              *big.Int
	Qualification    string
	CandidateAddress common.Address
	Vote             *big.Int
}

func newTestClient(t *testing.T) (*Client, *chaintest.Node) {
	t.Helper()
	parsed, err := DefaultABI()
	require.NoError(t, err)
	node := chaintest.NewNode(t)
	c := NewClient(node.Dial(t), contractAddr, parsed)
	c.SetReceiptPollInterval(5 * time.Millisecond)
	return c, node
}

func TestDecodeCandidatesFromABI(t *testing.T) {
	parsed, err := DefaultABI()
	require.NoError(t, err)

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	encoded, err := parsed.Methods[types.MethodGetCandidates].Outputs.Pack([]candidateTuple{
		{Id: big.NewInt(1), Name: "A", Party: "Red", Age: big.NewInt(40), Qualification: "BA", CandidateAddress: addr, Vote: big.NewInt(3)},
		{Id: big.NewInt(2), Name: "B", Party: "Blue", Age: big.NewInt(52), Qualification: "PhD", Vote: big.NewInt(5)},
	})
	require.NoError(t, err)

	out, err := parsed.Unpack(types.MethodGetCandidates, encoded)
	require.NoError(t, err)

	candidates, err := DecodeCandidates(out)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, types.Candidate{ID: 1, Name: "A", Party: "Red", Age: 40, Qualification: "BA", Address: addr.Hex(), VoteCount: 3}, candidates[0])
	require.Equal(t, uint64(5), candidates[1].VoteCount)
	require.Empty(t, candidates[1].Address)
}

func TestDecodeCandidatesMissingVoteCount(t *testing.T) {
	out := []any{[]map[string]any{
		{"id": big.NewInt(1), "name": "A", "voteCount": "7"},
		{"id": big.NewInt(2), "name": "B"},
		{"id": big.NewInt(3), "name": "C", "vote": nil},
	}}

	candidates, err := DecodeCandidates(out)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Equal(t, uint64(7), candidates[0].VoteCount)
	require.Zero(t, candidates[1].VoteCount)
	require.Zero(t, candidates[2].VoteCount)
}

func TestDecodeCandidatesRejectsScalar(t *testing.T) {
	_, err := DecodeCandidates([]any{big.NewInt(1)})
	require.Error(t, err)
	_, err = DecodeCandidates(nil)
	require.Error(t, err)
}

func TestDecodeCandidateAtPositional(t *testing.T) {
	c := DecodeCandidateAt([]any{big.NewInt(4), "D", "Green", big.NewInt(33), "MBA"})
	require.Equal(t, uint64(4), c.ID)
	require.Equal(t, "MBA", c.Qualification)
	require.Zero(t, c.VoteCount)
}

func TestDecodeVoters(t *testing.T) {
	out := []any{[]struct {
		Id           *big.Int
		Name         string
		Age          *big.Int
		VoterAddress string
	}{
		{Id: big.NewInt(10), Name: "Ann", Age: big.NewInt(19), VoterAddress: "12 High St"},
	}}
	voters, err := DecodeVoters(out)
	require.NoError(t, err)
	require.Equal(t, []types.Voter{{ID: 10, Name: "Ann", Age: 19, Address: "12 High St"}}, voters)
}

func TestClientGetCodeAndCall(t *testing.T) {
	c, node := newTestClient(t)
	node.Value("eth_getCode", "0x6080")

	packed, err := c.abi.Methods[types.MethodCandidateCount].Outputs.Pack(big.NewInt(2))
	require.NoError(t, err)
	node.Value("eth_call", hexutil.Encode(packed))

	code, err := c.GetCode(context.Background(), contractAddr)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x80}, code)

	out, err := c.Call(context.Background(), types.MethodCandidateCount)
	require.NoError(t, err)
	n, err := DecodeCount(out)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestClientCallUnknownMethod(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Call(context.Background(), "notAMethod")
	require.Error(t, err)
}

type stubSigner struct {
	hash common.Hash
	data []byte
}

func (s *stubSigner) Account() common.Address { return common.Address{} }

func (s *stubSigner) Send(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	if to != contractAddr {
		return common.Hash{}, errors.New("wrong target")
	}
	s.data = data
	return s.hash, nil
}

func receiptJSON(t *testing.T, hash common.Hash, status uint64) json.RawMessage {
	t.Helper()
	b, err := (&gethtypes.Receipt{
		Status:      status,
		TxHash:      hash,
		Logs:        []*gethtypes.Log{},
		BlockNumber: big.NewInt(7),
	}).MarshalJSON()
	require.NoError(t, err)
	return b
}

func TestClientSendAndWait(t *testing.T) {
	c, node := newTestClient(t)
	signer := &stubSigner{hash: common.HexToHash("0xabc1")}

	var polls atomic.Int32
	node.Handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, error) {
		if polls.Add(1) < 3 {
			return nil, nil
		}
		return receiptJSON(t, signer.hash, gethtypes.ReceiptStatusSuccessful), nil
	})

	method, args := types.VotePayload{CandidateID: 2}.Call()
	h, err := c.SendTransaction(context.Background(), signer, method, args...)
	require.NoError(t, err)
	require.Equal(t, signer.hash, h.Hash)
	require.Equal(t, c.abi.Methods[types.MethodVote].ID, signer.data[:4])

	receipt, err := c.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, signer.hash, receipt.TxHash)
	require.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestClientWaitReverted(t *testing.T) {
	c, node := newTestClient(t)
	hash := common.HexToHash("0xdead")
	node.Value("eth_getTransactionReceipt", receiptJSON(t, hash, gethtypes.ReceiptStatusFailed))

	_, err := c.Wait(context.Background(), TxHandle{Hash: hash, Method: types.MethodVote})
	require.ErrorIs(t, err, ErrReverted)
}

func TestClientWaitHonoursContext(t *testing.T) {
	c, node := newTestClient(t)
	node.Value("eth_getTransactionReceipt", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx, TxHandle{Hash: common.HexToHash("0x1")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseABIArtifact(t *testing.T) {
	artifact := []byte(`{"contractName":"BlockchainVoting","abi":[{"type":"function","name":"candidateCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}],"bytecode":"0x00"}`)
	parsed, err := ParseABI(artifact)
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, types.MethodCandidateCount)

	_, err = ParseABI([]byte(`{"bytecode":"0x00"}`))
	require.Error(t, err)
}
