package main

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"votedesk.mini/vdk/internal/chaintest"
	"votedesk.mini/vdk/internal/config"
)

const testArtifact = `{
  "contractName": "BlockchainVoting",
  "abi": [
    {"type": "constructor", "inputs": [], "stateMutability": "nonpayable"},
    {"type": "function", "name": "vote", "inputs": [{"name": "_candidateId", "type": "uint256"}], "outputs": [], "stateMutability": "nonpayable"}
  ],
  "bytecode": "0x6080604052348015600f57600080fd5b50603f80601d6000396000f3fe"
}`

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "BlockchainVoting.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// deployNode answers the calls a legacy-priced deployment makes and records
// the raw transaction it receives.
func deployNode(t *testing.T, from common.Address) (*chaintest.Node, *gethtypes.Transaction) {
	t.Helper()
	node := chaintest.NewNode(t)
	var sent gethtypes.Transaction
	var sentHash common.Hash

	node.Value("eth_chainId", "0x539")
	node.Value("eth_gasPrice", "0x3b9aca00")
	node.Value("eth_getTransactionCount", "0x0")
	node.Value("eth_estimateGas", "0x1e8480")
	node.Value("eth_getCode", "0x6080604052")
	node.Handle("eth_sendRawTransaction", func(params []json.RawMessage) (any, error) {
		var raw hexutil.Bytes
		if err := json.Unmarshal(params[0], &raw); err != nil {
			return nil, err
		}
		if err := sent.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		sentHash = sent.Hash()
		return sentHash.Hex(), nil
	})
	node.Handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, error) {
		b, err := (&gethtypes.Receipt{
			Status:          gethtypes.ReceiptStatusSuccessful,
			TxHash:          sentHash,
			ContractAddress: crypto.CreateAddress(from, 0),
			Logs:            []*gethtypes.Log{},
			BlockNumber:     big.NewInt(1),
		}).MarshalJSON()
		return json.RawMessage(b), err
	})
	return node, &sent
}

func TestDeployWritesRecord(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	node, sent := deployNode(t, from)

	client, err := ethclient.Dial(node.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	out := filepath.Join(t.TempDir(), "deployment.json")
	opts := deployOptions{
		Artifact: writeArtifact(t, testArtifact),
		Network:  "localhost",
		Out:      out,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := deploy(ctx, client, key, opts, slogt.New(t))
	require.NoError(t, err)

	want := crypto.CreateAddress(from, 0)
	require.Equal(t, want.Hex(), d.Address)
	require.Equal(t, "BlockchainVoting", d.Contract)
	require.Equal(t, uint64(1337), d.ChainID)
	require.Nil(t, sent.To(), "deployment must be a contract creation")
	require.Zero(t, sent.GasPrice().Cmp(big.NewInt(1_000_000_000)))
	require.Equal(t, 1, node.Calls("eth_sendRawTransaction"))

	record, err := config.ReadDeployment(out)
	require.NoError(t, err)
	require.Equal(t, d.Address, record.Address)
	require.Equal(t, "localhost", record.Network)
	require.False(t, record.Timestamp.IsZero())
}

func TestDeployRejectsArtifactWithoutBytecode(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	node, _ := deployNode(t, crypto.PubkeyToAddress(key.PublicKey))
	client, err := ethclient.Dial(node.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	body := strings.Replace(testArtifact, `"0x6080604052348015600f57600080fd5b50603f80601d6000396000f3fe"`, `"0x"`, 1)
	out := filepath.Join(t.TempDir(), "deployment.json")
	_, err = deploy(context.Background(), client, key, deployOptions{
		Artifact: writeArtifact(t, body),
		Out:      out,
	}, slogt.New(t))
	require.ErrorContains(t, err, "no bytecode")
	require.Zero(t, node.Calls("eth_sendRawTransaction"))
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestDeployMissingArtifact(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = deploy(context.Background(), nil, key, deployOptions{
		Artifact: filepath.Join(t.TempDir(), "missing.json"),
	}, slogt.New(t))
	require.ErrorContains(t, err, "read artifact")
}
