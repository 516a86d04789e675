package cli

import (
	"bytes"
	"context"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/chaintest"
	"votedesk.mini/vdk/internal/discovery"
	"votedesk.mini/vdk/internal/types"
)

type candidateTuple struct {
	Id               *big.Int
	Name             string
	Party            string
	Age              *big.Int
	Qualification    string
	CandidateAddress common.Address
	Vote             *big.Int
}

type voterTuple struct {
	Id           *big.Int
	Name         string
	Age          *big.Int
	VoterAddress string
}

// isolate runs the test in an empty directory with no VDK_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"VDK_CONFIG_FILE", "VDK_RPC_URL", "VDK_CONTRACT_ADDRESS", "VDK_ABI_FILE",
		"VDK_DEPLOYMENT_FILE", "VDK_WALLET_MODE", "VDK_KEY_FILE", "VDK_CANDIDATE_SOURCE",
		"VDK_LOG_LEVEL", "VDK_PORT", "VDK_POLL_INTERVAL", "VDK_AUTO_CONNECT", "VDK_POLL_REQUIRES_WALLET",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func votingNode(t *testing.T) *chaintest.Node {
	t.Helper()
	parsed, err := chain.DefaultABI()
	require.NoError(t, err)

	node := chaintest.NewNode(t)
	node.Value("eth_getCode", "0x6080")
	node.Contract(parsed, map[string][]any{
		types.MethodGetCandidates: {[]candidateTuple{
			{Id: big.NewInt(1), Name: "Alice", Party: "Blue", Age: big.NewInt(45), Qualification: "LLB", Vote: big.NewInt(3)},
			{Id: big.NewInt(2), Name: "Bob", Party: "Green", Age: big.NewInt(50), Qualification: "PhD", Vote: big.NewInt(5)},
		}},
		types.MethodGetVoters: {[]voterTuple{
			{Id: big.NewInt(1), Name: "Carol", Age: big.NewInt(30), VoterAddress: "1 Main St"},
		}},
	})
	return node
}

func TestStatusCommand(t *testing.T) {
	isolate(t)
	node := votingNode(t)

	out, err := run(t, "status", "--rpc-url", node.URL, "--wallet", "none", "--log-level", "error")
	require.NoError(t, err)
	require.Contains(t, out, "disconnected")
	require.Regexp(t, `Voters\s+1\n`, out)
	require.Regexp(t, `Candidates\s+2\n`, out)
	require.Regexp(t, `Votes\s+8\n`, out)
	require.Regexp(t, `Voting\s+open\n`, out)
}

func TestStatusReportsMissingContract(t *testing.T) {
	isolate(t)
	node := chaintest.NewNode(t)
	node.Value("eth_getCode", "0x")

	out, err := run(t, "status", "--rpc-url", node.URL, "--wallet", "none", "--log-level", "error")
	require.Error(t, err)
	require.Contains(t, out, "unavailable")
}

func TestResultsCommand(t *testing.T) {
	isolate(t)
	node := votingNode(t)

	out, err := run(t, "results", "--rpc-url", node.URL, "--wallet", "none", "--log-level", "error")
	require.NoError(t, err)
	require.Regexp(t, `1st\s+2\s+Bob\s+Green\s+5\s+62\.5%`, out)
	require.Regexp(t, `2nd\s+1\s+Alice\s+Blue\s+3\s+37\.5%`, out)
	require.Contains(t, out, "Leading: Bob (Green)")
}

func TestSubmitValidatesBeforeDialing(t *testing.T) {
	isolate(t)

	_, err := run(t, "vote", "0", "--rpc-url", "http://127.0.0.1:1")
	require.ErrorIs(t, err, types.ErrInvalidPayload)

	_, err = run(t, "register-voter", "--id", "1", "--name", "Dan", "--age", "17", "--address", "Elm St")
	require.ErrorIs(t, err, types.ErrInvalidPayload)

	_, err = run(t, "add-candidate", "--id", "1", "--name", "Eve", "--age", "40", "--qualification", "MSc")
	require.ErrorIs(t, err, types.ErrInvalidPayload)

	_, err = run(t, "vote", "abc")
	require.Error(t, err)
}

func TestKeygenCommand(t *testing.T) {
	dir := isolate(t)
	keyPath := filepath.Join(dir, "test.key")

	out, err := run(t, "keygen", "--key-file", keyPath)
	require.NoError(t, err)
	require.Contains(t, out, "Address 0x")

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = run(t, "keygen", "--key-file", keyPath)
	require.Error(t, err, "existing keys are kept unless forced")

	_, err = run(t, "keygen", "--key-file", keyPath, "--force")
	require.NoError(t, err)
}

func TestPrintDashboards(t *testing.T) {
	var buf bytes.Buffer
	printDashboards(&buf, nil)
	require.Equal(t, "No dashboards found.\n", buf.String())

	buf.Reset()
	printDashboards(&buf, []discovery.Dashboard{
		{Instance: "desk-1", Port: 8080, Addrs: []net.IP{net.ParseIP("192.0.2.10")}, ChainID: 1337, Contract: "0xabc"},
		{Instance: "desk-2", Hostname: "desk-2.local.", Port: 9000},
	})
	out := buf.String()
	require.Contains(t, out, "INSTANCE")
	require.Regexp(t, `desk-1\s+http://192\.0\.2\.10:8080\s+1337\s+0xabc`, out)
	require.Regexp(t, `desk-2\s+http://desk-2\.local:9000\s+-\s+-`, out)
}
