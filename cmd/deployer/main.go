// Command deployer deploys a compiled BlockchainVoting artifact and writes
// the deployment record that vdk reads its contract address from.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/pflag"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/config"
)

const defaultContractName = "BlockchainVoting"

// artifact is the part of a hardhat/truffle build artifact the deployer
// needs besides the ABI.
type artifact struct {
	ContractName string `json:"contractName"`
	Bytecode     string `json:"bytecode"`
}

type deployOptions struct {
	Artifact string
	Network  string
	Out      string
	GasLimit uint64
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	var (
		opts    deployOptions
		rpcURL  string
		keyFile string
		timeout time.Duration
	)
	pflag.StringVar(&opts.Artifact, "artifact", "artifacts/contracts/BlockchainVoting.sol/BlockchainVoting.json", "compiled contract artifact (JSON with abi and bytecode)")
	pflag.StringVar(&opts.Network, "network", "localhost", "network name stored in the deployment record")
	pflag.StringVar(&opts.Out, "out", cfg.DeploymentFile, "where to write the deployment record")
	pflag.Uint64Var(&opts.GasLimit, "gas-limit", 0, "gas limit (0 estimates)")
	pflag.StringVar(&rpcURL, "rpc-url", cfg.RPCURL, "JSON-RPC endpoint of the node")
	pflag.StringVar(&keyFile, "key-file", cfg.KeyFile, "hex private key of the funded deployer account")
	pflag.DurationVar(&timeout, "timeout", 2*time.Minute, "deadline for sending and mining the deployment")
	pflag.Parse()

	key, err := crypto.LoadECDSA(keyFile)
	if err != nil {
		slog.Error("load deployer key", "path", keyFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		slog.Error("dial node", "url", rpcURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	d, err := deploy(ctx, client, key, opts, slog.Default())
	if err != nil {
		slog.Error("deployment failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s deployed to %s on %s (chain %d)\nRecord written to %s\n", d.Contract, d.Address, d.Network, d.ChainID, opts.Out)
}

// deployBackend is what deploying and waiting for the receipt need.
type deployBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

func deploy(ctx context.Context, client deployBackend, key *ecdsa.PrivateKey, opts deployOptions, logger *slog.Logger) (*config.Deployment, error) {
	data, err := os.ReadFile(opts.Artifact)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	contractABI, err := chain.ParseABI(data)
	if err != nil {
		return nil, err
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	bytecode := common.FromHex(art.Bytecode)
	if len(bytecode) == 0 {
		return nil, errors.New("artifact has no bytecode")
	}
	name := art.ContractName
	if name == "" {
		name = defaultContractName
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	auth.GasLimit = opts.GasLimit
	if auth.GasPrice, err = client.SuggestGasPrice(ctx); err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	address, tx, _, err := bind.DeployContract(auth, contractABI, bytecode, client)
	if err != nil {
		return nil, fmt.Errorf("send deployment: %w", err)
	}
	logger.Info("deployment sent", "contract", name, "tx", tx.Hash().Hex(), "from", auth.From.Hex())

	deployed, err := bind.WaitDeployed(ctx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for deployment: %w", err)
	}
	if deployed != address {
		logger.Warn("receipt address differs from the computed one", "computed", address.Hex(), "receipt", deployed.Hex())
	}

	d := &config.Deployment{
		Contract:  name,
		Address:   deployed.Hex(),
		Network:   opts.Network,
		Timestamp: time.Now().UTC(),
		ChainID:   chainID.Uint64(),
	}
	if err := config.WriteDeployment(opts.Out, d); err != nil {
		return nil, fmt.Errorf("write deployment record: %w", err)
	}
	return d, nil
}
