// Package chain - contract access over Ethereum JSON-RPC
//
// This package is the client's only path to the voting contract. Reads go
// through eth_call and are decoded with the contract ABI; writes are packed
// here and handed to a Signer (wallet-managed or local key) for broadcast,
// then confirmed by polling for the transaction receipt.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultRPCURL is the local development node.
const DefaultRPCURL = "http://127.0.0.1:8545"

// ErrReverted is returned by Wait when the transaction was mined but failed.
var ErrReverted = errors.New("transaction reverted")

// Reader is the read-only half of the contract port.
type Reader interface {
	// Address is the contract the reader is bound to.
	Address() common.Address
	// GetCode returns the deployed bytecode at addr (empty when none).
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
	// Call invokes a view method and returns its decoded outputs.
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

// Writer is the state-changing half of the contract port.
type Writer interface {
	SendTransaction(ctx context.Context, signer Signer, method string, args ...any) (TxHandle, error)
	Wait(ctx context.Context, h TxHandle) (*gethtypes.Receipt, error)
}

// Signer broadcasts contract call data on behalf of an account.
type Signer interface {
	Account() common.Address
	Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// TxHandle identifies a broadcast transaction awaiting confirmation.
type TxHandle struct {
	Hash   common.Hash
	Method string
}

// Client wraps an ethclient bound to a single contract.
type Client struct {
	rpc          *rpc.Client
	eth          *ethclient.Client
	abi          abi.ABI
	address      common.Address
	pollInterval time.Duration
}

// Dial connects to the JSON-RPC endpoint and binds the client to address.
//
// Parameters:
//   - rpcURL: node endpoint (e.g. "http://127.0.0.1:8545"); empty uses DefaultRPCURL
//   - address: contract address
//   - contractABI: interface description used to pack and unpack calls
func Dial(ctx context.Context, rpcURL string, address common.Address, contractABI abi.ABI) (*Client, error) {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return NewClient(rc, address, contractABI), nil
}

// NewClient binds an existing RPC connection to a contract.
func NewClient(rc *rpc.Client, address common.Address, contractABI abi.ABI) *Client {
	return &Client{
		rpc:          rc,
		eth:          ethclient.NewClient(rc),
		abi:          contractABI,
		address:      address,
		pollInterval: time.Second,
	}
}

// SetReceiptPollInterval changes how often Wait asks for the receipt.
func (c *Client) SetReceiptPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// Address returns the bound contract address.
func (c *Client) Address() common.Address { return c.address }

// RPC exposes the raw connection so wallet sessions can share it.
func (c *Client) RPC() *rpc.Client { return c.rpc }

// ChainID asks the node for its chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// GetCode returns the code deployed at addr at the latest block.
func (c *Client) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("getCode %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// Call packs method and args, performs eth_call against the contract and
// unpacks the outputs.
func (c *Client) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// SendTransaction packs a state-changing call and hands it to signer.
// The returned handle is passed to Wait for confirmation.
func (c *Client) SendTransaction(ctx context.Context, signer Signer, method string, args ...any) (TxHandle, error) {
	if signer == nil {
		return TxHandle{}, errors.New("no signer available")
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	hash, err := signer.Send(ctx, c.address, data)
	if err != nil {
		return TxHandle{}, err
	}
	return TxHandle{Hash: hash, Method: method}, nil
}

// Wait polls for the receipt of h until it is mined or ctx ends.
// A mined transaction with a failed status yields ErrReverted along with
// the receipt.
func (c *Client) Wait(ctx context.Context, h TxHandle) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, h.Hash)
		switch {
		case err == nil:
			if receipt.Status == gethtypes.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%s %s: %w", h.Method, h.Hash.Hex(), ErrReverted)
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}
