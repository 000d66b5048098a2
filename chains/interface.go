// Package chains defines the per-chain RPC surface the rest of the
// Routing Core depends on (§6.2), and a registry of adapters keyed by
// chainid.ID. Concrete adapters (e.g. chains/evm) do the actual
// dialing; this package only states the contract.
package chains

import (
	"context"
	"math/big"

	"github.com/meshbridge/router-node/chainid"
)

// Receipt is the confirmed result of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Status      bool
}

// Block is the minimal block data the dispatcher and tracker need.
type Block struct {
	Number    uint64
	Hash      string
	Timestamp int64
}

// TransactionRequest is an opaque, chain-specific payload the
// dispatcher hands to Adapter.SendTransaction; its Payload map
// carries whatever fields that chain's tx manager contract expects
// (TIX fields, preimage, signature, relayer fee, ...).
type TransactionRequest struct {
	To      string
	Value   *big.Int
	Payload map[string]any
}

// Adapter is the per-chain RPC surface (§6.2): opaque provider
// objects implementing read/write/estimation operations. router.New
// builds each chain's adapter from the chain's first configured
// provider only; there is no fallback to the other providers.
type Adapter interface {
	ChainID() chainid.ID

	ReadTransaction(ctx context.Context, txHash string) (*Receipt, error)
	SendTransaction(ctx context.Context, req TransactionRequest) (txHash string, err error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetCode(ctx context.Context, address string) ([]byte, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*Block, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	GetDecimalsForAsset(ctx context.Context, assetID string) (uint8, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	GetTransactionCount(ctx context.Context, address string) (uint64, error)

	Connect(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// Registry resolves an Adapter per chain.
type Registry struct {
	adapters map[chainid.ID]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[chainid.ID]Adapter{}}
}

// Register adds an adapter for a chain.
func (r *Registry) Register(chain chainid.ID, adapter Adapter) {
	r.adapters[chain] = adapter
}

// Get resolves a chain's adapter.
func (r *Registry) Get(chain chainid.ID) (Adapter, bool) {
	a, ok := r.adapters[chain]
	return a, ok
}
