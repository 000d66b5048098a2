// Package subgraph defines the client contract the Subgraph Event
// Tracker (Component C) polls: per-chain indexer sync state,
// transaction lookups, and router liquidity balances (§6.3,§4.C).
//
// HTTPClient is the package's concrete Client, posting GraphQL
// queries to a single indexer endpoint. subgraphtest provides an
// in-process indexer server for tests.
package subgraph

import (
	"context"
	"math/big"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/txtypes"
)

// Client is one chain's view into its configured indexer(s).
type Client interface {
	// GetSyncRecords reports one entry per configured indexer for
	// this chain. A chain is synced if any entry reports Synced=true.
	GetSyncRecords(ctx context.Context) ([]txtypes.SyncRecord, error)

	// GetTransactionForChain looks up a transaction record by
	// (txId, user) on this client's chain. ok is false when absent.
	GetTransactionForChain(ctx context.Context, txID, user string) (rec txtypes.Record, ok bool, err error)

	// GetAssetBalance returns the router's locked liquidity for an
	// asset on this client's chain.
	GetAssetBalance(ctx context.Context, assetID string) (*big.Int, error)
}

// ClientSet resolves a Client per chain, as configured in
// chainConfig[chainId].providers (§6.5).
type ClientSet interface {
	For(chain chainid.ID) (Client, bool)
}

// staticSet is the straightforward ClientSet backing production
// wiring: one Client per configured chain, fixed at startup.
type staticSet struct {
	clients map[chainid.ID]Client
}

// NewStaticClientSet builds a ClientSet from a fixed chain→Client map.
func NewStaticClientSet(clients map[chainid.ID]Client) ClientSet {
	return &staticSet{clients: clients}
}

func (s *staticSet) For(chain chainid.ID) (Client, bool) {
	c, ok := s.clients[chain]
	return c, ok
}
