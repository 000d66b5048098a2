// Package subgraphtest provides an in-process GraphQL indexer used by
// the subgraph HTTP client's tests, standing in for a real subgraph
// deployment (§6.3). It is built on
// github.com/graph-gophers/graphql-go rather than hand-rolled JSON
// fixtures so subgraph.HTTPClient's HTTP path is exercised for real.
package subgraphtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

const schema = `
	schema {
		query: Query
	}

	type Query {
		syncState: SyncState!
		transaction(txId: String!, user: String!): Transaction
		assetBalance(assetId: String!): String!
	}

	type SyncState {
		latestBlock: Int!
		syncedBlock: Int!
	}

	type Transaction {
		txId: String!
		user: String!
		status: String!
		amount: String!
		expiry: Int!
		preparedBlockNumber: Int!
	}
`

// Transaction is one record the mock indexer can serve.
type Transaction struct {
	TxID                string
	User                string
	Status              string
	Amount              string
	Expiry              int32
	PreparedBlockNumber int32
}

// Server is an in-process mock subgraph. Tests seed it with
// PutTransaction/SetSyncState, then point a subgraph.HTTPClient at its
// URL.
type Server struct {
	mu           sync.RWMutex
	latestBlock  int32
	syncedBlock  int32
	transactions map[string]Transaction
	balances     map[string]string

	httpServer *httptest.Server
}

// NewServer builds and starts a mock subgraph on a local loopback
// address. Callers must Close it when done.
func NewServer() *Server {
	s := &Server{
		transactions: map[string]Transaction{},
		balances:     map[string]string{},
	}
	parsed := graphql.MustParseSchema(schema, &resolver{srv: s})
	s.httpServer = httptest.NewServer(&relay.Handler{Schema: parsed})
	return s
}

// URL is the GraphQL endpoint tests should query.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts down the underlying HTTP server.
func (s *Server) Close() { s.httpServer.Close() }

// SetSyncState configures the chain-head/indexer-head pair the sync
// query reports.
func (s *Server) SetSyncState(latestBlock, syncedBlock int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestBlock = latestBlock
	s.syncedBlock = syncedBlock
}

// PutTransaction seeds or overwrites a transaction record.
func (s *Server) PutTransaction(tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.TxID+":"+tx.User] = tx
}

// SetAssetBalance seeds the router's liquidity figure for an asset.
func (s *Server) SetAssetBalance(assetID, balance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[assetID] = balance
}

type resolver struct {
	srv *Server
}

type syncStateResolver struct {
	latestBlock int32
	syncedBlock int32
}

func (r *syncStateResolver) LatestBlock() int32 { return r.latestBlock }
func (r *syncStateResolver) SyncedBlock() int32 { return r.syncedBlock }

func (r *resolver) SyncState(ctx context.Context) *syncStateResolver {
	r.srv.mu.RLock()
	defer r.srv.mu.RUnlock()
	return &syncStateResolver{latestBlock: r.srv.latestBlock, syncedBlock: r.srv.syncedBlock}
}

type transactionResolver struct {
	tx Transaction
}

func (r *transactionResolver) TxID() string                { return r.tx.TxID }
func (r *transactionResolver) User() string                { return r.tx.User }
func (r *transactionResolver) Status() string               { return r.tx.Status }
func (r *transactionResolver) Amount() string                { return r.tx.Amount }
func (r *transactionResolver) Expiry() int32                 { return r.tx.Expiry }
func (r *transactionResolver) PreparedBlockNumber() int32    { return r.tx.PreparedBlockNumber }

func (r *resolver) Transaction(ctx context.Context, args struct{ TxId, User string }) *transactionResolver {
	r.srv.mu.RLock()
	defer r.srv.mu.RUnlock()
	tx, ok := r.srv.transactions[args.TxId+":"+args.User]
	if !ok {
		return nil
	}
	return &transactionResolver{tx: tx}
}

func (r *resolver) AssetBalance(ctx context.Context, args struct{ AssetId string }) string {
	r.srv.mu.RLock()
	defer r.srv.mu.RUnlock()
	bal, ok := r.srv.balances[args.AssetId]
	if !ok {
		return "0"
	}
	return bal
}

var _ http.Handler = (*relay.Handler)(nil)
