package router

import (
	"context"
	"math/big"
	"testing"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/chains"
	"github.com/meshbridge/router-node/config"
	"github.com/meshbridge/router-node/subgraph"
	"github.com/meshbridge/router-node/tracker"
	"github.com/meshbridge/router-node/txtypes"
)

// fakeAdapter is a minimal chains.Adapter stub for exercising the
// router/ wiring code without dialing a real chain.
type fakeAdapter struct {
	chain       chainid.ID
	balance     *big.Int
	decimals    uint8
	decimalsErr error
	gasPrice    *big.Int
}

func (f *fakeAdapter) ChainID() chainid.ID { return f.chain }
func (f *fakeAdapter) ReadTransaction(ctx context.Context, txHash string) (*chains.Receipt, error) {
	return nil, nil
}
func (f *fakeAdapter) SendTransaction(ctx context.Context, req chains.TransactionRequest) (string, error) {
	return "", nil
}
func (f *fakeAdapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeAdapter) GetCode(ctx context.Context, address string) ([]byte, error) { return nil, nil }
func (f *fakeAdapter) GetBlockNumber(ctx context.Context) (uint64, error)          { return 0, nil }
func (f *fakeAdapter) GetBlock(ctx context.Context, number uint64) (*chains.Block, error) {
	return nil, nil
}
func (f *fakeAdapter) GetTransactionReceipt(ctx context.Context, txHash string) (*chains.Receipt, error) {
	return nil, nil
}
func (f *fakeAdapter) GetDecimalsForAsset(ctx context.Context, assetID string) (uint8, error) {
	if f.decimalsErr != nil {
		return 0, f.decimalsErr
	}
	return f.decimals, nil
}
func (f *fakeAdapter) GetGasPrice(ctx context.Context) (*big.Int, error) { return f.gasPrice, nil }
func (f *fakeAdapter) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	return 0, nil
}
func (f *fakeAdapter) Connect(ctx context.Context) error     { return nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }

var _ chains.Adapter = (*fakeAdapter)(nil)

// fakeSubgraphClient stubs subgraph.Client for tracker.AddChain.
type fakeSubgraphClient struct {
	balance *big.Int
}

func (f *fakeSubgraphClient) GetSyncRecords(ctx context.Context) ([]txtypes.SyncRecord, error) {
	return nil, nil
}
func (f *fakeSubgraphClient) GetTransactionForChain(ctx context.Context, txID, user string) (txtypes.Record, bool, error) {
	return txtypes.Record{}, false, nil
}
func (f *fakeSubgraphClient) GetAssetBalance(ctx context.Context, assetID string) (*big.Int, error) {
	return f.balance, nil
}

var _ subgraph.Client = (*fakeSubgraphClient)(nil)

func testConfig() *config.Config {
	return &config.Config{
		ChainConfig: map[string]config.ChainConfig{
			"1": {
				ChainID:                   1,
				Providers:                 []string{"https://rpc.example/1"},
				Confirmations:             3,
				MinGas:                    "100",
				TransactionManagerAddress: "0xRouter1",
			},
			"2": {
				ChainID:                   2,
				Providers:                 []string{"https://rpc.example/2"},
				TransactionManagerAddress: "0xRouter2",
			},
		},
		SwapPools: []config.SwapPool{
			{
				Name: "usdc-pool",
				Assets: []config.SwapPoolAsset{
					{ChainID: 1, AssetID: "USDC"},
					{ChainID: 2, AssetID: "USDC"},
				},
			},
		},
	}
}

func TestChainConfigAdapterChainConfig(t *testing.T) {
	c := &chainConfigAdapter{cfg: testConfig()}

	cc, ok := c.ChainConfig(chainid.ID(1))
	if !ok {
		t.Fatal("expected chain 1 to resolve")
	}
	if cc.TransactionManagerAddress != "0xRouter1" {
		t.Fatalf("unexpected router address: %s", cc.TransactionManagerAddress)
	}
	if cc.MinGas.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected min gas: %s", cc.MinGas)
	}

	if _, ok := c.ChainConfig(chainid.ID(99)); ok {
		t.Fatal("expected unconfigured chain to be absent")
	}
}

func TestChainConfigAdapterRouterAddress(t *testing.T) {
	c := &chainConfigAdapter{cfg: testConfig()}

	addr, ok := c.RouterAddress(chainid.ID(2))
	if !ok || addr != "0xRouter2" {
		t.Fatalf("unexpected router address resolution: %q, %v", addr, ok)
	}

	if _, ok := c.RouterAddress(chainid.ID(99)); ok {
		t.Fatal("expected unconfigured chain to be absent")
	}
}

func TestLiquidityAdapterGetNativeBalance(t *testing.T) {
	registry := chains.NewRegistry()
	registry.Register(chainid.ID(1), &fakeAdapter{chain: chainid.ID(1), balance: big.NewInt(500)})

	l := &liquidityAdapter{tracker: tracker.New(), registry: registry, routerAddress: "0xme"}

	bal, err := l.GetNativeBalance(context.Background(), chainid.ID(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected balance: %s", bal)
	}

	if _, err := l.GetNativeBalance(context.Background(), chainid.ID(99)); err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}

func TestLiquidityAdapterGetAssetBalance(t *testing.T) {
	trk := tracker.New()
	trk.AddChain(chainid.ID(1), &fakeSubgraphClient{balance: big.NewInt(777)}, 0, true)

	l := &liquidityAdapter{tracker: trk, registry: chains.NewRegistry(), routerAddress: "0xme"}

	bal, err := l.GetAssetBalance(context.Background(), chainid.ID(1), "USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("unexpected balance: %s", bal)
	}
}

func TestPoolAdapterResolvePool(t *testing.T) {
	p := &poolAdapter{cfg: testConfig(), tracker: tracker.New(), registry: chains.NewRegistry()}

	pool, sendIdx, recvIdx, ok := p.ResolvePool(chainid.ID(1), "USDC", chainid.ID(2), "USDC")
	if !ok {
		t.Fatal("expected pool to resolve")
	}
	if pool.Name != "usdc-pool" {
		t.Fatalf("unexpected pool: %s", pool.Name)
	}
	if sendIdx != 0 || recvIdx != 1 {
		t.Fatalf("unexpected indices: %d, %d", sendIdx, recvIdx)
	}

	if _, _, _, ok := p.ResolvePool(chainid.ID(1), "DAI", chainid.ID(2), "USDC"); ok {
		t.Fatal("expected no pool for an unconfigured asset")
	}
}

func TestPoolAdapterNormalizedBalances(t *testing.T) {
	trk := tracker.New()
	trk.AddChain(chainid.ID(1), &fakeSubgraphClient{balance: big.NewInt(1_000_000)}, 0, true) // 6 decimals
	trk.AddChain(chainid.ID(2), &fakeSubgraphClient{balance: big.NewInt(1)}, 0, true)         // 18 decimals

	registry := chains.NewRegistry()
	registry.Register(chainid.ID(1), &fakeAdapter{chain: chainid.ID(1), decimals: 6})
	registry.Register(chainid.ID(2), &fakeAdapter{chain: chainid.ID(2), decimals: 18})

	p := &poolAdapter{cfg: testConfig(), tracker: trk, registry: registry}
	pool, _, _, ok := p.ResolvePool(chainid.ID(1), "USDC", chainid.ID(2), "USDC")
	if !ok {
		t.Fatal("expected pool to resolve")
	}

	balances, err := p.NormalizedBalances(context.Background(), pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	// 1_000_000 at 6 decimals scales to 1e18 at 18 decimals.
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if balances[0].Cmp(want) != 0 {
		t.Fatalf("unexpected scaled balance: %s, want %s", balances[0], want)
	}
}
