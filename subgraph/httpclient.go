package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/txtypes"
)

// HTTPClient queries a single GraphQL indexer endpoint over HTTP.
// No GraphQL client library exists anywhere in the retrieval pack, so
// this issues plain JSON POST requests the way the teacher's chain
// adapters issue plain JSON-RPC requests (net/http + encoding/json,
// no codegen).
type HTTPClient struct {
	chain      chainid.ID
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient builds a Client against a single indexer endpoint for
// one chain. Deadline defaults to 10s per §5.
func NewHTTPClient(chain chainid.ID, endpoint string) *HTTPClient {
	return &HTTPClient{
		chain:      chain,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (c *HTTPClient) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return errs.Wrap(errs.RpcError, "subgraph.query", err, "failed to encode graphql request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.RpcError, "subgraph.query", err, "failed to build graphql request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.RpcError, "subgraph.query", err, "indexer request failed").With("chainId", c.chain.String())
	}
	defer resp.Body.Close()

	var parsed gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return errs.Wrap(errs.RpcError, "subgraph.query", err, "failed to decode indexer response")
	}
	if len(parsed.Errors) > 0 {
		return errs.New(errs.RpcError, "subgraph.query", "indexer returned errors").
			With("chainId", c.chain.String()).With("message", parsed.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return errs.Wrap(errs.RpcError, "subgraph.query", err, "failed to decode indexer payload")
		}
	}
	return nil
}

func (c *HTTPClient) GetSyncRecords(ctx context.Context) ([]txtypes.SyncRecord, error) {
	var data struct {
		SyncState struct {
			LatestBlock uint64 `json:"latestBlock"`
			SyncedBlock uint64 `json:"syncedBlock"`
		} `json:"syncState"`
	}
	if err := c.query(ctx, `{ syncState { latestBlock syncedBlock } }`, nil, &data); err != nil {
		return nil, err
	}

	lag := uint64(0)
	if data.SyncState.LatestBlock > data.SyncState.SyncedBlock {
		lag = data.SyncState.LatestBlock - data.SyncState.SyncedBlock
	}
	return []txtypes.SyncRecord{{
		Synced:      lag == 0,
		LatestBlock: data.SyncState.LatestBlock,
		SyncedBlock: data.SyncState.SyncedBlock,
		Lag:         lag,
		URI:         c.endpoint,
	}}, nil
}

func (c *HTTPClient) GetTransactionForChain(ctx context.Context, txID, user string) (txtypes.Record, bool, error) {
	var data struct {
		Transaction *struct {
			TxID                string `json:"txId"`
			User                string `json:"user"`
			Status              string `json:"status"`
			Amount              string `json:"amount"`
			Expiry              int64  `json:"expiry"`
			PreparedBlockNumber int64  `json:"preparedBlockNumber"`
		} `json:"transaction"`
	}
	vars := map[string]any{"txId": txID, "user": user}
	query := `query($txId: String!, $user: String!) {
		transaction(txId: $txId, user: $user) {
			txId user status amount expiry preparedBlockNumber
		}
	}`
	if err := c.query(ctx, query, vars, &data); err != nil {
		return txtypes.Record{}, false, err
	}
	if data.Transaction == nil {
		return txtypes.Record{}, false, nil
	}

	amount, ok := new(big.Int).SetString(data.Transaction.Amount, 10)
	if !ok {
		return txtypes.Record{}, false, errs.New(errs.RpcError, "subgraph.GetTransactionForChain", "malformed amount in indexer response")
	}

	rec := txtypes.Record{
		TIX:     txtypes.TIX{TransactionID: data.Transaction.TxID, User: data.Transaction.User},
		ChainID: c.chain,
		Status:  txtypes.Status(data.Transaction.Status),
		Variant: txtypes.Variant{
			Amount:              amount,
			Expiry:              time.Unix(data.Transaction.Expiry, 0),
			PreparedBlockNumber: uint64(data.Transaction.PreparedBlockNumber),
		},
	}
	return rec, true, nil
}

func (c *HTTPClient) GetAssetBalance(ctx context.Context, assetID string) (*big.Int, error) {
	var data struct {
		AssetBalance string `json:"assetBalance"`
	}
	query := `query($assetId: String!) { assetBalance(assetId: $assetId) }`
	if err := c.query(ctx, query, map[string]any{"assetId": assetID}, &data); err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(data.AssetBalance, 10)
	if !ok {
		return nil, errs.New(errs.RpcError, "subgraph.GetAssetBalance", "malformed balance in indexer response").
			With("assetId", assetID)
	}
	return balance, nil
}
