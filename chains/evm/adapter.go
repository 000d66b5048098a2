package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/chains"
	"github.com/meshbridge/router-node/errs"
)

// erc20DecimalsABI is the minimal ABI fragment the adapter needs to
// resolve an asset's decimals via a view call.
const erc20DecimalsABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`

// Adapter implements chains.Adapter for EVM-compatible chains,
// adapted from the teacher's EVMAdapter: same ethclient.Client +
// ecdsa.PrivateKey + sync.RWMutex fields, same Connect/HealthCheck
// bodies, with SubmitOracleUpdate's nonce-fetch -> gas-price -> pack
// -> sign -> send -> bind.WaitMined pipeline retargeted to
// SendTransaction for prepare/fulfill/cancel payloads.
type Adapter struct {
	mu          sync.RWMutex
	chain       chainid.ID
	rpcURL      string
	txManager   string
	client      *ethclient.Client
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	connected   bool
}

// New builds an EVM adapter for one chain's configured RPC endpoint
// and router transaction-manager contract.
func New(chain chainid.ID, rpcURL, txManagerAddress, privateKeyHex string) (*Adapter, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, "evm.New", err, "invalid router private key")
	}

	return &Adapter{
		chain:       chain,
		rpcURL:      rpcURL,
		txManager:   txManagerAddress,
		privateKey:  pk,
		fromAddress: crypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

func (a *Adapter) ChainID() chainid.ID { return a.chain }

// Connect dials the configured RPC endpoint and verifies the reported
// chain ID matches what this adapter was configured for.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	client, err := ethclient.DialContext(ctx, a.rpcURL)
	if err != nil {
		return errs.Wrap(errs.RpcError, "evm.Connect", err, "failed to dial RPC endpoint").
			With("chainId", a.chain.String())
	}

	remoteChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return errs.Wrap(errs.RpcError, "evm.Connect", err, "failed to read chain id from RPC")
	}
	if remoteChainID.Uint64() != uint64(a.chain) {
		client.Close()
		return errs.New(errs.ConfigurationError, "evm.Connect", "RPC chain id does not match configured chain").
			With("expected", a.chain.String()).With("got", remoteChainID.String())
	}

	a.client = client
	a.connected = true
	log.Info().Str("chainId", a.chain.String()).Str("address", a.fromAddress.Hex()).Msg("evm adapter connected")
	return nil
}

// HealthCheck verifies the connection is usable.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return errs.New(errs.ProviderNotConfigured, "evm.HealthCheck", "adapter not connected").
			With("chainId", a.chain.String())
	}
	if _, err := a.client.BlockNumber(ctx); err != nil {
		return errs.Wrap(errs.RpcError, "evm.HealthCheck", err, "RPC health check failed")
	}
	return nil
}

func (a *Adapter) withClient() (*ethclient.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return nil, errs.New(errs.ProviderNotConfigured, "evm", "adapter not connected").With("chainId", a.chain.String())
	}
	return a.client, nil
}

func (a *Adapter) ReadTransaction(ctx context.Context, txHash string) (*chains.Receipt, error) {
	return a.GetTransactionReceipt(ctx, txHash)
}

// SendTransaction packs req.Payload's fields into a call to the
// chain's transaction-manager contract, signs, sends, and waits for
// inclusion — the same nonce -> gas-price -> pack -> sign -> send ->
// bind.WaitMined shape the teacher's SubmitOracleUpdate used for
// oracle fulfillment, retargeted to prepare/fulfill/cancel calls.
func (a *Adapter) SendTransaction(ctx context.Context, req chains.TransactionRequest) (string, error) {
	client, err := a.withClient()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	nonce, err := client.PendingNonceAt(ctx, a.fromAddress)
	if err != nil {
		return "", errs.Wrap(errs.RpcError, "evm.SendTransaction", err, "failed to fetch nonce")
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", errs.Wrap(errs.RpcError, "evm.SendTransaction", err, "failed to fetch gas price")
	}

	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	data, err := encodePayload(req.Payload)
	if err != nil {
		return "", errs.Wrap(errs.ParamsInvalid, "evm.SendTransaction", err, "failed to encode transaction payload")
	}

	tip := big.NewInt(1_000_000_000)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(uint64(a.chain)),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: new(big.Int).Add(gasPrice, tip),
		Gas:       300_000,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(uint64(a.chain))), a.privateKey)
	if err != nil {
		return "", errs.Wrap(errs.ConfigurationError, "evm.SendTransaction", err, "failed to sign transaction")
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		if isNonceTooLow(err) {
			return "", errs.Wrap(errs.RpcError, "evm.SendTransaction", err, "nonce too low, caller should refresh and retry")
		}
		return "", errs.Wrap(errs.RpcError, "evm.SendTransaction", err, "failed to send transaction")
	}

	log.Info().Str("chainId", a.chain.String()).Str("txHash", signedTx.Hash().Hex()).Msg("transaction submitted")

	receipt, err := bind.WaitMined(ctx, client, signedTx)
	if err != nil {
		return signedTx.Hash().Hex(), errs.Wrap(errs.RpcError, "evm.SendTransaction", err, "failed waiting for confirmation")
	}
	if receipt.Status != 1 {
		return receipt.TxHash.Hex(), errs.New(errs.RpcError, "evm.SendTransaction", "transaction reverted").
			With("txHash", receipt.TxHash.Hex())
	}
	return receipt.TxHash.Hex(), nil
}

// isNonceTooLow matches the go-ethereum/geth error text the teacher's
// tx manager retried on.
func isNonceTooLow(err error) bool {
	return err != nil && strings.Contains(err.Error(), "nonce too low")
}

// encodePayload is a placeholder ABI encoder: a production deployment
// packs req.Payload against the router contract's ABI the way the
// teacher's oracleABI.Pack did for fulfillData. Payload here is kept
// opaque at this layer since the router contract ABI is itself an
// external collaborator (§1 out-of-scope).
func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return []byte(fmt.Sprintf("%v", payload)), nil
}

func (a *Adapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	client, err := a.withClient()
	if err != nil {
		return nil, err
	}
	bal, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "evm.GetBalance", err, "balance query failed")
	}
	return bal, nil
}

func (a *Adapter) GetCode(ctx context.Context, address string) ([]byte, error) {
	client, err := a.withClient()
	if err != nil {
		return nil, err
	}
	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "evm.GetCode", err, "code query failed")
	}
	return code, nil
}

func (a *Adapter) GetBlockNumber(ctx context.Context) (uint64, error) {
	client, err := a.withClient()
	if err != nil {
		return 0, err
	}
	n, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.RpcError, "evm.GetBlockNumber", err, "block number query failed")
	}
	return n, nil
}

func (a *Adapter) GetBlock(ctx context.Context, number uint64) (*chains.Block, error) {
	client, err := a.withClient()
	if err != nil {
		return nil, err
	}
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "evm.GetBlock", err, "header query failed")
	}
	return &chains.Block{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash().Hex(),
		Timestamp: int64(header.Time),
	}, nil
}

func (a *Adapter) GetTransactionReceipt(ctx context.Context, txHash string) (*chains.Receipt, error) {
	client, err := a.withClient()
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "evm.GetTransactionReceipt", err, "receipt query failed")
	}
	return &chains.Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Status:      receipt.Status == 1,
	}, nil
}

func (a *Adapter) GetDecimalsForAsset(ctx context.Context, assetID string) (uint8, error) {
	if assetID == "native" {
		return 18, nil
	}
	client, err := a.withClient()
	if err != nil {
		return 0, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20DecimalsABI))
	if err != nil {
		return 0, errs.Wrap(errs.ConfigurationError, "evm.GetDecimalsForAsset", err, "failed to parse decimals ABI")
	}
	caller := bind.NewBoundContract(common.HexToAddress(assetID), parsedABI, client, client, client)

	var out []any
	if err := caller.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, errs.Wrap(errs.RpcError, "evm.GetDecimalsForAsset", err, "decimals() call failed").With("assetId", assetID)
	}
	if len(out) == 0 {
		return 0, errs.New(errs.RpcError, "evm.GetDecimalsForAsset", "empty decimals() response")
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, errs.New(errs.RpcError, "evm.GetDecimalsForAsset", "unexpected decimals() return type")
	}
	return decimals, nil
}

func (a *Adapter) GetGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := a.withClient()
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "evm.GetGasPrice", err, "gas price suggestion failed")
	}
	return price, nil
}

func (a *Adapter) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	client, err := a.withClient()
	if err != nil {
		return 0, err
	}
	n, err := client.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, errs.Wrap(errs.RpcError, "evm.GetTransactionCount", err, "nonce query failed")
	}
	return n, nil
}
