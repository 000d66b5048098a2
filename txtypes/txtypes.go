// Package txtypes holds the data model shared by every Routing Core
// component: the immutable transaction identity, its per-side mutable
// state, and the auction request/bid pair exchanged with users.
package txtypes

import (
	"math/big"
	"time"

	"github.com/meshbridge/router-node/chainid"
)

// TIX is the immutable identity of a cross-chain swap, shared by both
// the sender-side and receiver-side TransactionRecord.
type TIX struct {
	TransactionID                 string
	User                          string
	Router                        string
	Initiator                     string
	SendingChainID                chainid.ID
	SendingAssetID                string
	ReceivingChainID              chainid.ID
	ReceivingAssetID              string
	SendingChainTxManagerAddress  string
	ReceivingChainTxManagerAddress string
	CallTo                        string
	CallDataHash                  string
	ReceivingAddress              string
}

// Key identifies the lifecycle object this TIX belongs to: one state
// machine per (transactionId, user).
func (t TIX) Key() string { return t.TransactionID + ":" + t.User }

// Variant is one side's mutable portion of a transaction.
type Variant struct {
	Amount              *big.Int
	Expiry              time.Time
	PreparedBlockNumber uint64
	PreparedAt          time.Time
}

// Status is the on-chain state a TransactionRecord has reached.
type Status string

const (
	StatusPrepared  Status = "Prepared"
	StatusFulfilled Status = "Fulfilled"
	StatusCancelled Status = "Cancelled"
)

// Record is one side's (sender's or receiver's) view of a transaction,
// as reported by that chain's indexer.
type Record struct {
	TIX     TIX
	Variant Variant
	Status  Status
	ChainID chainid.ID
}

// AuctionRequest is the inbound, user-supplied bid request.
type AuctionRequest struct {
	TIX
	Amount            *big.Int
	Expiry            time.Time
	EncryptedCallData string
	DryRun            bool
}

// Bid is the router's signed response to an AuctionRequest.
type Bid struct {
	AuctionRequest
	Router            string
	AmountReceived    *big.Int
	GasFeeInReceiving *big.Int
	BidExpiry         time.Time
	Signature         []byte
}

// SwapPoolAsset is one entry in a SwapPool.
type SwapPoolAsset struct {
	Chain    chainid.ID
	AssetID  string
	Weight   *big.Int
	Decimals uint8
}

// SwapPool is a set of assets across chains that swap against each
// other through a single AMM curve.
type SwapPool struct {
	Name   string
	Assets []SwapPoolAsset
}

// IndexOf returns the position of (chain, assetID) within the pool,
// or -1 if absent.
func (p SwapPool) IndexOf(chain chainid.ID, assetID string) int {
	for i, a := range p.Assets {
		if a.Chain == chain && a.AssetID == assetID {
			return i
		}
	}
	return -1
}

// ChainConfig is the per-chain operating configuration (§6.5).
type ChainConfig struct {
	ChainID                   chainid.ID
	Providers                 []string
	Confirmations             uint64
	MinGas                    *big.Int
	TransactionManagerAddress string
	GasStations               []string
	RouterContractRelayerAsset string // optional; empty means none configured
}

// RateLimiterKey identifies one (user, asset pair, chain pair) rate
// limiter bucket. Deliberately excludes amount (§9 open question (a)):
// the limiter throttles request frequency, not value, so a user
// can't bypass the limit by varying amount between attempts.
type RateLimiterKey struct {
	User             string
	SendingAssetID   string
	SendingChainID   chainid.ID
	ReceivingAssetID string
	ReceivingChainID chainid.ID
}

// SyncRecord reports one indexer's view of a chain's sync state.
type SyncRecord struct {
	Synced       bool
	LatestBlock  uint64
	SyncedBlock  uint64
	Lag          uint64
	URI          string
}

// EventKind enumerates the TransactionEvent variants the tracker
// delivers to subscribers.
type EventKind string

const (
	EventSenderPrepared    EventKind = "SenderPrepared"
	EventReceiverPrepared  EventKind = "ReceiverPrepared"
	EventSenderFulfilled   EventKind = "SenderFulfilled"
	EventReceiverFulfilled EventKind = "ReceiverFulfilled"
	EventSenderCancelled   EventKind = "SenderCancelled"
	EventReceiverCancelled EventKind = "ReceiverCancelled"
)

// TransactionEvent is delivered by the tracker whenever a new record
// appears in an indexer's result set.
type TransactionEvent struct {
	Kind   EventKind
	Record Record
}

// ActionKind is the on-chain action the dispatcher submits.
type ActionKind string

const (
	ActionPrepare ActionKind = "prepare"
	ActionFulfill ActionKind = "fulfill"
	ActionCancel  ActionKind = "cancel"
)

// Action is a lifecycle-issued instruction to submit a transaction on
// a specific chain.
type Action struct {
	ChainID chainid.ID
	Kind    ActionKind
	Payload map[string]any
}
