package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/txtypes"
)

// auctionSubject and preimageSubject match §6.1's named subjects.
const (
	auctionSubject  = "auction.new_auction"
	preimageSubject = "metatx.preimage"
)

// AuctionEvaluator is the narrow surface AuctionServer needs from
// evaluator.Evaluator, kept here instead of importing the evaluator
// package directly to avoid a messaging<->evaluator import cycle.
type AuctionEvaluator interface {
	Evaluate(ctx context.Context, req txtypes.AuctionRequest) (*txtypes.Bid, error)
}

// auctionReply is the §6.1 reply payload shape.
type auctionReply struct {
	Bid                    *txtypes.Bid `json:"bid,omitempty"`
	BidSignature           []byte       `json:"bidSignature,omitempty"`
	GasFeeInReceivingToken string       `json:"gasFeeInReceivingToken,omitempty"`
	Error                  *replyError  `json:"error,omitempty"`
}

type replyError struct {
	Kind    errs.Kind      `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// AuctionServer subscribes to the auction subject and evaluates every
// incoming AuctionRequest, replying with a signed bid or a structured
// error (§6.1).
type AuctionServer struct {
	transport Transport
	evaluator AuctionEvaluator
}

// NewAuctionServer builds a server bound to transport and evaluator.
func NewAuctionServer(transport Transport, evaluator AuctionEvaluator) *AuctionServer {
	return &AuctionServer{transport: transport, evaluator: evaluator}
}

// Start subscribes the auction handler; call the returned function to
// unsubscribe on shutdown.
func (s *AuctionServer) Start() (func(), error) {
	return s.transport.Subscribe(auctionSubject, s.handle)
}

func (s *AuctionServer) handle(ctx context.Context, msg Message) ([]byte, error) {
	var req txtypes.AuctionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return encodeError(errs.New(errs.ParamsInvalid, "AuctionServer.handle", "malformed auction request"))
	}

	bid, err := s.evaluator.Evaluate(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("txId", req.TransactionID).Msg("auction evaluation rejected")
		if routerErr, ok := err.(*errs.RouterError); ok {
			return encodeError(routerErr)
		}
		return encodeError(errs.Wrap(errs.RpcError, "AuctionServer.handle", err, "evaluation failed"))
	}

	reply := auctionReply{Bid: bid, BidSignature: bid.Signature}
	if bid.GasFeeInReceiving != nil {
		reply.GasFeeInReceivingToken = bid.GasFeeInReceiving.String()
	}
	return json.Marshal(reply)
}

func encodeError(err *errs.RouterError) ([]byte, error) {
	return json.Marshal(auctionReply{Error: &replyError{
		Kind:    err.Kind,
		Message: err.Message,
		Context: err.Context,
	}})
}

// PreimageRelay is the narrow surface PreimageListener needs from
// lifecycle.Registry.
type PreimageRelay interface {
	OnPreimage(ctx context.Context, tix txtypes.TIX, preimage []byte)
}

// preimagePayload is the wire shape of a user-revealed preimage
// relayed over the metatx.> subject.
type preimagePayload struct {
	TIX      txtypes.TIX `json:"tix"`
	Preimage []byte      `json:"preimage"`
}

// PreimageListener subscribes to the preimage subject and forwards
// every revealed preimage into the lifecycle state machine
// (§4.E "BothPrepared -> ReceiverFulfilled on user-supplied preimage
// relayed via messaging").
type PreimageListener struct {
	transport Transport
	relay     PreimageRelay
}

// NewPreimageListener builds a listener bound to transport and relay.
func NewPreimageListener(transport Transport, relay PreimageRelay) *PreimageListener {
	return &PreimageListener{transport: transport, relay: relay}
}

// Start subscribes the preimage handler.
func (l *PreimageListener) Start() (func(), error) {
	return l.transport.Subscribe(preimageSubject, l.handle)
}

func (l *PreimageListener) handle(ctx context.Context, msg Message) ([]byte, error) {
	var payload preimagePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return nil, errs.New(errs.ParamsInvalid, "PreimageListener.handle", "malformed preimage payload")
	}
	l.relay.OnPreimage(ctx, payload.TIX, payload.Preimage)
	return nil, nil
}
