// Package errs implements the router's flat error taxonomy. Every
// error the Routing Core returns across a component boundary is a
// *RouterError so callers can switch on Kind instead of parsing
// strings.
package errs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kind is one of the error kinds from the taxonomy.
type Kind string

const (
	// Validation
	ParamsInvalid Kind = "ParamsInvalid"
	ZeroValueBid  Kind = "ZeroValueBid"

	// Policy
	AuctionRateExceeded Kind = "AuctionRateExceeded"
	AuctionExpired      Kind = "AuctionExpired"
	PriceImpactTooHigh  Kind = "PriceImpactTooHigh"

	// Resource
	ProvidersNotAvailable Kind = "ProvidersNotAvailable"
	NotEnoughGas          Kind = "NotEnoughGas"
	NotEnoughLiquidity    Kind = "NotEnoughLiquidity"
	NotEnoughAmount       Kind = "NotEnoughAmount"
	ChainNotSupported     Kind = "ChainNotSupported"

	// Sync
	SubgraphNotSynced Kind = "SubgraphNotSynced"

	// Lifecycle
	ReceiverTxExists Kind = "ReceiverTxExists"
	SenderTxTooNew   Kind = "SenderTxTooNew"

	// Transport
	RpcError             Kind = "RpcError"
	ProviderNotConfigured Kind = "ProviderNotConfigured"
	ConfigurationError   Kind = "ConfigurationError"
)

// transportKinds are retried with exponential back-off on the
// lifecycle path (§7 propagation policy); everything else terminates
// the current attempt.
var transportKinds = map[Kind]bool{
	RpcError:              true,
	ProviderNotConfigured: true,
	ConfigurationError:    true,
}

// IsTransport reports whether a Kind belongs to the Transport class
// and should be retried with back-off rather than dropped.
func (k Kind) IsTransport() bool { return transportKinds[k] }

// RequestContext correlates an error with the inbound request that
// triggered it.
type RequestContext struct {
	ID     string
	Origin string
}

// MethodContext names the operation that produced the error.
type MethodContext struct {
	Name string
}

// RouterError is the single error type returned across component
// boundaries. Context carries free-form structured detail (balances,
// elapsed durations, etc.) for logs, metrics, and auction-reply
// payloads.
type RouterError struct {
	Kind    Kind
	Message string
	Context map[string]any
	Request RequestContext
	Method  MethodContext
	cause   error
}

func (e *RouterError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *RouterError) Unwrap() error { return e.cause }

// Cause returns the deepest wrapped error, mirroring
// github.com/pkg/errors.Cause for callers that want the raw RPC/
// subgraph failure behind a Transport-kind RouterError.
func (e *RouterError) Cause() error {
	if e.cause == nil {
		return e
	}
	return errors.Cause(e.cause)
}

// New builds a RouterError of the given kind with a request-scoped
// correlation ID generated if one isn't supplied via WithRequest.
func New(kind Kind, method string, msg string) *RouterError {
	return &RouterError{
		Kind:    kind,
		Message: msg,
		Context: map[string]any{},
		Request: RequestContext{ID: uuid.NewString()},
		Method:  MethodContext{Name: method},
	}
}

// Wrap builds a RouterError of the given kind around an underlying
// error, preserving its stack trace via pkg/errors so back-off retry
// logging can report the real RPC/subgraph failure.
func Wrap(kind Kind, method string, cause error, msg string) *RouterError {
	e := New(kind, method, msg)
	e.cause = errors.Wrap(cause, msg)
	return e
}

// With attaches a context key/value and returns the same error for
// chaining at the call site, e.g. errs.New(...).With("balance", bal).
func (e *RouterError) With(key string, value any) *RouterError {
	e.Context[key] = value
	return e
}

// WithRequest overrides the auto-generated request context.
func (e *RouterError) WithRequest(id, origin string) *RouterError {
	e.Request = RequestContext{ID: id, Origin: origin}
	return e
}

// As reports whether err is a *RouterError of the given kind.
func As(err error, kind Kind) bool {
	re, ok := err.(*RouterError)
	if !ok {
		return false
	}
	return re.Kind == kind
}
