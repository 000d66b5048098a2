package router

import (
	"context"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/config"
	"github.com/meshbridge/router-node/txtypes"
)

// liquidityActionRemove and liquidityActionAdd are dispatcher action
// kinds outside the §4.E prepare/fulfill/cancel set, for the
// admin-triggered liquidity endpoints (SPEC_FULL.md supplemented
// feature #3).
const (
	liquidityActionRemove txtypes.ActionKind = "removeLiquidity"
	liquidityActionAdd    txtypes.ActionKind = "addLiquidityFor"
)

// configProvider adapts config.Config into api.ConfigProvider.
type configProvider struct {
	cfg *config.Config
}

func (c *configProvider) RedactedConfig() any {
	redacted := c.cfg.Redacted()
	return &redacted
}

// actionSubmitter is the narrow surface liquidityController needs
// from the chain dispatcher.
type actionSubmitter interface {
	Submit(ctx context.Context, action txtypes.Action)
}

// liquidityController adapts the chain dispatcher into
// api.LiquidityController. Both operations are fire-and-forget,
// mirroring every other dispatcher submission (§4.E concurrency
// note): the HTTP handler returns 202 Accepted and the action is
// retried/dead-lettered by the dispatcher like any other.
type liquidityController struct {
	dispatcher actionSubmitter
	router     string
}

func (l *liquidityController) RemoveLiquidity(ctx context.Context, chain chainid.ID, assetID string, amount string, recipient string) error {
	l.dispatcher.Submit(ctx, txtypes.Action{
		ChainID: chain,
		Kind:    liquidityActionRemove,
		Payload: map[string]any{
			"assetId":   assetID,
			"amount":    amount,
			"recipient": recipient,
			"router":    l.router,
		},
	})
	return nil
}

func (l *liquidityController) AddLiquidityFor(ctx context.Context, chain chainid.ID, assetID string, amount string, router string) error {
	l.dispatcher.Submit(ctx, txtypes.Action{
		ChainID: chain,
		Kind:    liquidityActionAdd,
		Payload: map[string]any{
			"assetId": assetID,
			"amount":  amount,
			"router":  router,
		},
	})
	return nil
}
