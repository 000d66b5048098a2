package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

const validConfig = `
mnemonic: "test test test test test test test test test test test junk"
logLevel: debug
requestLimit: 1000
allowedVAMM: true
chainConfig:
  "1":
    chainId: 1
    providers: ["http://rpc1"]
    confirmations: 3
    transactionManagerAddress: "0xabc"
  "2":
    chainId: 2
    providers: ["http://rpc2"]
    confirmations: 3
    transactionManagerAddress: "0xdef"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.ChainConfig) != 2 {
		t.Errorf("expected 2 chains, got %d", len(cfg.ChainConfig))
	}
	if cfg.RequestLimit().Milliseconds() != 1000 {
		t.Errorf("expected 1000ms request limit, got %s", cfg.RequestLimit())
	}
}

func TestLoadRejectsBothMnemonicAndWeb3Signer(t *testing.T) {
	path := writeConfigFile(t, validConfig+"\nweb3SignerUrl: \"http://signer\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when both mnemonic and web3SignerUrl are set")
	}
}

func TestLoadRejectsNeitherMnemonicNorWeb3Signer(t *testing.T) {
	path := writeConfigFile(t, "logLevel: debug\nchainConfig: {}\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when neither mnemonic nor web3SignerUrl is set")
	}
}

func TestLoadRejectsChainWithNoProviders(t *testing.T) {
	path := writeConfigFile(t, `
mnemonic: "test"
chainConfig:
  "1":
    chainId: 1
    transactionManagerAddress: "0xabc"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a chain with no providers")
	}
}

func TestRedactedSuppressesSecrets(t *testing.T) {
	path := writeConfigFile(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	redacted := cfg.Redacted()
	if redacted.Mnemonic == cfg.Mnemonic {
		t.Error("expected Redacted to suppress the mnemonic")
	}
}

func TestBigIntOrDefaultFallsBackOnEmpty(t *testing.T) {
	def := big.NewInt(42)
	if got := bigIntOrDefault("", def); got.Cmp(def) != 0 {
		t.Errorf("expected default %s, got %s", def, got)
	}
	if got := bigIntOrDefault("100", def); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected 100, got %s", got)
	}
	if got := bigIntOrDefault("not-a-number", def); got.Cmp(def) != 0 {
		t.Errorf("expected default on unparseable input, got %s", got)
	}
}
