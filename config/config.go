package config

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"otcd/native/otc"
	"otcd/native/token"
)

// GenesisAllocation seeds one account balance for a configured asset.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// TokenConfig declares one ledger asset the daemon serves, optionally
// with genesis balances minted on first boot.
type TokenConfig struct {
	Symbol  string              `toml:"Symbol"`
	Genesis []GenesisAllocation `toml:"Genesis,omitempty"`
}

type Config struct {
	RPCAddress   string        `toml:"RPCAddress"`
	DataDir      string        `toml:"DataDir"`
	Env          string        `toml:"Env"`
	Owner        string        `toml:"Owner"`
	FeeBps       uint32        `toml:"FeeBps"`
	EventLogSize int           `toml:"EventLogSize"`
	Tokens       []TokenConfig `toml:"Tokens,omitempty"`
}

// Load loads the configuration from the given path, creating a default
// file on first run. An empty DataDir selects the in-memory database.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RPCAddress == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if c.FeeBps > otc.MaxFeeBps {
		return fmt.Errorf("FeeBps %d exceeds maximum %d", c.FeeBps, otc.MaxFeeBps)
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, tok := range c.Tokens {
		symbol, err := token.NormalizeSymbol(tok.Symbol)
		if err != nil {
			return err
		}
		if seen[symbol] {
			return fmt.Errorf("duplicate token symbol %s", symbol)
		}
		seen[symbol] = true
		for _, alloc := range tok.Genesis {
			if _, err := otc.ParseAddress(alloc.Address); err != nil {
				return fmt.Errorf("token %s genesis: %w", symbol, err)
			}
			amount, ok := new(big.Int).SetString(alloc.Amount, 10)
			if !ok || amount.Sign() <= 0 {
				return fmt.Errorf("token %s genesis: invalid amount %q", symbol, alloc.Amount)
			}
		}
	}
	return nil
}

// OwnerAddress decodes the configured owner account.
func (c *Config) OwnerAddress() ([20]byte, error) {
	addr, err := otc.ParseAddress(c.Owner)
	if err != nil {
		return addr, fmt.Errorf("Owner: %w", err)
	}
	return addr, nil
}

// createDefault creates and saves a default configuration file with a
// freshly generated owner address.
func createDefault(path string) (*Config, error) {
	var owner [20]byte
	if _, err := io.ReadFull(rand.Reader, owner[:]); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:   ":8080",
		DataDir:      "./otc-data",
		Env:          "local",
		Owner:        otc.FormatAddress(owner),
		FeeBps:       50,
		EventLogSize: 4096,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
