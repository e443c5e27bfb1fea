package persist

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Chain represents an independently indexed blockchain
type Chain string

const (
	ChainEthereum Chain = "ETHEREUM"
	ChainPolygon  Chain = "POLYGON"
	ChainTezos    Chain = "TEZOS"
	ChainFlow     Chain = "FLOW"
	ChainSolana   Chain = "SOLANA"
)

// AllChains is every chain the service knows about, in declaration order
var AllChains = []Chain{ChainEthereum, ChainPolygon, ChainTezos, ChainFlow, ChainSolana}

// ParseChain parses a chain name case-insensitively
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidInput{Parameter: "chain", Reason: fmt.Sprintf("unknown chain '%s'", s)}
	}
	return c, nil
}

// ParseChains parses a list of chain names, dropping duplicates
func ParseChains(ss []string) ([]Chain, error) {
	var chains []Chain
	seen := map[Chain]bool{}
	for _, s := range ss {
		c, err := ParseChain(s)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			chains = append(chains, c)
		}
	}
	return chains, nil
}

func (c Chain) IsValid() bool {
	for _, it := range AllChains {
		if it == c {
			return true
		}
	}
	return false
}

// IsEVM reports whether the chain uses Ethereum style hex addresses
func (c Chain) IsEVM() bool {
	return c == ChainEthereum || c == ChainPolygon
}

func (c Chain) String() string {
	return string(c)
}

// Value implements the driver.Valuer interface for the Chain type
func (c Chain) Value() (driver.Value, error) {
	return string(c), nil
}

// Scan implements the sql.Scanner interface for the Chain type
func (c *Chain) Scan(src interface{}) error {
	if src == nil {
		*c = Chain("")
		return nil
	}
	switch v := src.(type) {
	case string:
		*c = Chain(v)
	case []byte:
		*c = Chain(v)
	default:
		return fmt.Errorf("cannot scan %T into Chain", src)
	}
	return nil
}
