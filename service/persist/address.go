package persist

import (
	"fmt"
	"regexp"
	"strings"

	"blockwatch.cc/tzgo/tezos"
	"github.com/ethereum/go-ethereum/common"
)

// Address is a chain-specific account or contract address in its normalized form
type Address string

var (
	flowAddressRegex   = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{16}$`)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

func (a Address) String() string {
	return string(a)
}

// NormalizeAddress validates an address for the given chain and returns it in canonical form.
func NormalizeAddress(chain Chain, raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	invalid := ErrInvalidInput{Parameter: "address", Reason: fmt.Sprintf("'%s' is not a valid %s address", raw, chain)}

	switch {
	case chain.IsEVM():
		if !common.IsHexAddress(raw) {
			return "", invalid
		}
		return Address(strings.ToLower(common.HexToAddress(raw).Hex())), nil
	case chain == ChainTezos:
		addr, err := tezos.ParseAddress(raw)
		if err != nil {
			return "", invalid
		}
		return Address(addr.String()), nil
	case chain == ChainFlow:
		if !flowAddressRegex.MatchString(raw) {
			return "", invalid
		}
		return Address("0x" + strings.ToLower(strings.TrimPrefix(raw, "0x"))), nil
	case chain == ChainSolana:
		if !solanaAddressRegex.MatchString(raw) {
			return "", invalid
		}
		return Address(raw), nil
	}

	return "", ErrInvalidInput{Parameter: "chain", Reason: fmt.Sprintf("unknown chain '%s'", chain)}
}

// MustNormalizeAddress is NormalizeAddress for static values that are known to be valid
func MustNormalizeAddress(chain Chain, raw string) Address {
	addr, err := NormalizeAddress(chain, raw)
	if err != nil {
		panic(err)
	}
	return addr
}
