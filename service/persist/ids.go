package persist

import (
	"fmt"
	"math/big"
	"strings"
)

// ItemID identifies a single token: (chain, contract, tokenId)
type ItemID struct {
	Chain    Chain
	Contract Address
	TokenID  string
}

// OwnershipID identifies the balance of one owner for one item
type OwnershipID struct {
	Chain    Chain
	Contract Address
	TokenID  string
	Owner    Address
}

// CollectionID identifies a collection (usually a contract)
type CollectionID struct {
	Chain   Chain
	Address Address
}

// OrderID identifies an order by its chain-native hash or id
type OrderID struct {
	Chain Chain
	Hash  string
}

// AuctionID identifies an auction by its chain-native hash
type AuctionID struct {
	Chain Chain
	Hash  string
}

// ActivityID identifies an activity by its chain-native id
type ActivityID struct {
	Chain Chain
	Value string
}

func NewItemID(chain Chain, contract, tokenID string) (ItemID, error) {
	addr, err := NormalizeAddress(chain, contract)
	if err != nil {
		return ItemID{}, err
	}
	tid, err := normalizeTokenID(tokenID)
	if err != nil {
		return ItemID{}, err
	}
	return ItemID{Chain: chain, Contract: addr, TokenID: tid}, nil
}

func (i ItemID) String() string {
	return fmt.Sprintf("%s:%s:%s", i.Chain, i.Contract, i.TokenID)
}

// NativeID is the id without the chain prefix, as understood by the chain's backend
func (i ItemID) NativeID() string {
	return fmt.Sprintf("%s:%s", i.Contract, i.TokenID)
}

// OwnershipOf returns the id of the given owner's ownership of this item
func (i ItemID) OwnershipOf(owner Address) OwnershipID {
	return OwnershipID{Chain: i.Chain, Contract: i.Contract, TokenID: i.TokenID, Owner: owner}
}

func (i ItemID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ItemID) UnmarshalText(b []byte) error {
	id, err := ParseItemID(string(b))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// ParseItemID parses a full item id: CHAIN:contract:tokenId
func ParseItemID(s string) (ItemID, error) {
	chain, parts, err := splitFullID("itemId", s, 2)
	if err != nil {
		return ItemID{}, err
	}
	return NewItemID(chain, parts[0], parts[1])
}

func (o OwnershipID) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", o.Chain, o.Contract, o.TokenID, o.Owner)
}

func (o OwnershipID) NativeID() string {
	return fmt.Sprintf("%s:%s:%s", o.Contract, o.TokenID, o.Owner)
}

func (o OwnershipID) ItemID() ItemID {
	return ItemID{Chain: o.Chain, Contract: o.Contract, TokenID: o.TokenID}
}

func (o OwnershipID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *OwnershipID) UnmarshalText(b []byte) error {
	id, err := ParseOwnershipID(string(b))
	if err != nil {
		return err
	}
	*o = id
	return nil
}

// ParseOwnershipID parses a full ownership id: CHAIN:contract:tokenId:owner
func ParseOwnershipID(s string) (OwnershipID, error) {
	chain, parts, err := splitFullID("ownershipId", s, 3)
	if err != nil {
		return OwnershipID{}, err
	}
	item, err := NewItemID(chain, parts[0], parts[1])
	if err != nil {
		return OwnershipID{}, err
	}
	owner, err := NormalizeAddress(chain, parts[2])
	if err != nil {
		return OwnershipID{}, err
	}
	return item.OwnershipOf(owner), nil
}

func (c CollectionID) String() string {
	return fmt.Sprintf("%s:%s", c.Chain, c.Address)
}

func (c CollectionID) NativeID() string {
	return c.Address.String()
}

func (c CollectionID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CollectionID) UnmarshalText(b []byte) error {
	id, err := ParseCollectionID(string(b))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ParseCollectionID parses a full collection id: CHAIN:address
func ParseCollectionID(s string) (CollectionID, error) {
	chain, parts, err := splitFullID("collectionId", s, 1)
	if err != nil {
		return CollectionID{}, err
	}
	addr, err := NormalizeAddress(chain, parts[0])
	if err != nil {
		return CollectionID{}, err
	}
	return CollectionID{Chain: chain, Address: addr}, nil
}

func (o OrderID) String() string {
	return fmt.Sprintf("%s:%s", o.Chain, o.Hash)
}

func (o OrderID) NativeID() string {
	return o.Hash
}

func (o OrderID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *OrderID) UnmarshalText(b []byte) error {
	id, err := ParseOrderID(string(b))
	if err != nil {
		return err
	}
	*o = id
	return nil
}

// ParseOrderID parses a full order id: CHAIN:hash
func ParseOrderID(s string) (OrderID, error) {
	chain, parts, err := splitFullID("orderId", s, 1)
	if err != nil {
		return OrderID{}, err
	}
	return OrderID{Chain: chain, Hash: strings.ToLower(parts[0])}, nil
}

func (a AuctionID) String() string {
	return fmt.Sprintf("%s:%s", a.Chain, a.Hash)
}

func (a AuctionID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AuctionID) UnmarshalText(b []byte) error {
	chain, parts, err := splitFullID("auctionId", string(b), 1)
	if err != nil {
		return err
	}
	*a = AuctionID{Chain: chain, Hash: strings.ToLower(parts[0])}
	return nil
}

func (a ActivityID) String() string {
	return fmt.Sprintf("%s:%s", a.Chain, a.Value)
}

func (a ActivityID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *ActivityID) UnmarshalText(b []byte) error {
	id, err := ParseActivityID(string(b))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// ParseActivityID parses a full activity id: CHAIN:value
func ParseActivityID(s string) (ActivityID, error) {
	chain, parts, err := splitFullID("activityId", s, 1)
	if err != nil {
		return ActivityID{}, err
	}
	return ActivityID{Chain: chain, Value: parts[0]}, nil
}

// splitFullID splits CHAIN:part1:...:partN, requiring exactly n non-empty parts after the chain.
func splitFullID(param string, s string, n int) (Chain, []string, error) {
	invalid := ErrInvalidInput{Parameter: param, Reason: fmt.Sprintf("malformed id '%s'", s)}

	chainPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return "", nil, invalid
	}
	chain, err := ParseChain(chainPart)
	if err != nil {
		return "", nil, err
	}

	parts := strings.SplitN(rest, ":", n)
	if len(parts) != n {
		return "", nil, invalid
	}
	for _, p := range parts {
		if p == "" {
			return "", nil, invalid
		}
	}
	return chain, parts, nil
}

func normalizeTokenID(s string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return "", ErrInvalidInput{Parameter: "tokenId", Reason: fmt.Sprintf("'%s' is not a valid token id", s)}
	}
	return n.String(), nil
}
