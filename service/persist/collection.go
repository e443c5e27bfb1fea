package persist

import (
	"time"

	"github.com/shopspring/decimal"
)

type CollectionType string

const (
	CollectionTypeERC721  CollectionType = "ERC721"
	CollectionTypeERC1155 CollectionType = "ERC1155"
	CollectionTypeTezosMT CollectionType = "TEZOS_MT"
	CollectionTypeFlow    CollectionType = "FLOW"
	CollectionTypeSolana  CollectionType = "SOLANA"
)

// Item is a single token as reported by its chain's indexer
type Item struct {
	ID            ItemID          `json:"id"`
	Collection    *CollectionID   `json:"collection,omitempty"`
	Creators      []Address       `json:"creators,omitempty"`
	Supply        decimal.Decimal `json:"supply"`
	LazySupply    decimal.Decimal `json:"lazySupply"`
	Deleted       bool            `json:"deleted"`
	MintedAt      time.Time       `json:"mintedAt"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`
}

// Ownership is the balance one address holds of one item
type Ownership struct {
	ID            OwnershipID     `json:"id"`
	Collection    *CollectionID   `json:"collection,omitempty"`
	Creators      []Address       `json:"creators,omitempty"`
	Value         decimal.Decimal `json:"value"`
	LazyValue     decimal.Decimal `json:"lazyValue"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`
}

func (o Ownership) Owner() Address {
	return o.ID.Owner
}

func (o Ownership) ItemID() ItemID {
	return o.ID.ItemID()
}

// Collection is a contract (or chain equivalent) grouping items
type Collection struct {
	ID            CollectionID   `json:"id"`
	Type          CollectionType `json:"type"`
	Name          string         `json:"name"`
	Symbol        string         `json:"symbol,omitempty"`
	Owner         *Address       `json:"owner,omitempty"`
	Features      []string       `json:"features,omitempty"`
	LastUpdatedAt time.Time      `json:"lastUpdatedAt"`
}
