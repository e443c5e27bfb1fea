package persist

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusFinished  AuctionStatus = "FINISHED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// Auction is an on-chain auction. While it runs, the auctioned units are held by the
// escrow Contract and the Seller is the real owner.
type Auction struct {
	ID            AuctionID        `json:"id"`
	Contract      Address          `json:"contract"`
	Seller        Address          `json:"seller"`
	Item          ItemID           `json:"item"`
	Value         decimal.Decimal  `json:"value"`
	Buy           CurrencyID       `json:"buy"`
	MinimalPrice  decimal.Decimal  `json:"minimalPrice"`
	BuyPrice      *decimal.Decimal `json:"buyPrice,omitempty"`
	BuyPriceUsd   *decimal.Decimal `json:"buyPriceUsd,omitempty"`
	Status        AuctionStatus    `json:"status"`
	StartAt       *time.Time       `json:"startAt,omitempty"`
	EndAt         *time.Time       `json:"endAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
}

func (a Auction) IsActive() bool {
	return a.Status == AuctionStatusActive
}

// EscrowOwnershipID is the ownership the escrow contract holds while the auction runs
func (a Auction) EscrowOwnershipID() OwnershipID {
	return a.Item.OwnershipOf(a.Contract)
}

// SellerOwnershipID is the ownership the seller is shown as holding
func (a Auction) SellerOwnershipID() OwnershipID {
	return a.Item.OwnershipOf(a.Seller)
}
