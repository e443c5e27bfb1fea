// Package auction shows auctioned ownerships under their real seller instead of the escrow contract holding them.
package auction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
)

// Ownership is an ownership as shown to clients. Auction is set when some of the units are in a
// running auction; Disguised is set when the row stands in for an escrow-held ownership.
type Ownership struct {
	persist.Ownership
	Auction   *persist.Auction `json:"auction,omitempty"`
	Disguised bool             `json:"disguised,omitempty"`
}

func (o Ownership) Cursor() persist.DateIDContinuation {
	return persist.DateIDContinuation{Date: o.CreatedAt, ID: o.ID.String()}
}

// EscrowContracts are the auction escrow contracts of each chain
type EscrowContracts map[persist.Chain][]persist.Address

// ParseEscrowContracts parses CHAIN:address pairs separated by commas
func ParseEscrowContracts(s string) (EscrowContracts, error) {
	out := EscrowContracts{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		chainPart, addr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, persist.ErrInvalidInput{Parameter: "auctionContracts", Reason: fmt.Sprintf("'%s' is not CHAIN:address", pair)}
		}
		chain, err := persist.ParseChain(chainPart)
		if err != nil {
			return nil, err
		}
		normalized, err := persist.NormalizeAddress(chain, addr)
		if err != nil {
			return nil, err
		}
		out[chain] = append(out[chain], normalized)
	}
	return out, nil
}

// Overlay rewrites ownerships held by auction escrow contracts
type Overlay struct {
	router  *multichain.Router
	escrows map[persist.Chain]map[persist.Address]bool
}

func NewOverlay(router *multichain.Router, contracts EscrowContracts) *Overlay {
	escrows := make(map[persist.Chain]map[persist.Address]bool, len(contracts))
	for chain, addrs := range contracts {
		escrows[chain] = make(map[persist.Address]bool, len(addrs))
		for _, a := range addrs {
			escrows[chain][a] = true
		}
	}
	return &Overlay{router: router, escrows: escrows}
}

// IsEscrow reports whether an ownership is held by an auction escrow contract
func (o *Overlay) IsEscrow(id persist.OwnershipID) bool {
	return o.escrows[id.Chain][id.Owner]
}

// activeAuctions returns the running auctions of an item. Chains without auctions have none.
func (o *Overlay) activeAuctions(ctx context.Context, item persist.ItemID) ([]persist.Auction, error) {
	fetcher, err := o.router.Auctions(item.Chain)
	if util.ErrorAs[multichain.ErrNoAdapter](err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	auctions, err := fetcher.ActiveAuctionsByItem(ctx, item)
	if err != nil {
		return nil, persist.ErrUpstream{Chain: item.Chain, Op: "activeAuctionsByItem", Err: err}
	}
	return util.Filter(auctions, func(a persist.Auction) bool { return a.IsActive() }), nil
}

// ownerships looks up ownerships by id, keyed by id. Missing ids are left out.
func (o *Overlay) ownerships(ctx context.Context, chain persist.Chain, ids []persist.OwnershipID) (map[persist.OwnershipID]persist.Ownership, error) {
	out := make(map[persist.OwnershipID]persist.Ownership, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	adapter, err := o.router.Ownerships(chain)
	if err != nil {
		return nil, err
	}
	found, err := adapter.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persist.ErrUpstream{Chain: chain, Op: "getOwnershipsByIds", Err: err}
	}
	for _, own := range found {
		out[own.ID] = own
	}
	return out, nil
}

// Get returns the ownership of id as clients see it. A seller with free units gets the auction
// attached to their own ownership; a seller whose units are all in auction gets the escrow
// ownership disguised as theirs.
func (o *Overlay) Get(ctx context.Context, id persist.OwnershipID) (Ownership, error) {
	var auctions []persist.Auction
	var free map[persist.OwnershipID]persist.Ownership

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) (err error) {
		auctions, err = o.activeAuctions(ctx, id.ItemID())
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		free, err = o.ownerships(ctx, id.Chain, []persist.OwnershipID{id})
		return err
	})
	if err := p.Wait(); err != nil {
		return Ownership{}, err
	}

	var auction *persist.Auction
	for i := range auctions {
		if auctions[i].Seller == id.Owner {
			auction = &auctions[i]
			break
		}
	}

	if own, ok := free[id]; ok {
		return Ownership{Ownership: own, Auction: auction}, nil
	}

	if auction == nil {
		return Ownership{}, persist.ErrNotFound{Kind: "ownership", ID: id.String()}
	}

	escrowID := auction.EscrowOwnershipID()
	escrow, err := o.ownerships(ctx, id.Chain, []persist.OwnershipID{escrowID})
	if err != nil {
		return Ownership{}, err
	}
	held, ok := escrow[escrowID]
	if !ok {
		logger.For(ctx).Warnf("auction %s has no escrow ownership %s", auction.ID, escrowID)
		return Ownership{}, persist.ErrNotFound{Kind: "ownership", ID: id.String()}
	}
	return disguise(held, *auction), nil
}

// disguise shows an escrow-held ownership as the seller's
func disguise(escrow persist.Ownership, a persist.Auction) Ownership {
	own := escrow
	own.ID = a.SellerOwnershipID()
	own.Value = a.Value
	own.LazyValue = decimal.Zero
	own.CreatedAt = a.CreatedAt
	if a.LastUpdatedAt.After(own.LastUpdatedAt) {
		own.LastUpdatedAt = a.LastUpdatedAt
	}
	auction := a
	return Ownership{Ownership: own, Auction: &auction, Disguised: true}
}

// synthesize builds a disguised row straight from an auction, for listings that never fetch the escrow row
func synthesize(a persist.Auction) Ownership {
	return disguise(persist.Ownership{LastUpdatedAt: a.LastUpdatedAt}, a)
}

// split separates auctions whose seller kept no free units (full) from those whose seller still
// holds some (partial)
func (o *Overlay) split(ctx context.Context, chain persist.Chain, auctions []persist.Auction) (full, partial []persist.Auction, err error) {
	ids := util.Dedupe(util.MapWithoutError(auctions, func(a persist.Auction) persist.OwnershipID { return a.SellerOwnershipID() }), false)
	free, err := o.ownerships(ctx, chain, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range auctions {
		if _, ok := free[a.SellerOwnershipID()]; ok {
			partial = append(partial, a)
		} else {
			full = append(full, a)
		}
	}
	return full, partial, nil
}

// newestFirst orders rows by date then id, both descending
func newestFirst(rows []Ownership) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Cursor().Compare(rows[j].Cursor()) > 0
	})
}

// ListByItem lists the ownerships of an item, newest first. Escrow rows are replaced by one
// disguised row per fully auctioned seller, and partially auctioned sellers get the auction
// attached to their row. The continuation is a persist.DateIDContinuation.
func (o *Overlay) ListByItem(ctx context.Context, item persist.ItemID, continuation string, size int) (multichain.Page[Ownership], error) {
	fetcher, err := multichain.RouteAs[multichain.OwnershipsByItemFetcher](o.router, multichain.KindOwnership, item.Chain)
	if err != nil {
		return multichain.Page[Ownership]{}, err
	}

	cursor, hasCursor := persist.ParseDateIDContinuation(continuation)
	if !hasCursor {
		continuation = ""
	}

	auctions, err := o.activeAuctions(ctx, item)
	if err != nil {
		return multichain.Page[Ownership]{}, err
	}
	full, partial, err := o.split(ctx, item.Chain, auctions)
	if err != nil {
		return multichain.Page[Ownership]{}, err
	}

	// full auctions still ahead of the cursor; each may take the place of a fetched row
	var pending []Ownership
	for _, a := range full {
		row := synthesize(a)
		if !hasCursor || row.Cursor().After(cursor) {
			pending = append(pending, row)
		}
	}

	page, err := fetcher.ListByItem(ctx, item, continuation, size+len(pending))
	if err != nil {
		return multichain.Page[Ownership]{}, persist.ErrUpstream{Chain: item.Chain, Op: "ownershipsByItem", Err: err}
	}

	bySeller := make(map[persist.Address]persist.Auction, len(partial))
	for _, a := range partial {
		bySeller[a.Seller] = a
	}

	rows := make([]Ownership, 0, len(page.Entities)+len(pending))
	for _, own := range page.Entities {
		if o.IsEscrow(own.ID) {
			continue
		}
		row := Ownership{Ownership: own}
		if a, ok := bySeller[own.Owner()]; ok {
			a := a
			row.Auction = &a
		}
		rows = append(rows, row)
	}

	// Rows older than the last fetched row belong to a later window while the chain has more
	exhausted := page.Continuation == ""
	var boundary persist.DateIDContinuation
	if !exhausted && len(page.Entities) > 0 {
		last := page.Entities[len(page.Entities)-1]
		boundary = persist.DateIDContinuation{Date: last.CreatedAt, ID: last.ID.String()}
	}
	for _, row := range pending {
		if exhausted || !row.Cursor().After(boundary) {
			rows = append(rows, row)
		}
	}

	newestFirst(rows)

	truncated := len(rows) > size
	if truncated {
		rows = rows[:size]
	}

	var next string
	switch {
	case len(rows) == 0:
		next = page.Continuation
	case truncated || !exhausted:
		next = rows[len(rows)-1].Cursor().String()
	}

	return multichain.Page[Ownership]{Entities: rows, Continuation: next}, nil
}

// Apply rewrites a page of ownerships from any listing. Escrow rows of full auctions are disguised,
// escrow rows of partial auctions are dropped and seller rows get their auction attached. Every item
// on a chain with escrow contracts is looked up, so a seller row is matched even when the escrow row
// is on another page.
func (o *Overlay) Apply(ctx context.Context, ownerships []persist.Ownership) ([]Ownership, error) {
	var items []persist.ItemID
	seen := map[persist.ItemID]bool{}
	for _, own := range ownerships {
		if len(o.escrows[own.ID.Chain]) > 0 && !seen[own.ItemID()] {
			seen[own.ItemID()] = true
			items = append(items, own.ItemID())
		}
	}

	type itemAuctions struct {
		full, partial []persist.Auction
	}
	lookups, err := multichain.ParallelMap(ctx, items, func(ctx context.Context, item persist.ItemID) (itemAuctions, error) {
		auctions, err := o.activeAuctions(ctx, item)
		if err != nil {
			return itemAuctions{}, err
		}
		full, partial, err := o.split(ctx, item.Chain, auctions)
		return itemAuctions{full: full, partial: partial}, err
	})
	if err != nil {
		return nil, err
	}

	byItem := make(map[persist.ItemID]itemAuctions, len(items))
	sellerAuction := map[persist.OwnershipID]persist.Auction{}
	for i, item := range items {
		byItem[item] = lookups[i]
		for _, a := range lookups[i].partial {
			sellerAuction[a.SellerOwnershipID()] = a
		}
	}

	out := make([]Ownership, 0, len(ownerships))
	for _, own := range ownerships {
		if !o.IsEscrow(own.ID) {
			row := Ownership{Ownership: own}
			if a, ok := sellerAuction[own.ID]; ok {
				a := a
				row.Auction = &a
			}
			out = append(out, row)
			continue
		}
		for _, a := range byItem[own.ItemID()].full {
			if a.Contract == own.Owner() {
				out = append(out, disguise(own, a))
			}
		}
	}
	return out, nil
}
