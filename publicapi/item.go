package publicapi

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/auction"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/validate"
)

// EnrichedItem is an item with its best orders
type EnrichedItem struct {
	persist.Item
	enrichment.Enrichment
}

type ItemAPI struct {
	router    *multichain.Router
	enricher  *enricher
	overlay   *auction.Overlay
	validator *validator.Validate
}

// ListAcrossChains lists items of every requested chain, concatenated in chain order
func (api ItemAPI) ListAcrossChains(ctx context.Context, params ListParams) (Page[EnrichedItem], error) {
	requested, size, err := params.resolve(api.validator)
	if err != nil {
		return Page[EnrichedItem]{}, err
	}

	chains := chainsFor(api.router, multichain.KindItem, requested)
	result, err := multichain.ListPage(ctx, chains, params.Continuation, size, listFrom(api.router.Items))
	if err != nil {
		return Page[EnrichedItem]{}, err
	}

	items, err := api.enrich(ctx, result.Entities)
	if err != nil {
		return Page[EnrichedItem]{}, err
	}
	return pageOf(result, items), nil
}

func (api ItemAPI) GetEnrichedByID(ctx context.Context, itemID string) (EnrichedItem, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"itemID": validate.WithTag(itemID, "required"),
	}); err != nil {
		return EnrichedItem{}, err
	}

	id, err := persist.ParseItemID(itemID)
	if err != nil {
		return EnrichedItem{}, err
	}

	items, err := api.getByIDs(ctx, []persist.ItemID{id})
	if err != nil {
		return EnrichedItem{}, err
	}
	if len(items) == 0 {
		return EnrichedItem{}, notFound(multichain.KindItem, id)
	}
	return items[0], nil
}

// GetEnrichedByIDs returns the items that resolve, in request order
func (api ItemAPI) GetEnrichedByIDs(ctx context.Context, itemIDs []string) ([]EnrichedItem, error) {
	if err := validateIDs(api.validator, itemIDs); err != nil {
		return nil, err
	}

	ids, err := parseIDs(itemIDs, persist.ParseItemID)
	if err != nil {
		return nil, err
	}
	return api.getByIDs(ctx, ids)
}

func (api ItemAPI) getByIDs(ctx context.Context, ids []persist.ItemID) ([]EnrichedItem, error) {
	items, err := getByIDs(ctx, api.router.Items, ids,
		func(id persist.ItemID) persist.Chain { return id.Chain },
		func(i persist.Item) persist.ItemID { return i.ID },
		"getItemsByIds",
	)
	if err != nil {
		return nil, err
	}
	return api.enrich(ctx, items)
}

// ListOwnerships lists the ownerships of an item, newest first, showing auctioned units under their seller
func (api ItemAPI) ListOwnerships(ctx context.Context, itemID string, continuation string, size int) (Page[EnrichedOwnership], error) {
	if size == 0 {
		size = defaultPageSize
	}

	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"itemID":       validate.WithTag(itemID, "required"),
		"continuation": validate.WithTag(continuation, "continuation"),
		"size":         validate.WithTag(size, "page_size"),
	}); err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	id, err := persist.ParseItemID(itemID)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}
	if !api.router.IsEnabled(id.Chain) {
		return Page[EnrichedOwnership]{}, persist.ErrInvalidInput{Parameter: "chain", Reason: "chain " + id.Chain.String() + " is not enabled"}
	}

	page, err := api.overlay.ListByItem(ctx, id, continuation, size)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	rows, err := enrichOwnerships(ctx, api.enricher, page.Entities)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	out := Page[EnrichedOwnership]{Entities: rows}
	if page.Continuation != "" {
		out.Continuation = util.ToPointer(page.Continuation)
	}
	return out, nil
}

func (api ItemAPI) enrich(ctx context.Context, items []persist.Item) ([]EnrichedItem, error) {
	keys := util.MapWithoutError(items, func(i persist.Item) enrichment.Key { return enrichment.ItemKey(i.ID) })
	enrichments, err := api.enricher.enrich(ctx, keys)
	if err != nil {
		return nil, err
	}
	return util.MapWithoutError(items, func(i persist.Item) EnrichedItem {
		return EnrichedItem{Item: i, Enrichment: enrichments[enrichment.ItemKey(i.ID)]}
	}), nil
}
