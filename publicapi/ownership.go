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

// EnrichedOwnership is an ownership as clients see it, with its best sell orders.
// Disguised rows carry the enrichment of the seller's ownership.
type EnrichedOwnership struct {
	auction.Ownership
	enrichment.Enrichment
}

type OwnershipAPI struct {
	router    *multichain.Router
	enricher  *enricher
	overlay   *auction.Overlay
	validator *validator.Validate
}

func (api OwnershipAPI) ListAcrossChains(ctx context.Context, params ListParams) (Page[EnrichedOwnership], error) {
	requested, size, err := params.resolve(api.validator)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	chains := chainsFor(api.router, multichain.KindOwnership, requested)
	result, err := multichain.ListPage(ctx, chains, params.Continuation, size, listFrom(api.router.Ownerships))
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	rows, err := api.overlay.Apply(ctx, result.Entities)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}

	enriched, err := enrichOwnerships(ctx, api.enricher, rows)
	if err != nil {
		return Page[EnrichedOwnership]{}, err
	}
	return pageOf(result, enriched), nil
}

func (api OwnershipAPI) GetEnrichedByID(ctx context.Context, ownershipID string) (EnrichedOwnership, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"ownershipID": validate.WithTag(ownershipID, "required"),
	}); err != nil {
		return EnrichedOwnership{}, err
	}

	id, err := persist.ParseOwnershipID(ownershipID)
	if err != nil {
		return EnrichedOwnership{}, err
	}
	if !api.router.IsEnabled(id.Chain) {
		return EnrichedOwnership{}, notFound(multichain.KindOwnership, id)
	}

	row, err := api.overlay.Get(ctx, id)
	if err != nil {
		return EnrichedOwnership{}, err
	}

	enriched, err := enrichOwnerships(ctx, api.enricher, []auction.Ownership{row})
	if err != nil {
		return EnrichedOwnership{}, err
	}
	return enriched[0], nil
}

// GetEnrichedByIDs resolves every id through the auction overlay and omits the ones that do not resolve
func (api OwnershipAPI) GetEnrichedByIDs(ctx context.Context, ownershipIDs []string) ([]EnrichedOwnership, error) {
	if err := validateIDs(api.validator, ownershipIDs); err != nil {
		return nil, err
	}

	ids, err := parseIDs(ownershipIDs, persist.ParseOwnershipID)
	if err != nil {
		return nil, err
	}
	ids = util.Filter(util.Dedupe(ids, false), func(id persist.OwnershipID) bool { return api.router.IsEnabled(id.Chain) })

	type lookup struct {
		row   auction.Ownership
		found bool
	}
	lookups, err := multichain.ParallelMap(ctx, ids, func(ctx context.Context, id persist.OwnershipID) (lookup, error) {
		row, err := api.overlay.Get(ctx, id)
		if util.ErrorAs[persist.ErrNotFound](err) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{row: row, found: true}, nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]auction.Ownership, 0, len(lookups))
	for _, l := range lookups {
		if l.found {
			rows = append(rows, l.row)
		}
	}
	return enrichOwnerships(ctx, api.enricher, rows)
}

func enrichOwnerships(ctx context.Context, e *enricher, rows []auction.Ownership) ([]EnrichedOwnership, error) {
	keys := util.MapWithoutError(rows, func(o auction.Ownership) enrichment.Key { return enrichment.OwnershipKey(o.ID) })
	enrichments, err := e.enrich(ctx, keys)
	if err != nil {
		return nil, err
	}
	return util.MapWithoutError(rows, func(o auction.Ownership) EnrichedOwnership {
		return EnrichedOwnership{Ownership: o, Enrichment: enrichments[enrichment.OwnershipKey(o.ID)]}
	}), nil
}
