package publicapi

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/validate"
)

// EnrichedCollection is a collection with its best floor and bid orders
type EnrichedCollection struct {
	persist.Collection
	enrichment.Enrichment
}

type CollectionAPI struct {
	router    *multichain.Router
	enricher  *enricher
	validator *validator.Validate
}

func (api CollectionAPI) ListAcrossChains(ctx context.Context, params ListParams) (Page[EnrichedCollection], error) {
	requested, size, err := params.resolve(api.validator)
	if err != nil {
		return Page[EnrichedCollection]{}, err
	}

	chains := chainsFor(api.router, multichain.KindCollection, requested)
	result, err := multichain.ListPage(ctx, chains, params.Continuation, size, listFrom(api.router.Collections))
	if err != nil {
		return Page[EnrichedCollection]{}, err
	}

	collections, err := api.enrich(ctx, result.Entities)
	if err != nil {
		return Page[EnrichedCollection]{}, err
	}
	return pageOf(result, collections), nil
}

func (api CollectionAPI) GetEnrichedByID(ctx context.Context, collectionID string) (EnrichedCollection, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"collectionID": validate.WithTag(collectionID, "required"),
	}); err != nil {
		return EnrichedCollection{}, err
	}

	id, err := persist.ParseCollectionID(collectionID)
	if err != nil {
		return EnrichedCollection{}, err
	}

	collections, err := api.getByIDs(ctx, []persist.CollectionID{id})
	if err != nil {
		return EnrichedCollection{}, err
	}
	if len(collections) == 0 {
		return EnrichedCollection{}, notFound(multichain.KindCollection, id)
	}
	return collections[0], nil
}

func (api CollectionAPI) GetEnrichedByIDs(ctx context.Context, collectionIDs []string) ([]EnrichedCollection, error) {
	if err := validateIDs(api.validator, collectionIDs); err != nil {
		return nil, err
	}

	ids, err := parseIDs(collectionIDs, persist.ParseCollectionID)
	if err != nil {
		return nil, err
	}
	return api.getByIDs(ctx, ids)
}

func (api CollectionAPI) getByIDs(ctx context.Context, ids []persist.CollectionID) ([]EnrichedCollection, error) {
	collections, err := getByIDs(ctx, api.router.Collections, ids,
		func(id persist.CollectionID) persist.Chain { return id.Chain },
		func(c persist.Collection) persist.CollectionID { return c.ID },
		"getCollectionsByIds",
	)
	if err != nil {
		return nil, err
	}
	return api.enrich(ctx, collections)
}

func (api CollectionAPI) enrich(ctx context.Context, collections []persist.Collection) ([]EnrichedCollection, error) {
	keys := util.MapWithoutError(collections, func(c persist.Collection) enrichment.Key { return enrichment.CollectionKey(c.ID) })
	enrichments, err := api.enricher.enrich(ctx, keys)
	if err != nil {
		return nil, err
	}
	return util.MapWithoutError(collections, func(c persist.Collection) EnrichedCollection {
		return EnrichedCollection{Collection: c, Enrichment: enrichments[enrichment.CollectionKey(c.ID)]}
	}), nil
}
