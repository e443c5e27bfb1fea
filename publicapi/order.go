package publicapi

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/order"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/validate"
)

type OrderAPI struct {
	router    *multichain.Router
	resolver  *order.Resolver
	validator *validator.Validate
}

func (api OrderAPI) ListAcrossChains(ctx context.Context, params ListParams) (Page[persist.Order], error) {
	requested, size, err := params.resolve(api.validator)
	if err != nil {
		return Page[persist.Order]{}, err
	}

	chains := chainsFor(api.router, multichain.KindOrder, requested)
	result, err := multichain.ListPage(ctx, chains, params.Continuation, size, listFrom(api.router.Orders))
	if err != nil {
		return Page[persist.Order]{}, err
	}
	return pageOf(result, result.Entities), nil
}

func (api OrderAPI) GetByID(ctx context.Context, orderID string) (persist.Order, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"orderID": validate.WithTag(orderID, "required"),
	}); err != nil {
		return persist.Order{}, err
	}

	id, err := persist.ParseOrderID(orderID)
	if err != nil {
		return persist.Order{}, err
	}
	return api.resolver.GetByID(ctx, id)
}

// GetByIDs returns the orders that resolve, in request order
func (api OrderAPI) GetByIDs(ctx context.Context, orderIDs []string) ([]persist.Order, error) {
	if err := validateIDs(api.validator, orderIDs); err != nil {
		return nil, err
	}

	ids, err := parseIDs(orderIDs, persist.ParseOrderID)
	if err != nil {
		return nil, err
	}

	found, err := api.resolver.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]persist.Order, 0, len(found))
	seen := make(map[persist.OrderID]bool, len(ids))
	for _, id := range ids {
		if o, ok := found[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, o)
		}
	}
	return out, nil
}
