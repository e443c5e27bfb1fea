package publicapi

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/validate"
)

type ActivityAPI struct {
	router    *multichain.Router
	validator *validator.Validate
}

var activitySlice = multichain.SliceOptions[persist.Activity]{
	Less:     func(a, b persist.Activity) bool { return a.Cursor().Compare(b.Cursor()) > 0 },
	CursorOf: func(a persist.Activity) string { return a.Cursor().String() },
}

// ListAcrossChains lists activities of every requested chain, newest first. Each chain's backend must
// list its activities newest first with a date and id cursor.
func (api ActivityAPI) ListAcrossChains(ctx context.Context, params ListParams) (Page[persist.Activity], error) {
	requested, size, err := params.resolve(api.validator)
	if err != nil {
		return Page[persist.Activity]{}, err
	}

	chains := chainsFor(api.router, multichain.KindActivity, requested)
	result, err := multichain.ListSlice(ctx, chains, params.Continuation, size, listFrom(api.router.Activities), activitySlice)
	if err != nil {
		return Page[persist.Activity]{}, err
	}
	return pageOf(result, result.Entities), nil
}

func (api ActivityAPI) GetByID(ctx context.Context, activityID string) (persist.Activity, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"activityID": validate.WithTag(activityID, "required"),
	}); err != nil {
		return persist.Activity{}, err
	}

	id, err := persist.ParseActivityID(activityID)
	if err != nil {
		return persist.Activity{}, err
	}

	activities, err := api.getByIDs(ctx, []persist.ActivityID{id})
	if err != nil {
		return persist.Activity{}, err
	}
	if len(activities) == 0 {
		return persist.Activity{}, notFound(multichain.KindActivity, id)
	}
	return activities[0], nil
}

func (api ActivityAPI) GetByIDs(ctx context.Context, activityIDs []string) ([]persist.Activity, error) {
	if err := validateIDs(api.validator, activityIDs); err != nil {
		return nil, err
	}

	ids, err := parseIDs(activityIDs, persist.ParseActivityID)
	if err != nil {
		return nil, err
	}
	return api.getByIDs(ctx, ids)
}

func (api ActivityAPI) getByIDs(ctx context.Context, ids []persist.ActivityID) ([]persist.Activity, error) {
	return getByIDs(ctx, api.router.Activities, ids,
		func(id persist.ActivityID) persist.Chain { return id.Chain },
		func(a persist.Activity) persist.ActivityID { return a.ID },
		"getActivitiesByIds",
	)
}
