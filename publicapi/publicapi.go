package publicapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/auction"
	"github.com/mikeydub/go-union/service/continuation"
	"github.com/mikeydub/go-union/service/discrepancy"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/order"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/validate"
)

const apiContextKey = "publicapi.api"

const defaultPageSize = 50

type PublicAPI struct {
	validator  *validator.Validate
	Item       *ItemAPI
	Ownership  *OwnershipAPI
	Collection *CollectionAPI
	Order      *OrderAPI
	Activity   *ActivityAPI
}

// New builds the API over the chain router. detector may be nil, in which case nothing is audited.
func New(router *multichain.Router, store *enrichment.Store, resolver *order.Resolver, overlay *auction.Overlay, detector *discrepancy.Detector) *PublicAPI {
	validator := newValidator()
	enricher := &enricher{store: store, detector: detector}

	return &PublicAPI{
		validator:  validator,
		Item:       &ItemAPI{router: router, enricher: enricher, overlay: overlay, validator: validator},
		Ownership:  &OwnershipAPI{router: router, enricher: enricher, overlay: overlay, validator: validator},
		Collection: &CollectionAPI{router: router, enricher: enricher, validator: validator},
		Order:      &OrderAPI{router: router, resolver: resolver, validator: validator},
		Activity:   &ActivityAPI{router: router, validator: validator},
	}
}

func AddTo(ctx *gin.Context, api *PublicAPI) {
	ctx.Set(apiContextKey, api)
}

func For(ctx context.Context) *PublicAPI {
	gc := util.GinContextFromContext(ctx)
	return gc.Value(apiContextKey).(*PublicAPI)
}

func newValidator() *validator.Validate {
	v := validator.New()
	validate.RegisterCustomValidators(v)
	return v
}

// Page is one page of a cross-chain listing. Continuation is nil once every chain is exhausted.
type Page[T any] struct {
	Entities     []T     `json:"entities"`
	Continuation *string `json:"continuation"`
	Total        *int64  `json:"total,omitempty"`
}

// ListParams are the arguments every cross-chain listing accepts. An empty Chains means every
// enabled chain; a zero Size means the default page size.
type ListParams struct {
	Chains       []string
	Continuation string
	Size         int
}

func (p ListParams) resolve(v *validator.Validate) ([]persist.Chain, int, error) {
	size := p.Size
	if size == 0 {
		size = defaultPageSize
	}

	if err := validate.ValidateFields(v, validate.ValidationMap{
		"chains":       validate.WithTag(p.Chains, "omitempty,dive,required,chain"),
		"continuation": validate.WithTag(p.Continuation, "continuation"),
		"size":         validate.WithTag(size, "page_size"),
	}); err != nil {
		return nil, 0, err
	}

	chains, err := persist.ParseChains(p.Chains)
	if err != nil {
		return nil, 0, err
	}
	return chains, size, nil
}

func validateIDs(v *validator.Validate, ids []string) error {
	return validate.ValidateFields(v, validate.ValidationMap{
		"ids": validate.WithTag(ids, "required,batch_size,dive,required"),
	})
}

func pageOf[T any, U any](r multichain.Result[T], entities []U) Page[U] {
	p := Page[U]{Entities: entities, Total: r.Total}
	if p.Entities == nil {
		p.Entities = []U{}
	}
	if !r.Completed() {
		next := continuation.Serialize(r.Continuation)
		p.Continuation = &next
	}
	return p
}

// chainsFor narrows the requested chains to the enabled ones serving kind
func chainsFor(router *multichain.Router, kind multichain.Kind, requested []persist.Chain) []persist.Chain {
	return util.Filter(router.EnabledOf(requested), func(chain persist.Chain) bool {
		_, err := router.Route(kind, chain)
		return err == nil
	})
}

// listFrom adapts a router accessor into a paginator fetch
func listFrom[T any, ID any](route func(persist.Chain) (multichain.Adapter[T, ID], error)) multichain.FetchFunc[T] {
	return func(ctx context.Context, chain persist.Chain, cursor string, size int) (multichain.Page[T], error) {
		adapter, err := route(chain)
		if err != nil {
			return multichain.Page[T]{}, err
		}
		return adapter.ListPage(ctx, cursor, size)
	}
}

// getByIDs looks ids up on their chains, one batch per chain, and returns the hits in request order.
// Ids of chains that are disabled or do not serve the kind are omitted like any other miss.
func getByIDs[T any, ID comparable](
	ctx context.Context,
	route func(persist.Chain) (multichain.Adapter[T, ID], error),
	ids []ID,
	chainOf func(ID) persist.Chain,
	idOf func(T) ID,
	op string,
) ([]T, error) {
	ids = util.Dedupe(ids, false)
	byChain := util.GroupBy(ids, chainOf)

	type batch struct {
		chain   persist.Chain
		adapter multichain.Adapter[T, ID]
		ids     []ID
	}

	var batches []batch
	for _, chain := range util.SortedKeys(byChain) {
		adapter, err := route(chain)
		if err != nil {
			continue
		}
		batches = append(batches, batch{chain: chain, adapter: adapter, ids: byChain[chain]})
	}

	results, err := multichain.ParallelMap(ctx, batches, func(ctx context.Context, b batch) ([]T, error) {
		found, err := b.adapter.GetByIDs(ctx, b.ids)
		if err != nil {
			return nil, persist.ErrUpstream{Chain: b.chain, Op: op, Err: err}
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}

	found := make(map[ID]T, len(ids))
	for _, r := range results {
		for _, e := range r {
			found[idOf(e)] = e
		}
	}

	out := make([]T, 0, len(found))
	for _, id := range ids {
		if e, ok := found[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// parseIDs parses every id, failing on the first malformed one
func parseIDs[ID any](ids []string, parse func(string) (ID, error)) ([]ID, error) {
	return util.Map(ids, parse)
}

func notFound[ID interface{ String() string }](kind multichain.Kind, id ID) error {
	return persist.ErrNotFound{Kind: string(kind), ID: id.String()}
}
