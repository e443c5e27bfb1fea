package enrichment

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	sentryutil "github.com/mikeydub/go-union/service/sentry"
)

const defaultReplacementTimeout = 3 * time.Second

// OrderEventHandler folds order updates into the enrichment records of the entities they target
type OrderEventHandler struct {
	store              *Store
	router             *multichain.Router
	origins            []string
	replacementTimeout time.Duration
}

// NewOrderEventHandler creates a handler. origins are the marketplace origins that keep their own
// best-order view; orders carrying any of them also update that origin's scope.
func NewOrderEventHandler(store *Store, router *multichain.Router, origins []string) *OrderEventHandler {
	return &OrderEventHandler{
		store:              store,
		router:             router,
		origins:            normalizeOrigins(origins),
		replacementTimeout: defaultReplacementTimeout,
	}
}

// WithReplacementTimeout bounds how long a replacement order lookup may take
func (h *OrderEventHandler) WithReplacementTimeout(d time.Duration) *OrderEventHandler {
	c := *h
	c.replacementTimeout = d
	return &c
}

// Origins returns the configured origins
func (h *OrderEventHandler) Origins() []string {
	return h.origins
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			normalized = append(normalized, o)
		}
	}
	return normalized
}

type orderTarget struct {
	key    Key
	target multichain.OrderTarget
}

// targets returns the records an order affects: its item, the item's collection and, for sell
// orders, the maker's ownership of the item
func targets(order persist.Order) []orderTarget {
	var out []orderTarget

	if item := order.TargetItem(); item != nil {
		it := *item
		out = append(out, orderTarget{key: ItemKey(it), target: multichain.OrderTarget{Item: &it}})

		if order.Side() == persist.OrderSideSell {
			own := it.OwnershipOf(order.Maker)
			out = append(out, orderTarget{key: OwnershipKey(own), target: multichain.OrderTarget{Ownership: &own}})
		}
	}

	if collection := order.TargetCollection(); collection != nil {
		c := *collection
		out = append(out, orderTarget{key: CollectionKey(c), target: multichain.OrderTarget{Collection: &c}})
	}

	return out
}

// scopes returns the root scope plus every configured origin the order carries
func (h *OrderEventHandler) scopes(order persist.Order) []string {
	out := []string{""}
	for _, o := range h.origins {
		if order.HasOrigin(o) {
			out = append(out, o)
		}
	}
	return out
}

// HandleOrder applies an order update. A persist.ErrConcurrentWrite is returned when a record could not be
// written within the retry budget; the caller should redeliver the event.
func (h *OrderEventHandler) HandleOrder(ctx context.Context, order persist.Order) error {
	currency, ok := order.Currency()
	if !ok {
		logger.For(ctx).WithField("orderID", order.ID.String()).Warn("order has no currency side, skipping")
		return nil
	}

	side := order.Side()
	ctx = logger.NewContextWithFields(ctx, logrus.Fields{
		"orderID":  order.ID.String(),
		"side":     side,
		"currency": currency.String(),
		"active":   order.IsActive(),
	})

	var firstErr error
	for _, t := range targets(order) {
		for _, origin := range h.scopes(order) {
			var err error
			if order.IsActive() {
				err = h.applyActive(ctx, t, currency, order, side, origin)
			} else {
				err = h.applyInactive(ctx, t, currency, order, side, origin)
			}
			if err != nil {
				logger.For(ctx).WithError(err).WithField("key", t.key.String()).Error("failed to update enrichment record")
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "updating %s", t.key)
				}
			}
		}
	}
	return firstErr
}

func (h *OrderEventHandler) applyActive(ctx context.Context, t orderTarget, currency persist.CurrencyID, order persist.Order, side persist.OrderSide, origin string) error {
	short := order.Short()
	_, err := h.store.Update(ctx, t.key, func(r *Record) (bool, error) {
		existing, ok := r.scope(origin, true).Entry(side, currency)
		switch {
		case !ok:
		case existing.ID == short.ID:
			if existing.Equal(short) {
				r.normalize()
				return false, nil
			}
		case !betterInCurrency(side, short, existing):
			r.normalize()
			return false, nil
		}
		r.UpsertOrder(side, currency, short, origin)
		return true, nil
	})
	return err
}

func (h *OrderEventHandler) applyInactive(ctx context.Context, t orderTarget, currency persist.CurrencyID, order persist.Order, side persist.OrderSide, origin string) error {
	current, err := h.store.Get(ctx, t.key)
	if err != nil {
		return err
	}
	if current == nil || !pointsAt(*current, side, currency, origin, order.ID) {
		return nil
	}

	replacement := h.fetchReplacement(ctx, t.target, currency, side, origin, order.ID)

	_, err = h.store.Update(ctx, t.key, func(r *Record) (bool, error) {
		if !pointsAt(*r, side, currency, origin, order.ID) {
			return false, nil
		}
		if replacement != nil {
			r.UpsertOrder(side, currency, replacement.Short(), origin)
			return true, nil
		}
		return r.RemoveOrder(side, currency, origin), nil
	})
	return err
}

// fetchReplacement looks up the next best active order of a currency. Failures are reported and
// treated as no replacement; the entry is then removed and repaired by a later event or reconcile.
func (h *OrderEventHandler) fetchReplacement(ctx context.Context, target multichain.OrderTarget, currency persist.CurrencyID, side persist.OrderSide, origin string, exclude persist.OrderID) *persist.Order {
	fetcher, ok := h.router.BestOrderFetchers(target.Chain())[target.Chain()]
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.replacementTimeout)
	defer cancel()

	var replacement *persist.Order
	var err error
	if side == persist.OrderSideSell {
		replacement, err = fetcher.BestSellOrder(ctx, target, currency, origin)
	} else {
		replacement, err = fetcher.BestBidOrder(ctx, target, currency, origin)
	}

	if err != nil {
		logger.For(ctx).WithError(err).Warnf("failed to fetch replacement best order for %s", target)
		sentryutil.ReportError(ctx, err)
		return nil
	}
	if replacement == nil || !replacement.IsActive() || replacement.ID == exclude {
		return nil
	}
	return replacement
}

func pointsAt(r Record, side persist.OrderSide, currency persist.CurrencyID, origin string, id persist.OrderID) bool {
	scope, ok := r.Scope(origin)
	if !ok {
		return false
	}
	existing, ok := scope.Entry(side, currency)
	return ok && existing.ID == id
}
