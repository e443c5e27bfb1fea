package publicapi

import (
	"context"

	"github.com/mikeydub/go-union/service/discrepancy"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/util"
)

// enricher attaches best orders to a response. All orders of one response are resolved in a single batch.
type enricher struct {
	store    *enrichment.Store
	detector *discrepancy.Detector
}

// enrich returns the enrichment of every key. Keys without a record get an empty enrichment.
func (e *enricher) enrich(ctx context.Context, keys []enrichment.Key) (map[enrichment.Key]enrichment.Enrichment, error) {
	out := make(map[enrichment.Key]enrichment.Enrichment, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	records, err := e.store.FindAll(ctx, util.Dedupe(keys, false))
	if err != nil {
		return nil, err
	}

	all := make([]enrichment.Record, 0, len(records))
	for _, r := range records {
		all = append(all, r)
	}

	orders, err := e.store.Hydrate(ctx, all...)
	if err != nil {
		return nil, err
	}

	checks := make([]discrepancy.Check, 0, len(all))
	for _, r := range all {
		out[r.Key] = r.Enrich(orders)
		if missing := r.Missing(orders); len(missing) > 0 {
			logger.For(ctx).Debugf("%d best orders of %s did not resolve", len(missing), r.Key)
		}
		checks = append(checks, discrepancy.Check{Record: r, Orders: orders})
	}

	if e.detector != nil {
		e.detector.Submit(checks...)
	}

	return out, nil
}
