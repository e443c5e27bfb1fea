package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mikeydub/go-union/service/discrepancy"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/logger"
	sentryutil "github.com/mikeydub/go-union/service/sentry"
	"github.com/mikeydub/go-union/service/throttle"
	"github.com/mikeydub/go-union/util"
)

// reconcileStale rebuilds records the detector found stale, at most once per record every throttle
// window across all instances. Without a throttler stale records are only logged.
func reconcileStale(reconciler *enrichment.Reconciler, throttler *throttle.Locker) func(context.Context, []discrepancy.Stale) {
	return func(ctx context.Context, stale []discrepancy.Stale) {
		if throttler == nil {
			return
		}

		keys := util.Dedupe(util.MapWithoutError(stale, func(s discrepancy.Stale) enrichment.Key { return s.Key }), false)
		for _, key := range keys {
			err := throttler.Lock(ctx, key.String())
			if util.ErrorAs[throttle.ErrThrottleLocked](err) {
				continue
			}
			if err != nil {
				logger.For(ctx).WithError(err).Warn("failed to acquire reconcile throttle")
				continue
			}

			if _, err := reconciler.Reconcile(ctx, key); err != nil {
				logger.For(ctx).WithError(err).WithFields(logrus.Fields{"key": key.String()}).Error("failed to reconcile stale record")
				sentryutil.ReportError(ctx, err)
				continue
			}
			logger.For(ctx).WithFields(logrus.Fields{"key": key.String()}).Info("reconciled stale record")
		}
	}
}
