// Rebuilds enrichment records from the active orders of their chains.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/gammazero/workerpool"
	"github.com/spf13/cobra"

	"github.com/mikeydub/go-union/server"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/redis"
	sentryutil "github.com/mikeydub/go-union/service/sentry"
	"github.com/mikeydub/go-union/util"
)

const batchLockKey = "batch"

var (
	keysFile string
	workers  int
	lockTTL  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "reconcile [KEY...]",
	Short: "Rebuild enrichment records",
	Long:  "Rebuild enrichment records. Keys look like item:ETHEREUM:0xabc:1 and are read from the arguments or from --file, one per line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		defer util.Track("reconcile", time.Now())

		keys, err := collectKeys(args, keysFile)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no keys to reconcile")
		}

		reconciler, err := server.InitReconciler(ctx)
		if err != nil {
			return err
		}

		locker := redis.NewLockClient(redis.NewCache(redis.ReconcileLockCache))
		lock, err := locker.Obtain(ctx, batchLockKey, lockTTL, nil)
		if err == redislock.ErrNotObtained {
			return fmt.Errorf("another reconcile batch is running")
		}
		if err != nil {
			return err
		}
		defer lock.Release(ctx)

		failed := run(ctx, reconciler, keys, workers)
		logger.For(ctx).Infof("reconciled %d of %d records", len(keys)-int(failed), len(keys))
		if failed > 0 {
			return fmt.Errorf("%d records failed to reconcile", failed)
		}
		return nil
	},
}

func run(ctx context.Context, reconciler *enrichment.Reconciler, keys []enrichment.Key, n int) int64 {
	var failed atomic.Int64
	wp := workerpool.New(n)
	for _, key := range keys {
		key := key
		wp.Submit(func() {
			if _, err := reconciler.Reconcile(ctx, key); err != nil {
				logger.For(ctx).WithError(err).Errorf("failed to reconcile %s", key)
				sentryutil.ReportError(ctx, err)
				failed.Add(1)
			}
		})
	}
	wp.StopWait()
	return failed.Load()
}

func collectKeys(args []string, file string) ([]enrichment.Key, error) {
	raw := append([]string{}, args...)
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
				raw = append(raw, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	keys, err := util.Map(raw, parseKey)
	if err != nil {
		return nil, err
	}
	return util.Dedupe(keys, false), nil
}

func parseKey(s string) (enrichment.Key, error) {
	k, id, ok := strings.Cut(s, ":")
	if !ok {
		return enrichment.Key{}, fmt.Errorf("malformed key '%s'", s)
	}
	kind, err := multichain.ParseKind(k)
	if err != nil {
		return enrichment.Key{}, err
	}
	return enrichment.ParseKey(kind, id)
}

func main() {
	rootCmd.Flags().StringVarP(&keysFile, "file", "f", "", "file with one key per line")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 8, "records reconciled concurrently")
	rootCmd.Flags().DurationVar(&lockTTL, "lock-ttl", time.Hour, "how long the batch lock is held at most")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
