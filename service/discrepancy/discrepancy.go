// Package discrepancy watches hydrated responses for cached best orders that no longer match the
// order backend. It only reports; reads are never delayed or changed by it.
package discrepancy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/persist"
)

// Reason explains why a cached best order is stale
type Reason string

const (
	ReasonMissing  Reason = "missing"
	ReasonInactive Reason = "inactive"
	ReasonChanged  Reason = "changed"
)

// Stale is a cached best order that disagrees with the order backend
type Stale struct {
	Key    enrichment.Key
	Order  persist.ShortOrder
	Reason Reason
}

// Check is one hydrated record to compare
type Check struct {
	Record enrichment.Record
	Orders map[persist.OrderID]persist.Order
}

// Config sizes the detector
type Config struct {
	Workers    int
	BufferSize int
	Timeout    time.Duration
}

var DefaultConfig = Config{Workers: 4, BufferSize: 256, Timeout: 10 * time.Second}

// Detector compares checks in the background. At most Workers checks run at once and at most BufferSize
// wait behind them; when the buffer is full the oldest pending check is dropped.
type Detector struct {
	cfg     Config
	onStale func(ctx context.Context, stale []Stale)

	mu      sync.Mutex
	pending []Check
	signal  chan struct{}
	done    chan struct{}
	stopped sync.WaitGroup

	// one slot per worker; checks wait in pending until a slot frees up
	slots chan struct{}

	wp *workerpool.WorkerPool

	dropped atomic.Int64
	found   atomic.Int64
}

// NewDetector creates a detector. onStale is called from a worker for every record with stale orders
// and may be nil.
func NewDetector(cfg Config, onStale func(ctx context.Context, stale []Stale)) *Detector {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return &Detector{
		cfg:     cfg,
		onStale: onStale,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		slots:   make(chan struct{}, cfg.Workers),
	}
}

// Start launches the workers
func (d *Detector) Start() {
	d.wp = workerpool.New(d.cfg.Workers)
	d.stopped.Add(1)
	go d.dispatch()
}

// Stop drains the buffer and waits for running checks to finish
func (d *Detector) Stop() {
	close(d.done)
	d.stopped.Wait()
	d.wp.StopWait()
}

// Submit queues checks without blocking
func (d *Detector) Submit(checks ...Check) {
	if len(checks) == 0 {
		return
	}

	d.mu.Lock()
	d.pending = append(d.pending, checks...)
	if over := len(d.pending) - d.cfg.BufferSize; over > 0 {
		d.pending = append(d.pending[:0], d.pending[over:]...)
		d.dropped.Add(int64(over))
	}
	d.mu.Unlock()

	d.wake()
}

// Dropped is the number of checks discarded because the buffer was full
func (d *Detector) Dropped() int64 {
	return d.dropped.Load()
}

// Found is the number of stale orders seen so far
func (d *Detector) Found() int64 {
	return d.found.Load()
}

func (d *Detector) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Detector) next() (Check, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return Check{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

func (d *Detector) dispatch() {
	defer d.stopped.Done()
	for {
		select {
		case <-d.signal:
			d.fill()
		case <-d.done:
			d.drain()
			return
		}
	}
}

// fill hands pending checks to free workers without blocking
func (d *Detector) fill() {
	for {
		select {
		case d.slots <- struct{}{}:
		default:
			return
		}
		c, ok := d.next()
		if !ok {
			<-d.slots
			return
		}
		d.submit(c)
	}
}

// drain waits for free workers until the buffer is empty
func (d *Detector) drain() {
	for {
		c, ok := d.next()
		if !ok {
			return
		}
		d.slots <- struct{}{}
		d.submit(c)
	}
}

func (d *Detector) submit(c Check) {
	d.wp.Submit(func() {
		defer func() {
			<-d.slots
			d.wake()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		defer cancel()
		d.check(ctx, c)
	})
}

func (d *Detector) check(ctx context.Context, c Check) {
	stale := Compare(c.Record, c.Orders)
	if len(stale) == 0 {
		return
	}
	d.found.Add(int64(len(stale)))

	for _, s := range stale {
		logger.For(ctx).WithFields(logrus.Fields{
			"key":     s.Key.String(),
			"orderID": s.Order.ID.String(),
			"reason":  s.Reason,
		}).Warn("stale best order in enrichment cache")
	}

	if d.onStale != nil {
		d.onStale(ctx, stale)
	}
}

// Compare returns the best orders of a record that disagree with their hydrated orders
func Compare(r enrichment.Record, orders map[persist.OrderID]persist.Order) []Stale {
	var stale []Stale
	seen := map[persist.OrderID]bool{}
	for _, short := range r.AllBestOrders() {
		if seen[short.ID] {
			continue
		}
		seen[short.ID] = true

		full, ok := orders[short.ID]
		switch {
		case !ok:
			stale = append(stale, Stale{Key: r.Key, Order: short, Reason: ReasonMissing})
		case !full.IsActive():
			stale = append(stale, Stale{Key: r.Key, Order: short, Reason: ReasonInactive})
		case !sameRanking(short, full.Short()):
			stale = append(stale, Stale{Key: r.Key, Order: short, Reason: ReasonChanged})
		}
	}
	return stale
}

// sameRanking compares the fields a best order is ranked by
func sameRanking(cached, current persist.ShortOrder) bool {
	current.Currency = cached.Currency
	current.Platform = cached.Platform
	current.MakeStock = cached.MakeStock
	return cached.Equal(current)
}
