// Package dispatch routes ledger events to per-shard processing lanes.
// Events for one client always land on the same lane in arrival order;
// different clients process in parallel up to the configured lane count.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"PayEngine/internal/engine"
	"PayEngine/internal/event"
	"PayEngine/internal/ledger"
	"PayEngine/internal/observability"
	"PayEngine/internal/store"
)

// Dispatcher owns the lane table. Lanes are created lazily on the first
// event for their shard and live until Shutdown; none is ever removed
// mid-run. Post must be called from a single producer goroutine, which is
// what makes per-client ordering hold end to end. Shutdown may run on a
// different goroutine than the producer; mu arbitrates between the two so
// a mailbox is never closed under an in-flight Post.
type Dispatcher struct {
	store       store.Store
	laneCount   uint16
	mailboxSize int
	log         zerolog.Logger
	metrics     *observability.Metrics

	mu     sync.RWMutex
	lanes  map[uint16]*lane
	closed bool
	wg     sync.WaitGroup

	errMu    sync.Mutex
	laneErrs []error
}

type lane struct {
	shard   uint16
	mailbox chan event.Transaction
}

// New creates a dispatcher over the given store. laneCount is clamped to a
// minimum of 1; mailboxSize bounds each lane's queue and is where
// backpressure comes from.
func New(st store.Store, laneCount uint16, mailboxSize int, log zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	if laneCount < 1 {
		laneCount = 1
	}
	if mailboxSize < 1 {
		mailboxSize = 1
	}
	return &Dispatcher{
		store:       st,
		laneCount:   laneCount,
		mailboxSize: mailboxSize,
		log:         log,
		metrics:     metrics,
		lanes:       make(map[uint16]*lane),
	}
}

// Post routes one event to its shard's lane, spawning the lane on first
// use. A full mailbox blocks the caller until the lane catches up or ctx is
// cancelled.
//
// The read lock is held for the whole call, blocked send included, so a
// concurrent Shutdown cannot close the mailbox mid-send; it waits for the
// lane to drain the slot and the send to land. The lane table write in
// spawnLane is safe under the read lock because Post has a single producer
// and Shutdown takes the write lock.
func (d *Dispatcher) Post(ctx context.Context, txn event.Transaction) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		if d.metrics != nil {
			d.metrics.PostFailures.Inc()
		}
		return ledger.NewError(ledger.ErrIOFailure, "dispatcher is shut down")
	}

	shard := txn.ClientID % d.laneCount
	ln, ok := d.lanes[shard]
	if !ok {
		ln = d.spawnLane(shard)
	}

	select {
	case ln.mailbox <- txn:
		if d.metrics != nil {
			d.metrics.EventsPosted.Inc()
			d.metrics.MailboxDepth.WithLabelValues(strconv.Itoa(int(shard))).Set(float64(len(ln.mailbox)))
		}
		return nil
	case <-ctx.Done():
		if d.metrics != nil {
			d.metrics.PostFailures.Inc()
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) spawnLane(shard uint16) *lane {
	ln := &lane{
		shard:   shard,
		mailbox: make(chan event.Transaction, d.mailboxSize),
	}
	d.lanes[shard] = ln

	d.log.Info().Uint16("shard", shard).Msg("spawning engine lane")
	if d.metrics != nil {
		d.metrics.LanesActive.Inc()
	}

	d.wg.Add(1)
	go d.runLane(ln)
	return ln
}

// runLane drives one engine instance until the mailbox is closed and
// drained. A lane is never cancelled mid-event; shutdown only stops new
// enqueues. Panics are converted into a join failure instead of taking the
// process down.
func (d *Dispatcher) runLane(ln *lane) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.recordLaneError(ln.shard, ledger.NewError(ledger.ErrJoinFailure, fmt.Sprintf("lane panic: %v", r)))
		}
	}()

	eng := engine.New(d.store, d.log.With().Uint16("shard", ln.shard).Logger(), d.metrics)
	if err := eng.Run(context.Background(), ln.mailbox); err != nil {
		d.recordLaneError(ln.shard, ledger.NewError(ledger.ErrJoinFailure, err.Error()))
	}
}

func (d *Dispatcher) recordLaneError(shard uint16, err error) {
	d.errMu.Lock()
	d.laneErrs = append(d.laneErrs, err)
	d.errMu.Unlock()

	d.log.Error().Err(err).Uint16("shard", shard).Msg("lane terminated abnormally")
}

// Shutdown closes every mailbox and waits for all lanes to drain their
// queued events. An in-flight Post finishes before any mailbox closes;
// later Posts fail with ErrIOFailure. It returns the joined lane failures,
// if any.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	for _, ln := range d.lanes {
		close(ln.mailbox)
	}
	laneCount := len(d.lanes)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info().Int("lanes", laneCount).Msg("all engine lanes drained")

	d.errMu.Lock()
	defer d.errMu.Unlock()
	return errors.Join(d.laneErrs...)
}

// Lanes reports how many lanes have been spawned so far.
func (d *Dispatcher) Lanes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lanes)
}
