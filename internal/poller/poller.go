package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/ledger"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/market"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/metrics"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 1000 * time.Millisecond

// Poller watches one market address for newly confirmed transactions and
// dispatches their decoded event batches, oldest-first, onto the output
// queue. The cursor is in-memory only: a restarted poller reseeds from the
// newest confirmed transaction and does not backfill the outage window.
//
// A ledger fetch error is fatal to the worker (fail-stop, no retry); a
// decode error affects only that transaction, which dispatches as an empty
// batch so the cursor still advances past it.
type Poller struct {
	market   string
	query    ledger.Query
	decoder  market.Decoder
	out      chan<- market.EventBatch
	interval time.Duration
	logger   *slog.Logger

	// cursor is the newest signature already observed. Empty means no
	// history has been consumed yet. Touched only by the worker goroutine.
	cursor     string
	cursorSlot int64

	sleepFn func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

// WithInterval overrides the poll interval. Non-positive values fall back
// to DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func New(
	marketAddr string,
	query ledger.Query,
	decoder market.Decoder,
	out chan<- market.EventBatch,
	logger *slog.Logger,
	opts ...Option,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		market:   marketAddr,
		query:    query,
		decoder:  decoder,
		out:      out,
		interval: DefaultInterval,
		logger:   logger.With("component", "poller", "market", marketAddr),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Handle is the synchronization point for a started worker.
type Handle struct {
	done chan struct{}
	err  error
}

// Join blocks until the worker terminates and returns its outcome.
// Joining an already-terminated worker returns immediately.
func (h *Handle) Join() error {
	<-h.done
	return h.err
}

// Start spawns the worker goroutine and returns a handle for Join.
func (p *Poller) Start(ctx context.Context) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = p.Run(ctx)
	}()
	return h
}

// Run executes poll cycles until the context is cancelled or a ledger
// fetch fails.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval)

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("poller stopped", "cause", "context_done")
			return err
		}

		if err := p.cycle(ctx); err != nil {
			p.logger.Error("poll cycle failed", "error", err)
			return fmt.Errorf("poller %s: %w", p.market, err)
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			p.logger.Info("poller stopped", "cause", "context_done")
			return err
		}
	}
}

// cycle runs one fetch-and-drain iteration: fetch signatures newer than the
// cursor, reverse to oldest-first, advance the cursor to the newest
// signature observed, then decode and dispatch each transaction in order.
func (p *Poller) cycle(ctx context.Context) error {
	spanCtx, span := tracing.Tracer("poller").Start(ctx, "poller.cycle",
		otelTrace.WithAttributes(attribute.String("market", p.market)),
	)
	defer span.End()

	start := time.Now()
	metrics.PollerCyclesTotal.WithLabelValues(p.market).Inc()
	defer func() {
		metrics.PollerCycleLatency.WithLabelValues(p.market).Observe(time.Since(start).Seconds())
	}()

	req := ledger.SignatureRequest{Address: p.market}
	if p.cursor == "" {
		// Seed the cursor from the single newest confirmed transaction
		// without backfilling history.
		req.Limit = 1
	} else {
		req.Until = p.cursor
	}

	sigs, err := p.query.ConfirmedSignatures(spanCtx, req)
	if err != nil {
		metrics.PollerCycleErrors.WithLabelValues(p.market).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetch confirmed signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("signatures", len(sigs)))
	metrics.PollerSignaturesFetched.WithLabelValues(p.market).Add(float64(len(sigs)))

	// The RPC reports newest-first; sigs[0] is the newest transaction this
	// cycle. Record it as the new cursor before decoding so the cursor
	// reflects everything observed even while decodes are still running.
	newest := sigs[0]
	p.cursor = newest.Signature
	p.cursorSlot = newest.Slot
	metrics.PollerCursorSlot.WithLabelValues(p.market).Set(float64(newest.Slot))

	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]

		events, err := p.decoder.Decode(spanCtx, sig.Signature)
		if err != nil {
			// A single undecodable transaction must not stall the market
			// feed; it dispatches as an empty batch and the cursor has
			// already moved past it.
			metrics.DecoderErrors.WithLabelValues(p.market).Inc()
			p.logger.Warn("decode failed, dispatching empty batch",
				"signature", sig.Signature,
				"error", err,
			)
			events = nil
		}

		batch := market.EventBatch{
			BatchID:   uuid.New(),
			Market:    p.market,
			Signature: sig.Signature,
			Slot:      sig.Slot,
			Events:    events,
		}

		select {
		case p.out <- batch:
			metrics.PollerBatchesDispatched.WithLabelValues(p.market).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.logger.Debug("cycle complete",
		"signatures", len(sigs),
		"cursor", p.cursor,
		"cursor_slot", p.cursorSlot,
	)
	return nil
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.sleepFn != nil {
		return p.sleepFn(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
