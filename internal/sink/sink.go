package sink

import (
	"context"
	"log/slog"

	"github.com/samuelvanderwaal/phoenix-sdk/internal/market"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/metrics"
)

// Sink drains the output queue on behalf of a consumer. Implementations
// receive batches in dispatch order; how fast they consume is up to them.
type Sink interface {
	Run(ctx context.Context) error
}

// LogSink is the default consumer: it writes each batch to the structured
// log. Useful for development and as a liveness check in production.
type LogSink struct {
	in     <-chan market.EventBatch
	logger *slog.Logger
}

func NewLogSink(in <-chan market.EventBatch, logger *slog.Logger) *LogSink {
	return &LogSink{
		in:     in,
		logger: logger.With("component", "sink", "sink", "log"),
	}
}

func (s *LogSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-s.in:
			if !ok {
				return nil
			}
			metrics.SinkBatchesConsumed.WithLabelValues("log").Inc()
			if len(batch.Events) == 0 {
				s.logger.Debug("empty batch",
					"market", batch.Market,
					"signature", batch.Signature,
					"slot", batch.Slot,
				)
				continue
			}
			for _, ev := range batch.Events {
				s.logger.Info("market event",
					"kind", ev.Kind,
					"market", ev.Market,
					"sequence", ev.SequenceNum,
					"trader", ev.Trader,
					"price", ev.Price,
					"quantity", ev.Quantity,
					"slot", ev.Slot,
					"signature", ev.Signature,
				)
			}
		}
	}
}
