package market

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mr-tron/base58"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/metrics"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/rpc"
)

// Decoder turns one confirmed transaction into its market events.
// A transaction may legitimately decode to zero events.
type Decoder interface {
	Decode(ctx context.Context, signature string) ([]Event, error)
}

const (
	logDataPrefix   = "Program data: "
	logInvokePrefix = "Program "

	// eventFrameLen is the fixed size of one emitted event record:
	// kind byte, market sequence u64, trader pubkey, order sequence u64,
	// price-in-ticks u64, base-lots u64.
	eventFrameLen = 1 + 8 + 32 + 8 + 8 + 8

	paramsCacheSize = 64
)

var kindByByte = map[byte]Kind{
	1: KindFill,
	2: KindPlace,
	3: KindReduce,
	4: KindEvict,
	5: KindFee,
}

// LedgerDecoder fetches transactions over JSON-RPC and decodes the event
// records the market program logged during execution.
type LedgerDecoder struct {
	client    rpc.RPCClient
	programID string
	market    string
	params    *lru.Cache[string, Params]
	logger    *slog.Logger
}

var _ Decoder = (*LedgerDecoder)(nil)

func NewLedgerDecoder(client rpc.RPCClient, programID, market string, logger *slog.Logger) (*LedgerDecoder, error) {
	cache, err := lru.New[string, Params](paramsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create params cache: %w", err)
	}
	return &LedgerDecoder{
		client:    client,
		programID: programID,
		market:    market,
		params:    cache,
		logger:    logger.With("component", "decoder", "market", market),
	}, nil
}

// Decode fetches the transaction and extracts its market events in log
// order. Transactions that executed with an error decode to zero events.
func (d *LedgerDecoder) Decode(ctx context.Context, signature string) ([]Event, error) {
	start := time.Now()
	defer func() {
		metrics.DecoderLatency.WithLabelValues(d.market).Observe(time.Since(start).Seconds())
	}()

	tx, err := d.client.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", signature, err)
	}
	if tx.Meta == nil || tx.Meta.Err != nil {
		return nil, nil
	}

	params, err := d.marketParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("load market params: %w", err)
	}

	var blockTime *time.Time
	if tx.BlockTime != nil {
		bt := time.Unix(*tx.BlockTime, 0)
		blockTime = &bt
	}

	var events []Event
	var stack []string
	for _, line := range tx.Meta.LogMessages {
		if program, ok := parseInvoke(line); ok {
			stack = append(stack, program)
			continue
		}
		if parseReturn(line) && len(stack) > 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		payload, ok := strings.CutPrefix(line, logDataPrefix)
		if !ok {
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != d.programID {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			d.logger.Warn("undecodable program data entry", "signature", signature, "error", err)
			continue
		}

		ev, ok := parseEventFrame(raw, params)
		if !ok {
			continue
		}
		ev.Market = d.market
		ev.Slot = tx.Slot
		ev.Signature = signature
		ev.Index = len(events)
		ev.BlockTime = blockTime
		events = append(events, ev)
		metrics.DecoderEventsDecoded.WithLabelValues(d.market, ev.Kind.String()).Inc()
	}

	return events, nil
}

// marketParams returns the cached sizing params for the watched market,
// fetching the market account once on first use.
func (d *LedgerDecoder) marketParams(ctx context.Context) (Params, error) {
	if params, ok := d.params.Get(d.market); ok {
		return params, nil
	}

	info, err := d.client.GetAccountInfo(ctx, d.market)
	if err != nil {
		return Params{}, err
	}
	if len(info.Data) == 0 {
		return Params{}, fmt.Errorf("market account %s has no data", d.market)
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data[0])
	if err != nil {
		return Params{}, fmt.Errorf("decode market account data: %w", err)
	}

	params, err := ParseParams(raw)
	if err != nil {
		return Params{}, err
	}

	d.params.Add(d.market, params)
	d.logger.Info("market params loaded",
		"base_lot_size", params.BaseLotSize,
		"quote_lot_size", params.QuoteLotSize,
		"tick_size", params.TickSize,
	)
	return params, nil
}

// parseInvoke matches "Program <id> invoke [n]" log lines.
func parseInvoke(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, logInvokePrefix)
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 || fields[1] != "invoke" {
		return "", false
	}
	return fields[0], true
}

// parseReturn matches "Program <id> success" and "Program <id> failed: ..." lines.
func parseReturn(line string) bool {
	rest, ok := strings.CutPrefix(line, logInvokePrefix)
	if !ok {
		return false
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return false
	}
	return fields[1] == "success" || fields[1] == "failed:"
}

// parseEventFrame decodes one fixed-size event record. Unknown kinds and
// short frames are skipped rather than failing the transaction.
func parseEventFrame(raw []byte, params Params) (Event, bool) {
	if len(raw) < eventFrameLen {
		return Event{}, false
	}
	kind, ok := kindByByte[raw[0]]
	if !ok {
		return Event{}, false
	}

	ticks := binary.LittleEndian.Uint64(raw[49:57])
	lots := binary.LittleEndian.Uint64(raw[57:65])

	return Event{
		Kind:          kind,
		SequenceNum:   binary.LittleEndian.Uint64(raw[1:9]),
		Trader:        base58.Encode(raw[9:41]),
		OrderSequence: binary.LittleEndian.Uint64(raw[41:49]),
		PriceInTicks:  ticks,
		BaseLots:      lots,
		Price:         params.PriceFromTicks(ticks),
		Quantity:      params.QuantityFromLots(lots),
	}, true
}
