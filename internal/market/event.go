package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the market event type emitted by the Phoenix program.
type Kind string

const (
	KindFill   Kind = "fill"
	KindPlace  Kind = "place"
	KindReduce Kind = "reduce"
	KindEvict  Kind = "evict"
	KindFee    Kind = "fee"
)

func (k Kind) String() string {
	return string(k)
}

// Event is one market event decoded from a confirmed transaction.
// PriceInTicks and BaseLots carry the raw on-chain integers; Price and
// Quantity are derived from the market parameters at decode time.
type Event struct {
	Kind          Kind
	Market        string
	SequenceNum   uint64 // market-level event sequence number
	Trader        string
	OrderSequence uint64
	PriceInTicks  uint64
	BaseLots      uint64
	Price         decimal.Decimal // quote units per base unit
	Quantity      decimal.Decimal // base units
	Slot          int64
	Signature     string
	Index         int // position of the event within the transaction
	BlockTime     *time.Time
}

// EventBatch is the ordered sequence of events decoded from exactly one
// transaction, delivered to the output queue as a unit. A batch may be
// empty: a transaction that touches the market without emitting events
// still produces (and dispatches) one batch.
type EventBatch struct {
	BatchID   uuid.UUID
	Market    string
	Signature string
	Slot      int64
	Events    []Event
}
