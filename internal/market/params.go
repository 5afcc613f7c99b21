package market

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
)

// Params are the sizing constants of one market account, needed to convert
// raw tick/lot integers into decimal prices and quantities.
type Params struct {
	BaseLotSize   uint64 // base atoms per base lot
	QuoteLotSize  uint64 // quote atoms per quote lot
	TickSize      uint64 // quote lots per tick, per base unit
	BaseDecimals  uint32
	QuoteDecimals uint32
}

// paramsAccountLen is the fixed prefix of a market account we decode:
// 8-byte discriminator, three u64 sizing fields, two u32 decimal fields.
const paramsAccountLen = 8 + 8*3 + 4*2

// ParseParams decodes market parameters from raw market account data.
func ParseParams(data []byte) (Params, error) {
	if len(data) < paramsAccountLen {
		return Params{}, fmt.Errorf("market account data too short: %d bytes", len(data))
	}

	p := Params{
		BaseLotSize:   binary.LittleEndian.Uint64(data[8:16]),
		QuoteLotSize:  binary.LittleEndian.Uint64(data[16:24]),
		TickSize:      binary.LittleEndian.Uint64(data[24:32]),
		BaseDecimals:  binary.LittleEndian.Uint32(data[32:36]),
		QuoteDecimals: binary.LittleEndian.Uint32(data[36:40]),
	}
	if p.BaseLotSize == 0 || p.QuoteLotSize == 0 || p.TickSize == 0 {
		return Params{}, fmt.Errorf("market account has zero-valued sizing params")
	}
	return p, nil
}

// PriceFromTicks converts a raw tick count into quote units per base unit.
func (p Params) PriceFromTicks(ticks uint64) decimal.Decimal {
	quoteAtoms := decimal.NewFromUint64(ticks).
		Mul(decimal.NewFromUint64(p.TickSize)).
		Mul(decimal.NewFromUint64(p.QuoteLotSize))
	return quoteAtoms.Shift(-int32(p.QuoteDecimals))
}

// QuantityFromLots converts a raw base-lot count into base units.
func (p Params) QuantityFromLots(lots uint64) decimal.Decimal {
	baseAtoms := decimal.NewFromUint64(lots).Mul(decimal.NewFromUint64(p.BaseLotSize))
	return baseAtoms.Shift(-int32(p.BaseDecimals))
}
