package market

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/rpc"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/rpc/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testProgramID = "PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY"
	testMarket    = "4DoNfFBfF7UokCC2FQzriy7yHK6DY6NVdYpuekQ5pRgg"
	otherProgram  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testTrader(t *testing.T) (string, []byte) {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return base58.Encode(raw), raw
}

func eventFrame(t *testing.T, kind byte, seq uint64, trader []byte, orderSeq, ticks, lots uint64) []byte {
	t.Helper()
	require.Len(t, trader, 32)
	raw := make([]byte, eventFrameLen)
	raw[0] = kind
	binary.LittleEndian.PutUint64(raw[1:9], seq)
	copy(raw[9:41], trader)
	binary.LittleEndian.PutUint64(raw[41:49], orderSeq)
	binary.LittleEndian.PutUint64(raw[49:57], ticks)
	binary.LittleEndian.PutUint64(raw[57:65], lots)
	return raw
}

func dataLine(raw []byte) string {
	return logDataPrefix + base64.StdEncoding.EncodeToString(raw)
}

func marketAccount() *rpc.AccountInfo {
	data := make([]byte, paramsAccountLen)
	binary.LittleEndian.PutUint64(data[8:16], 1000000) // base lot size
	binary.LittleEndian.PutUint64(data[16:24], 1)      // quote lot size
	binary.LittleEndian.PutUint64(data[24:32], 1000)   // tick size
	binary.LittleEndian.PutUint32(data[32:36], 9)      // base decimals
	binary.LittleEndian.PutUint32(data[36:40], 6)      // quote decimals
	return &rpc.AccountInfo{
		Owner: testProgramID,
		Data:  []string{base64.StdEncoding.EncodeToString(data), "base64"},
	}
}

func newTestDecoder(t *testing.T) (*LedgerDecoder, *mocks.MockRPCClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockRPCClient(ctrl)
	d, err := NewLedgerDecoder(client, testProgramID, testMarket, testLogger())
	require.NoError(t, err)
	return d, client
}

func TestDecode_SingleFill(t *testing.T) {
	d, client := newTestDecoder(t)

	trader, traderRaw := testTrader(t)
	bt := int64(1700000000)

	client.EXPECT().GetAccountInfo(gomock.Any(), testMarket).Return(marketAccount(), nil)
	client.EXPECT().GetTransaction(gomock.Any(), "SigFill").Return(&rpc.TransactionResponse{
		Slot:      1234,
		BlockTime: &bt,
		Meta: &rpc.TransactionMeta{
			LogMessages: []string{
				"Program " + testProgramID + " invoke [1]",
				dataLine(eventFrame(t, 1, 42, traderRaw, 7, 150000, 2500)),
				"Program " + testProgramID + " success",
			},
		},
	}, nil)

	events, err := d.Decode(context.Background(), "SigFill")
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, KindFill, ev.Kind)
	assert.Equal(t, testMarket, ev.Market)
	assert.Equal(t, uint64(42), ev.SequenceNum)
	assert.Equal(t, trader, ev.Trader)
	assert.Equal(t, uint64(7), ev.OrderSequence)
	assert.Equal(t, uint64(150000), ev.PriceInTicks)
	assert.Equal(t, uint64(2500), ev.BaseLots)
	assert.True(t, ev.Price.Equal(mustDecimal(t, "150")), "got %s", ev.Price)
	assert.True(t, ev.Quantity.Equal(mustDecimal(t, "2.5")), "got %s", ev.Quantity)
	assert.Equal(t, int64(1234), ev.Slot)
	assert.Equal(t, "SigFill", ev.Signature)
	assert.Equal(t, 0, ev.Index)
	require.NotNil(t, ev.BlockTime)
	assert.Equal(t, bt, ev.BlockTime.Unix())
}

func TestDecode_MultipleEventsKeepLogOrder(t *testing.T) {
	d, client := newTestDecoder(t)

	_, traderRaw := testTrader(t)

	client.EXPECT().GetAccountInfo(gomock.Any(), testMarket).Return(marketAccount(), nil)
	client.EXPECT().GetTransaction(gomock.Any(), "SigMulti").Return(&rpc.TransactionResponse{
		Slot: 99,
		Meta: &rpc.TransactionMeta{
			LogMessages: []string{
				"Program " + testProgramID + " invoke [1]",
				dataLine(eventFrame(t, 2, 1, traderRaw, 10, 100, 1)),
				dataLine(eventFrame(t, 1, 2, traderRaw, 10, 100, 1)),
				dataLine(eventFrame(t, 5, 3, traderRaw, 0, 0, 0)),
				"Program " + testProgramID + " success",
			},
		},
	}, nil)

	events, err := d.Decode(context.Background(), "SigMulti")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindPlace, events[0].Kind)
	assert.Equal(t, KindFill, events[1].Kind)
	assert.Equal(t, KindFee, events[2].Kind)
	for i, ev := range events {
		assert.Equal(t, i, ev.Index)
	}
}

func TestDecode_IgnoresOtherPrograms(t *testing.T) {
	d, client := newTestDecoder(t)

	_, traderRaw := testTrader(t)
	frame := eventFrame(t, 1, 1, traderRaw, 1, 1, 1)

	// The same payload logged by a foreign program, by a foreign inner
	// invocation, and outside any program scope must all be skipped.
	client.EXPECT().GetAccountInfo(gomock.Any(), testMarket).Return(marketAccount(), nil)
	client.EXPECT().GetTransaction(gomock.Any(), "SigForeign").Return(&rpc.TransactionResponse{
		Slot: 5,
		Meta: &rpc.TransactionMeta{
			LogMessages: []string{
				dataLine(frame),
				"Program " + otherProgram + " invoke [1]",
				dataLine(frame),
				"Program " + testProgramID + " invoke [2]",
				dataLine(frame),
				"Program " + testProgramID + " success",
				dataLine(frame),
				"Program " + otherProgram + " success",
			},
		},
	}, nil)

	events, err := d.Decode(context.Background(), "SigForeign")
	require.NoError(t, err)
	require.Len(t, events, 1, "only the inner invocation of the watched program emits")
}

func TestDecode_FailedTransactionYieldsNoEvents(t *testing.T) {
	d, client := newTestDecoder(t)

	client.EXPECT().GetTransaction(gomock.Any(), "SigFailed").Return(&rpc.TransactionResponse{
		Slot: 5,
		Meta: &rpc.TransactionMeta{
			Err:         map[string]any{"InstructionError": []any{}},
			LogMessages: []string{"Program " + testProgramID + " invoke [1]"},
		},
	}, nil)

	events, err := d.Decode(context.Background(), "SigFailed")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecode_SkipsMalformedFrames(t *testing.T) {
	d, client := newTestDecoder(t)

	_, traderRaw := testTrader(t)

	client.EXPECT().GetAccountInfo(gomock.Any(), testMarket).Return(marketAccount(), nil)
	client.EXPECT().GetTransaction(gomock.Any(), "SigMalformed").Return(&rpc.TransactionResponse{
		Slot: 5,
		Meta: &rpc.TransactionMeta{
			LogMessages: []string{
				"Program " + testProgramID + " invoke [1]",
				logDataPrefix + "!!!not-base64!!!",
				dataLine([]byte{1, 2, 3}),                             // short frame
				dataLine(eventFrame(t, 99, 1, traderRaw, 1, 1, 1)),    // unknown kind
				dataLine(eventFrame(t, 1, 8, traderRaw, 2, 100, 300)), // valid
				"Program " + testProgramID + " success",
			},
		},
	}, nil)

	events, err := d.Decode(context.Background(), "SigMalformed")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(8), events[0].SequenceNum)
}

func TestDecode_FetchErrorPropagates(t *testing.T) {
	d, client := newTestDecoder(t)

	rpcErr := errors.New("connection refused")
	client.EXPECT().GetTransaction(gomock.Any(), "SigNope").Return(nil, rpcErr)

	_, err := d.Decode(context.Background(), "SigNope")
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcErr)
}

func TestDecode_ParamsCachedAcrossTransactions(t *testing.T) {
	d, client := newTestDecoder(t)

	_, traderRaw := testTrader(t)
	tx := func() *rpc.TransactionResponse {
		return &rpc.TransactionResponse{
			Slot: 5,
			Meta: &rpc.TransactionMeta{
				LogMessages: []string{
					"Program " + testProgramID + " invoke [1]",
					dataLine(eventFrame(t, 1, 1, traderRaw, 1, 1, 1)),
					"Program " + testProgramID + " success",
				},
			},
		}
	}

	// The market account is fetched exactly once.
	client.EXPECT().GetAccountInfo(gomock.Any(), testMarket).Return(marketAccount(), nil).Times(1)
	client.EXPECT().GetTransaction(gomock.Any(), "SigA").Return(tx(), nil)
	client.EXPECT().GetTransaction(gomock.Any(), "SigB").Return(tx(), nil)

	_, err := d.Decode(context.Background(), "SigA")
	require.NoError(t, err)
	_, err = d.Decode(context.Background(), "SigB")
	require.NoError(t, err)
}

func TestDecode_MissingMetaYieldsNoEvents(t *testing.T) {
	d, client := newTestDecoder(t)

	client.EXPECT().GetTransaction(gomock.Any(), "SigNoMeta").Return(&rpc.TransactionResponse{Slot: 5}, nil)

	events, err := d.Decode(context.Background(), "SigNoMeta")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseInvoke(t *testing.T) {
	program, ok := parseInvoke("Program " + testProgramID + " invoke [1]")
	assert.True(t, ok)
	assert.Equal(t, testProgramID, program)

	_, ok = parseInvoke("Program " + testProgramID + " success")
	assert.False(t, ok)

	_, ok = parseInvoke("Program log: hello")
	assert.False(t, ok)
}

func TestParseReturn(t *testing.T) {
	assert.True(t, parseReturn("Program "+testProgramID+" success"))
	assert.True(t, parseReturn("Program "+testProgramID+" failed: custom program error: 0x1"))
	assert.False(t, parseReturn("Program "+testProgramID+" invoke [1]"))
	assert.False(t, parseReturn("Program log: hello"))
	assert.False(t, parseReturn("log truncated"))
}
