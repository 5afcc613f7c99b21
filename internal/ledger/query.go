package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/rpc"
)

const maxPageSize = 1000

// SignatureRequest describes one confirmed-signature fetch.
//
// Until, when set, is an exclusive lower bound: only signatures strictly
// newer than it are returned. Limit, when positive, caps the number of
// newest entries returned and is only meaningful when Until is empty.
type SignatureRequest struct {
	Address string
	Until   string
	Limit   int
}

// SignatureInfo is one confirmed transaction reference for the address.
type SignatureInfo struct {
	Signature string
	Slot      int64
	Time      *time.Time
}

// Query returns confirmed transaction signatures for an address,
// newest-first, as the ledger RPC reports them.
type Query interface {
	ConfirmedSignatures(ctx context.Context, req SignatureRequest) ([]SignatureInfo, error)
}

// SolanaQuery implements Query over the Solana JSON-RPC interface.
type SolanaQuery struct {
	client rpc.RPCClient
	logger *slog.Logger
}

var _ Query = (*SolanaQuery)(nil)

func NewSolanaQuery(client rpc.RPCClient, logger *slog.Logger) *SolanaQuery {
	return &SolanaQuery{
		client: client,
		logger: logger.With("component", "ledger"),
	}
}

// ConfirmedSignatures collects signatures page by page (newest-first from the
// RPC), walking the `before` frontier backwards until the `until` bound is
// reached or the requested limit is satisfied.
func (q *SolanaQuery) ConfirmedSignatures(ctx context.Context, req SignatureRequest) ([]SignatureInfo, error) {
	var all []rpc.SignatureInfo
	var before string

	remaining := req.Limit
	for {
		pageSize := maxPageSize
		if req.Limit > 0 && remaining < pageSize {
			pageSize = remaining
		}

		opts := &rpc.GetSignaturesOpts{
			Limit: pageSize,
			Until: req.Until,
		}
		if before != "" {
			opts.Before = before
		}

		sigs, err := q.client.GetSignaturesForAddress(ctx, req.Address, opts)
		if err != nil {
			return nil, fmt.Errorf("fetch signatures page: %w", err)
		}
		if len(sigs) == 0 {
			break
		}

		all = append(all, sigs...)

		if req.Limit > 0 {
			remaining -= len(sigs)
			if remaining <= 0 {
				break
			}
		}

		// A short page means the bound (or the history start) was reached.
		if len(sigs) < pageSize {
			break
		}

		before = sigs[len(sigs)-1].Signature
	}

	result := make([]SignatureInfo, len(all))
	for i, sig := range all {
		var t *time.Time
		if sig.BlockTime != nil {
			bt := time.Unix(*sig.BlockTime, 0)
			t = &bt
		}
		result[i] = SignatureInfo{
			Signature: sig.Signature,
			Slot:      sig.Slot,
			Time:      t,
		}
	}

	q.logger.Debug("fetched signatures",
		"address", req.Address,
		"count", len(result),
		"until", req.Until,
		"limit", req.Limit,
	)

	return result, nil
}
