package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/mirror"
)

// BackfillResult counts a mirror replay.
type BackfillResult struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Backfill replays stored transactions in r into the mirror. A failing row is
// logged and counted; the replay continues.
func Backfill(ctx context.Context, store Store, m mirror.Appender, r domain.DateRange) (BackfillResult, error) {
	log := logger.FromContext(ctx)

	txs, err := store.ListTransactions(ctx, r)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("Backfill: list transactions: %w", err)
	}

	var res BackfillResult
	for i := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Total++
		if err := m.AppendTransaction(ctx, &txs[i]); err != nil {
			res.Failed++
			log.Warn().Err(err).Str("message_id", txs[i].MessageID).Msg("backfill append failed")
		}
	}
	return res, nil
}
