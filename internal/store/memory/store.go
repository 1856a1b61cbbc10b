// Package memory is an in-process transaction store used in development and
// tests. It keeps the same dedup and aggregate semantics as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/shopspring/decimal"
)

type row struct {
	seq int
	tx  domain.Transaction
}

// Store is a thread-safe in-memory transaction store and processed-message set.
type Store struct {
	mu        sync.Mutex
	processed map[string]struct{}
	byMessage map[string]int
	rows      []row
}

// New creates an empty store.
func New() *Store {
	return &Store{
		processed: make(map[string]struct{}),
		byMessage: make(map[string]int),
	}
}

// MarkProcessed adds messageID to the processed set and reports whether it was new.
func (s *Store) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[messageID]; ok {
		return false, nil
	}
	s.processed[messageID] = struct{}{}
	return true, nil
}

// InsertIfAbsent stores tx unless its message id is already present.
func (s *Store) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if tx.MessageID == "" {
		return false, fmt.Errorf("InsertIfAbsent: %w: empty message id", domain.ErrInvalidTransaction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byMessage[tx.MessageID]; ok {
		return false, nil
	}
	s.byMessage[tx.MessageID] = len(s.rows)
	s.rows = append(s.rows, row{seq: len(s.rows) + 1, tx: *tx})
	return true, nil
}

// Count returns the number of stored transactions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ListTransactions returns every stored transaction dated within [from, to],
// oldest first.
func (s *Store) ListTransactions(ctx context.Context, r domain.DateRange) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, rw := range s.rows {
		if rw.tx.Date.Before(r.From) || rw.tx.Date.After(r.To) {
			continue
		}
		out = append(out, rw.tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) matching(f domain.AggregateFilter) []row {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []row
	for _, rw := range s.rows {
		if f.Matches(&rw.tx) {
			out = append(out, rw)
		}
	}
	return out
}

// Totals sums debits and credits.
func (s *Store) Totals(ctx context.Context, f domain.AggregateFilter) (domain.Totals, error) {
	t := domain.Totals{Debits: decimal.Zero, Credits: decimal.Zero}
	for _, rw := range s.matching(f) {
		switch rw.tx.Type {
		case domain.Debit:
			t.Debits = t.Debits.Add(rw.tx.Amount)
		case domain.Credit:
			t.Credits = t.Credits.Add(rw.tx.Amount)
		}
	}
	return t, nil
}

// ByCategory groups totals by category, largest first.
func (s *Store) ByCategory(ctx context.Context, f domain.AggregateFilter) ([]domain.CategoryTotal, error) {
	sums := make(map[string]decimal.Decimal)
	for _, rw := range s.matching(f) {
		sums[rw.tx.Category] = sums[rw.tx.Category].Add(rw.tx.Amount)
	}

	out := make([]domain.CategoryTotal, 0, len(sums))
	for cat, total := range sums {
		out = append(out, domain.CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return capped(out, f.Limit, domain.CategoryLimit), nil
}

// Recent returns the newest transactions first.
func (s *Store) Recent(ctx context.Context, f domain.AggregateFilter) ([]domain.RecentTransaction, error) {
	rows := s.matching(f)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].tx.Date != rows[j].tx.Date {
			return rows[i].tx.Date.After(rows[j].tx.Date)
		}
		return rows[i].seq > rows[j].seq
	})

	out := make([]domain.RecentTransaction, 0, len(rows))
	for _, rw := range rows {
		out = append(out, domain.RecentTransaction{
			Type:     rw.tx.Type,
			Category: rw.tx.Category,
			Amount:   rw.tx.Amount,
			Date:     rw.tx.Date,
		})
	}
	return capped(out, f.Limit, domain.DefaultRecentLimit), nil
}

// Monthly groups totals by (month, type), most recent month first.
func (s *Store) Monthly(ctx context.Context, f domain.AggregateFilter) ([]domain.MonthlyTotal, error) {
	type key struct {
		month string
		typ   domain.TransactionType
	}
	sums := make(map[key]decimal.Decimal)
	for _, rw := range s.matching(f) {
		k := key{month: fmt.Sprintf("%04d-%02d", rw.tx.Date.Year, int(rw.tx.Date.Month)), typ: rw.tx.Type}
		sums[k] = sums[k].Add(rw.tx.Amount)
	}

	out := make([]domain.MonthlyTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, domain.MonthlyTotal{Month: k.month, Type: k.typ, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return strings.Compare(string(out[i].Type), string(out[j].Type)) < 0
	})
	return capped(out, f.Limit, domain.MonthlyLimit), nil
}

func capped[T any](rows []T, limit, def int) []T {
	if limit <= 0 {
		limit = def
	}
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
