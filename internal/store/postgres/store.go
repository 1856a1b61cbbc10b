// Package postgres implements the transaction store and processed-message set
// on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Store is the Postgres-backed transaction store.
type Store struct {
	db *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{db: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// MarkProcessed inserts messageID into processed_messages. The primary key
// makes the check-and-insert atomic across concurrent deliveries.
func (s *Store) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_messages (message_id) VALUES ($1) ON CONFLICT (message_id) DO NOTHING`,
		messageID)
	if err != nil {
		return false, fmt.Errorf("MarkProcessed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertIfAbsent stores tx unless a row with the same message_id exists.
func (s *Store) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO transactions (message_id, wa_id, contact_name, type, category, amount, date, raw_text)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::date, $8)
		ON CONFLICT (message_id) DO NOTHING`,
		tx.MessageID, tx.SenderID, tx.SenderName, string(tx.Type), tx.Category,
		tx.Amount.String(), tx.Date.String(), tx.RawText)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return false, fmt.Errorf("InsertIfAbsent: %w: %s", domain.ErrInvalidTransaction, pgErr.ConstraintName)
		}
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("InsertIfAbsent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// filterClause is shared by every aggregate. Arguments are
// $1 wa_id, $2 from, $3 to, $4 type filter, $5 category.
const filterClause = `
	WHERE wa_id = $1
	  AND date BETWEEN $2::date AND $3::date
	  AND ($4 = 'Todos' OR type = $4)
	  AND ($5 = '' OR lower(category) = lower($5))`

func filterArgs(f domain.AggregateFilter) []any {
	typ := f.Type
	if typ == "" {
		typ = domain.FilterAll
	}
	return []any{f.SenderID, f.From.String(), f.To.String(), string(typ), f.Category}
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// Totals sums debits and credits for the filter.
func (s *Store) Totals(ctx context.Context, f domain.AggregateFilter) (domain.Totals, error) {
	var debits, credits string
	err := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'Débito' THEN amount ELSE 0 END), 0)::text,
			COALESCE(SUM(CASE WHEN type = 'Crédito' THEN amount ELSE 0 END), 0)::text
		FROM transactions`+filterClause,
		filterArgs(f)...).Scan(&debits, &credits)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("Totals: %w", err)
	}

	var t domain.Totals
	if t.Debits, err = decimal.NewFromString(debits); err != nil {
		return domain.Totals{}, fmt.Errorf("Totals: parse debits: %w", err)
	}
	if t.Credits, err = decimal.NewFromString(credits); err != nil {
		return domain.Totals{}, fmt.Errorf("Totals: parse credits: %w", err)
	}
	return t, nil
}

// ByCategory returns per-category totals, largest first.
func (s *Store) ByCategory(ctx context.Context, f domain.AggregateFilter) ([]domain.CategoryTotal, error) {
	args := append(filterArgs(f), limitOr(f.Limit, domain.CategoryLimit))
	rows, err := s.db.Query(ctx, `
		SELECT category, SUM(amount)::text AS total
		FROM transactions`+filterClause+`
		GROUP BY category
		ORDER BY SUM(amount) DESC, category
		LIMIT $6`, args...)
	if err != nil {
		return nil, fmt.Errorf("ByCategory: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryTotal
	for rows.Next() {
		var (
			ct    domain.CategoryTotal
			total string
		)
		if err := rows.Scan(&ct.Category, &total); err != nil {
			return nil, fmt.Errorf("ByCategory: scan: %w", err)
		}
		if ct.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("ByCategory: parse total: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ByCategory: %w", err)
	}
	return out, nil
}

// Recent returns the newest transactions first.
func (s *Store) Recent(ctx context.Context, f domain.AggregateFilter) ([]domain.RecentTransaction, error) {
	args := append(filterArgs(f), limitOr(f.Limit, domain.DefaultRecentLimit))
	rows, err := s.db.Query(ctx, `
		SELECT type, category, amount::text, to_char(date, 'YYYY-MM-DD')
		FROM transactions`+filterClause+`
		ORDER BY date DESC, id DESC
		LIMIT $6`, args...)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer rows.Close()

	var out []domain.RecentTransaction
	for rows.Next() {
		var (
			rt           domain.RecentTransaction
			typ, amt, dt string
		)
		if err := rows.Scan(&typ, &rt.Category, &amt, &dt); err != nil {
			return nil, fmt.Errorf("Recent: scan: %w", err)
		}
		rt.Type = domain.TransactionType(typ)
		if rt.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("Recent: parse amount: %w", err)
		}
		if rt.Date, err = civil.ParseDate(dt); err != nil {
			return nil, fmt.Errorf("Recent: parse date: %w", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return out, nil
}

// Monthly returns (month, type) totals, most recent month first.
func (s *Store) Monthly(ctx context.Context, f domain.AggregateFilter) ([]domain.MonthlyTotal, error) {
	args := append(filterArgs(f), limitOr(f.Limit, domain.MonthlyLimit))
	rows, err := s.db.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM') AS month, type, SUM(amount)::text
		FROM transactions`+filterClause+`
		GROUP BY 1, 2
		ORDER BY 1 DESC, 2
		LIMIT $6`, args...)
	if err != nil {
		return nil, fmt.Errorf("Monthly: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlyTotal
	for rows.Next() {
		var (
			mt         domain.MonthlyTotal
			typ, total string
		)
		if err := rows.Scan(&mt.Month, &typ, &total); err != nil {
			return nil, fmt.Errorf("Monthly: scan: %w", err)
		}
		mt.Type = domain.TransactionType(typ)
		if mt.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("Monthly: parse total: %w", err)
		}
		out = append(out, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Monthly: %w", err)
	}
	return out, nil
}

// ListTransactions returns every transaction dated within r, oldest first.
// It is used to replay rows into the mirrors.
func (s *Store) ListTransactions(ctx context.Context, r domain.DateRange) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT message_id, wa_id, contact_name, type, category, amount::text,
		       to_char(date, 'YYYY-MM-DD'), raw_text
		FROM transactions
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date, id`, r.From.String(), r.To.String())
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transaction, error) {
		var (
			tx           domain.Transaction
			typ, amt, dt string
		)
		if err := row.Scan(&tx.MessageID, &tx.SenderID, &tx.SenderName, &typ, &tx.Category, &amt, &dt, &tx.RawText); err != nil {
			return tx, err
		}
		tx.Type = domain.TransactionType(typ)
		var err error
		if tx.Amount, err = decimal.NewFromString(amt); err != nil {
			return tx, err
		}
		tx.Date, err = civil.ParseDate(dt)
		return tx, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, nil
}
