package router

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
)

// ProcessedSet records handled message ids.
type ProcessedSet interface {
	// MarkProcessed atomically adds id and reports whether it was absent.
	// Concurrent calls with the same id must return true at most once.
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
}

// TransactionStore persists transactions and answers the read aggregates.
// Every aggregate is scoped by AggregateFilter.SenderID.
type TransactionStore interface {
	// InsertIfAbsent stores tx unless a row with the same message id exists.
	InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error)

	Totals(ctx context.Context, f domain.AggregateFilter) (domain.Totals, error)
	ByCategory(ctx context.Context, f domain.AggregateFilter) ([]domain.CategoryTotal, error)
	Recent(ctx context.Context, f domain.AggregateFilter) ([]domain.RecentTransaction, error)
	Monthly(ctx context.Context, f domain.AggregateFilter) ([]domain.MonthlyTotal, error)
}

// Classifier turns free text into a transaction or a query intent.
type Classifier interface {
	// ClassifyTransaction returns nil when text is not a transaction.
	ClassifyTransaction(ctx context.Context, text string, ref civil.Date) (*domain.Transaction, error)
	ClassifyIntent(ctx context.Context, text string, ref civil.Date) (*domain.QueryIntent, error)
}

// ChatResponder answers text that is neither a transaction nor a query.
type ChatResponder interface {
	Chat(ctx context.Context, text string, cc domain.ChatContext) (string, error)
}

// Notifier delivers replies to WhatsApp.
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Mirror receives a best-effort copy of every stored transaction.
type Mirror interface {
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
}
