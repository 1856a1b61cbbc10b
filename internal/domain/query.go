package domain

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Intent is the classifier's decision for text that is not a transaction.
type Intent string

const (
	IntentQuery Intent = "consulta"
	IntentChat  Intent = "chat"
)

// TypeFilter restricts aggregates to one transaction type or all of them.
type TypeFilter string

const (
	FilterDebit  TypeFilter = TypeFilter(Debit)
	FilterCredit TypeFilter = TypeFilter(Credit)
	FilterAll    TypeFilter = "Todos"
)

// ParseTypeFilter maps free text to a filter, defaulting to FilterAll.
func ParseTypeFilter(s string) TypeFilter {
	if typ, ok := ParseTransactionType(s); ok {
		return TypeFilter(typ)
	}
	return FilterAll
}

// Focus selects which aggregate answers a query.
type Focus string

const (
	FocusTotals     Focus = "totais"
	FocusByCategory Focus = "categorias"
	FocusRecent     Focus = "recentes"
	FocusMonthly    Focus = "mensal"
)

// ParseFocus maps free text to a focus, defaulting to FocusTotals.
func ParseFocus(s string) Focus {
	switch Focus(strings.ToLower(strings.TrimSpace(s))) {
	case FocusByCategory:
		return FocusByCategory
	case FocusRecent:
		return FocusRecent
	case FocusMonthly:
		return FocusMonthly
	}
	return FocusTotals
}

// QueryIntent is the structured form of a financial question.
type QueryIntent struct {
	Intent   Intent     `json:"intent"`
	Range    *DateRange `json:"range,omitempty"`
	Type     TypeFilter `json:"type"`
	Focus    Focus      `json:"focus"`
	Category string     `json:"category,omitempty"`
}

// ResolveRange returns the explicit range, or month-to-date when absent.
func (q QueryIntent) ResolveRange(today civil.Date) DateRange {
	if q.Range == nil {
		return MonthToDate(today)
	}
	return q.Range.Ordered()
}

// AggregateFilter scopes every read aggregate. SenderID is mandatory: rows of
// other senders must never be visible.
type AggregateFilter struct {
	SenderID string
	From     civil.Date
	To       civil.Date
	Type     TypeFilter
	Category string
	Limit    int
}

// Totals is the debit and credit sum over a filter.
type Totals struct {
	Debits  decimal.Decimal `json:"total_debitos"`
	Credits decimal.Decimal `json:"total_creditos"`
}

// CategoryTotal is one row of the by-category aggregate.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// RecentTransaction is one row of the recent-transactions aggregate.
type RecentTransaction struct {
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Date     civil.Date      `json:"date"`
}

// MonthlyTotal is one (month, type) row of the monthly aggregate.
type MonthlyTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Type  TransactionType `json:"type"`
	Total decimal.Decimal `json:"total"`
}

// Aggregate limits shared by the stores.
const (
	CategoryLimit      = 20
	MonthlyLimit       = 12
	DefaultRecentLimit = 5
)

// Matches reports whether tx falls inside f. Category compares case-insensitively.
func (f AggregateFilter) Matches(tx *Transaction) bool {
	if tx.SenderID != f.SenderID {
		return false
	}
	if tx.Date.Before(f.From) || tx.Date.After(f.To) {
		return false
	}
	if f.Type != "" && f.Type != FilterAll && TypeFilter(tx.Type) != f.Type {
		return false
	}
	if f.Category != "" && !strings.EqualFold(strings.TrimSpace(f.Category), tx.Category) {
		return false
	}
	return true
}
