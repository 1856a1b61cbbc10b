package router

import (
	"fmt"
	"strings"

	"github.com/dvloznov/wa-finance/internal/domain"
)

// Fixed replies.
const (
	FallbackReply    = "Não entendi. Pode reformular?"
	NonTextReply     = "Recebi sua mensagem! (não-texto)"
	NoRecordsReply   = "Sem registros para o período."
	QueryFailedReply = "Não foi possível consultar seus registros agora."
)

const uncategorized = "Sem categoria"

// FormatTransaction renders the four-line confirmation for a parsed transaction.
func FormatTransaction(tx *domain.Transaction) string {
	return fmt.Sprintf("Tipo: %s\nCategoria: %s\nValor: %s\nData: %s",
		tx.Type, tx.Category, domain.FormatBRL(tx.Amount), domain.FormatBRDate(tx.Date))
}

// FormatTotals renders the debit and credit totals on two lines.
func FormatTotals(t domain.Totals) string {
	return fmt.Sprintf("Débitos: R$ %s\nCréditos: R$ %s",
		domain.FormatBRL(t.Debits), domain.FormatBRL(t.Credits))
}

// FormatByCategory renders one line per category in the order given.
func FormatByCategory(rows []domain.CategoryTotal) string {
	if len(rows) == 0 {
		return NoRecordsReply
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		cat := strings.TrimSpace(r.Category)
		if cat == "" {
			cat = uncategorized
		}
		lines = append(lines, fmt.Sprintf("- %s: R$ %s", cat, domain.FormatBRL(r.Total)))
	}
	return strings.Join(lines, "\n")
}

// FormatRecent renders one line per transaction, newest first as given.
func FormatRecent(rows []domain.RecentTransaction) string {
	if len(rows) == 0 {
		return NoRecordsReply
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		cat := strings.TrimSpace(r.Category)
		if cat == "" {
			cat = uncategorized
		}
		lines = append(lines, fmt.Sprintf("- %s • %s • %s: R$ %s",
			domain.FormatBRDayMonth(r.Date), cat, r.Type, domain.FormatBRL(r.Amount)))
	}
	return strings.Join(lines, "\n")
}

// FormatMonthly renders one line per (month, type) pair, capped at
// domain.MonthlyLimit lines.
func FormatMonthly(rows []domain.MonthlyTotal) string {
	if len(rows) == 0 {
		return NoRecordsReply
	}
	if len(rows) > domain.MonthlyLimit {
		rows = rows[:domain.MonthlyLimit]
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("- %s • %s: R$ %s", r.Month, r.Type, domain.FormatBRL(r.Total)))
	}
	return strings.Join(lines, "\n")
}
