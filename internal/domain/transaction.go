package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a money movement as stored in the
// transactions table.
type TransactionType string

const (
	Debit  TransactionType = "Débito"
	Credit TransactionType = "Crédito"
)

// DefaultCategory is used when the classifier returns a blank category.
const DefaultCategory = "Outros"

// ParseTransactionType accepts the stored spelling plus the unaccented and
// English variants the model sometimes produces.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "débito", "debito", "debit":
		return Debit, true
	case "crédito", "credito", "credit":
		return Credit, true
	}
	return TransactionType(s), false
}

// Transaction represents one parsed financial movement from a WhatsApp message.
// This is a domain struct; stores and mirrors map it into their own schemas.
type Transaction struct {
	Type     TransactionType `json:"type" validate:"required,oneof=Débito Crédito"`
	Category string          `json:"category" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"gte=0"`
	Date     civil.Date      `json:"date" validate:"required"`

	RawText    string `json:"raw_text"`
	SenderID   string `json:"wa_id" validate:"required"`
	SenderName string `json:"contact_name"`
	MessageID  string `json:"message_id" validate:"required"`
}

// Normalize trims free-form fields and applies the category default.
func (t *Transaction) Normalize() {
	t.Category = strings.TrimSpace(t.Category)
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	if typ, ok := ParseTransactionType(string(t.Type)); ok {
		t.Type = typ
	}
}

// DateTime returns the transaction date at midnight UTC, the form the SQL
// drivers expect for DATE columns.
func (t *Transaction) DateTime() time.Time {
	return t.Date.In(time.UTC)
}
