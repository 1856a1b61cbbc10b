package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrMalformedOutput is returned when the model answer cannot be mapped to the
// expected structure.
var ErrMalformedOutput = errors.New("malformed model output")

type transactionEnvelope struct {
	Transaction *rawTransaction `json:"transaction"`
}

type rawTransaction struct {
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Amount   json.RawMessage `json:"amount"`
	Date     string          `json:"date"`
}

type rawIntent struct {
	Intent string `json:"intent"`
	Range  *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"range"`
	Type     string  `json:"type"`
	Focus    string  `json:"focus"`
	Category *string `json:"category"`
}

// decodeTransaction maps the parser answer into a Transaction. A null
// transaction yields (nil, nil).
func decodeTransaction(raw string, ref civil.Date) (*domain.Transaction, error) {
	var env transactionEnvelope
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if env.Transaction == nil {
		return nil, nil
	}
	rt := env.Transaction

	typ, ok := domain.ParseTransactionType(rt.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedOutput, rt.Type)
	}

	amount, err := parseAmount(rt.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrMalformedOutput, err)
	}

	date := ref
	if strings.TrimSpace(rt.Date) != "" {
		date, err = parseDate(rt.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date: %v", ErrMalformedOutput, err)
		}
	}

	tx := &domain.Transaction{
		Type:     typ,
		Category: rt.Category,
		Amount:   amount,
		Date:     date,
	}
	tx.Normalize()
	return tx, nil
}

// decodeIntent maps the router answer into a QueryIntent. Anything that is
// not an explicit query is chat.
func decodeIntent(raw string) (*domain.QueryIntent, error) {
	var ri rawIntent
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &ri); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if !strings.EqualFold(strings.TrimSpace(ri.Intent), string(domain.IntentQuery)) {
		return &domain.QueryIntent{Intent: domain.IntentChat}, nil
	}

	q := &domain.QueryIntent{
		Intent: domain.IntentQuery,
		Type:   domain.ParseTypeFilter(ri.Type),
		Focus:  domain.ParseFocus(ri.Focus),
	}
	if ri.Category != nil {
		q.Category = strings.TrimSpace(*ri.Category)
	}

	// A half-specified or unreadable range falls back to month-to-date.
	if ri.Range != nil {
		from, errFrom := parseDate(ri.Range.From)
		to, errTo := parseDate(ri.Range.To)
		if errFrom == nil && errTo == nil {
			r := domain.DateRange{From: from, To: to}.Ordered()
			q.Range = &r
		}
	}
	return q, nil
}

// parseDate accepts DD/MM/YYYY and falls back to ISO YYYY-MM-DD.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := domain.ParseBRDate(s); err == nil {
		return d, nil
	}
	return civil.ParseDate(s)
}

// parseAmount reads a JSON number or a string such as "R$ 1.234,56".
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Decimal{}, errors.New("missing")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Decimal{}, err
		}
		s = normalizeAmountText(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

func normalizeAmountText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
