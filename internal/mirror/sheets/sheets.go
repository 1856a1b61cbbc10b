// Package sheets mirrors transactions into a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/wa-finance/internal/domain"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultRange is the append target when none is configured.
const DefaultRange = "Transações!A:I"

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Config configures the mirror.
type Config struct {
	SpreadsheetID string
	Range         string
	Credentials   Credentials
}

// Mirror appends one row per transaction.
type Mirror struct {
	svc           *sheetsapi.Service
	tokens        oauth2.TokenSource
	clientEmail   string
	spreadsheetID string
	rng           string
	now           func() time.Time
}

// New resolves credentials and creates the Sheets service once.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets.New: SPREADSHEET_ID is empty")
	}
	conf, err := ResolveCredentials(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("sheets.New: %w", err)
	}
	tokens := conf.TokenSource(ctx)

	svc, err := sheetsapi.NewService(ctx, option.WithTokenSource(tokens))
	if err != nil {
		return nil, fmt.Errorf("sheets.New: create service: %w", err)
	}
	m := NewWithService(svc, cfg.SpreadsheetID, cfg.Range)
	m.tokens = tokens
	m.clientEmail = conf.Email
	return m, nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *sheetsapi.Service, spreadsheetID, rng string) *Mirror {
	if rng == "" {
		rng = DefaultRange
	}
	return &Mirror{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		rng:           rng,
		now:           time.Now,
	}
}

// Row maps a transaction to the spreadsheet columns A..I.
func Row(tx *domain.Transaction, appendedAt time.Time) []interface{} {
	return []interface{}{
		domain.FormatBRDate(tx.Date),
		string(tx.Type),
		tx.Category,
		tx.Amount.InexactFloat64(),
		tx.SenderName,
		tx.SenderID,
		tx.RawText,
		tx.MessageID,
		appendedAt.UTC().Format(isoMillis),
	}
}

// AppendTransaction appends tx as a new row.
func (m *Mirror) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{Row(tx, m.now())}}
	_, err := m.svc.Spreadsheets.Values.Append(m.spreadsheetID, m.rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets.AppendTransaction: %w", err)
	}
	return nil
}

// CheckResult reports spreadsheet connectivity.
type CheckResult struct {
	ClientEmail string   `json:"client_email,omitempty"`
	Title       string   `json:"title"`
	Sheets      []string `json:"sheets"`
}

// Check authorizes against Google and reads the spreadsheet metadata.
func (m *Mirror) Check(ctx context.Context) (*CheckResult, error) {
	if m.tokens != nil {
		if _, err := m.tokens.Token(); err != nil {
			return nil, fmt.Errorf("sheets.Check: authorize: %w", err)
		}
	}

	ss, err := m.svc.Spreadsheets.Get(m.spreadsheetID).
		Fields("properties.title", "sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets.Check: get spreadsheet: %w", err)
	}

	res := &CheckResult{ClientEmail: m.clientEmail}
	if ss.Properties != nil {
		res.Title = ss.Properties.Title
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			res.Sheets = append(res.Sheets, s.Properties.Title)
		}
	}
	return res, nil
}
