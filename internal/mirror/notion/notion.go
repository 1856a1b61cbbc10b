// Package notion mirrors transactions into a Notion database, one page per
// WhatsApp message.
package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropMessageID = "Message ID"
	PropType      = "Type"
	PropCategory  = "Category"
	PropAmount    = "Amount"
	PropDate      = "Date"
	PropContact   = "Contact"
	PropWaID      = "WA ID"
	PropRawText   = "Raw Text"
)

// Mirror creates one Notion page per transaction, skipping message ids that
// already have a page.
type Mirror struct {
	svc        Service
	databaseID string
}

// New creates a Mirror writing to databaseID.
func New(svc Service, databaseID string) *Mirror {
	return &Mirror{svc: svc, databaseID: databaseID}
}

// AppendTransaction implements the mirror contract.
func (m *Mirror) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	exists, err := m.exists(ctx, tx.MessageID)
	if err != nil {
		return fmt.Errorf("notion.AppendTransaction: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := m.svc.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx)); err != nil {
		return fmt.Errorf("notion.AppendTransaction: %w", err)
	}
	return nil
}

func (m *Mirror) exists(ctx context.Context, messageID string) (bool, error) {
	resp, err := m.svc.QueryDatabase(ctx, m.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: PropMessageID,
			RichText: &notionapi.TextFilterCondition{Equals: messageID},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, err
	}
	return len(resp.Results) > 0, nil
}

// TransactionToNotionProperties maps a transaction to page properties.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropMessageID: notionapi.TitleProperty{
			Title: richText(tx.MessageID),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.Date(tx.Date.Year, tx.Date.Month, tx.Date.Day, 0, 0, 0, 0, time.UTC))
					return &d
				}(),
			},
		},
		PropWaID: notionapi.RichTextProperty{
			RichText: richText(tx.SenderID),
		},
	}

	if tx.SenderName != "" {
		props[PropContact] = notionapi.RichTextProperty{RichText: richText(tx.SenderName)}
	}
	if tx.RawText != "" {
		props[PropRawText] = notionapi.RichTextProperty{RichText: richText(tx.RawText)}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}
