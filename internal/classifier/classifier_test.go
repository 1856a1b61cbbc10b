package classifier

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeGenerator is a mock contentGenerator for testing.
type fakeGenerator struct {
	GenerateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	calls []*genai.Content
	cfgs  []*genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, contents...)
	f.cfgs = append(f.cfgs, config)
	return f.GenerateFunc(ctx, model, contents, config)
}

func replying(text string) *fakeGenerator {
	return &fakeGenerator{
		GenerateFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(text), nil
		},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

var ref = civil.Date{Year: 2025, Month: time.October, Day: 15}

func TestClassifyTransaction(t *testing.T) {
	gen := replying(`{"transaction":{"type":"Débito","category":"Mercado","amount":50,"date":"15/10/2025"}}`)
	g := newGemini(gen, "", time.Second)

	tx, err := g.ClassifyTransaction(context.Background(), "gastei 50 no mercado hoje", ref)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, domain.Debit, tx.Type)
	assert.Equal(t, "Mercado", tx.Category)
	assert.True(t, decimal.NewFromInt(50).Equal(tx.Amount))
	assert.Equal(t, ref, tx.Date)

	require.Len(t, gen.calls, 1)
	parts := gen.calls[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "Data de referência: 15/10/2025", parts[1].Text)
	assert.Equal(t, "Mensagem: gastei 50 no mercado hoje", parts[2].Text)
	assert.Equal(t, "application/json", gen.cfgs[0].ResponseMIMEType)
}

func TestClassifyTransaction_Variants(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantNil  bool
		wantErr  bool
		wantType domain.TransactionType
		wantCat  string
		wantAmt  string
		wantDate civil.Date
	}{
		{
			name:    "null transaction",
			raw:     `{"transaction": null}`,
			wantNil: true,
		},
		{
			name:     "fenced output with string amount",
			raw:      "```json\n{\"transaction\":{\"type\":\"credito\",\"category\":\"\",\"amount\":\"R$ 1.234,56\",\"date\":\"2025-10-01\"}}\n```",
			wantType: domain.Credit,
			wantCat:  domain.DefaultCategory,
			wantAmt:  "1234.56",
			wantDate: civil.Date{Year: 2025, Month: time.October, Day: 1},
		},
		{
			name:     "missing date uses reference",
			raw:      `{"transaction":{"type":"Débito","category":"Transporte","amount":12.3}}`,
			wantType: domain.Debit,
			wantCat:  "Transporte",
			wantAmt:  "12.3",
			wantDate: ref,
		},
		{
			name:    "unknown type",
			raw:     `{"transaction":{"type":"Transferência","category":"X","amount":1,"date":"15/10/2025"}}`,
			wantErr: true,
		},
		{
			name:    "missing amount",
			raw:     `{"transaction":{"type":"Débito","category":"X","date":"15/10/2025"}}`,
			wantErr: true,
		},
		{
			name:    "bad date",
			raw:     `{"transaction":{"type":"Débito","category":"X","amount":1,"date":"ontem"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `desculpe, não sei`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGemini(replying(tt.raw), "", 0)
			tx, err := g.ClassifyTransaction(context.Background(), "texto", ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedOutput)
				assert.Nil(t, tx)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, tx)
				return
			}
			require.NotNil(t, tx)
			assert.Equal(t, tt.wantType, tx.Type)
			assert.Equal(t, tt.wantCat, tx.Category)
			assert.True(t, decimal.RequireFromString(tt.wantAmt).Equal(tx.Amount), "amount %s", tx.Amount)
			assert.Equal(t, tt.wantDate, tx.Date)
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.QueryIntent
	}{
		{
			name: "chat",
			raw:  `{"intent":"chat"}`,
			want: domain.QueryIntent{Intent: domain.IntentChat},
		},
		{
			name: "query with defaults",
			raw:  `{"intent":"consulta","range":null,"type":"Todos","focus":"totais","category":null}`,
			want: domain.QueryIntent{Intent: domain.IntentQuery, Type: domain.FilterAll, Focus: domain.FocusTotals},
		},
		{
			name: "query with range and category",
			raw:  `{"intent":"consulta","range":{"from":"30/09/2025","to":"01/09/2025"},"type":"Débito","focus":"categorias","category":" Mercado "}`,
			want: domain.QueryIntent{
				Intent: domain.IntentQuery,
				Range: &domain.DateRange{
					From: civil.Date{Year: 2025, Month: time.September, Day: 1},
					To:   civil.Date{Year: 2025, Month: time.September, Day: 30},
				},
				Type:     domain.FilterDebit,
				Focus:    domain.FocusByCategory,
				Category: "Mercado",
			},
		},
		{
			name: "half range is dropped",
			raw:  `{"intent":"consulta","range":{"from":"01/09/2025","to":""},"focus":"mensal"}`,
			want: domain.QueryIntent{Intent: domain.IntentQuery, Type: domain.FilterAll, Focus: domain.FocusMonthly},
		},
		{
			name: "unknown intent is chat",
			raw:  `{"intent":"saudação"}`,
			want: domain.QueryIntent{Intent: domain.IntentChat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGemini(replying(tt.raw), "", 0)
			got, err := g.ClassifyIntent(context.Background(), "quanto gastei", ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestClassifyIntent_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	g := newGemini(&fakeGenerator{
		GenerateFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, boom
		},
	}, "", 0)

	_, err := g.ClassifyIntent(context.Background(), "oi", ref)
	assert.ErrorIs(t, err, boom)

	g = newGemini(replying(""), "", 0)
	_, err = g.ClassifyIntent(context.Background(), "oi", ref)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRejectedOutputIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	g := newGemini(replying("isto não é json"), "", 0)

	_, err := g.ClassifyTransaction(ctx, "gastei 50", ref)
	require.Error(t, err)
	_, err = g.ClassifyIntent(ctx, "quanto gastei", ref)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "transaction output rejected")
	assert.Contains(t, out, "intent output rejected")
	assert.Contains(t, out, "isto não é json")
}

func TestGenerate_AppliesTimeout(t *testing.T) {
	gen := &fakeGenerator{
		GenerateFunc: func(ctx context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	g := newGemini(gen, "gemini-test", 10*time.Millisecond)

	_, err := g.ClassifyTransaction(context.Background(), "texto", ref)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChat(t *testing.T) {
	gen := replying("Olá, Ana!")
	g := newGemini(gen, "", 0)

	reply, err := g.Chat(context.Background(), "oi", domain.ChatContext{SenderName: "Ana", SenderID: "5511"})
	require.NoError(t, err)
	assert.Equal(t, "Olá, Ana!", reply)

	parts := gen.calls[0].Parts
	assert.Contains(t, parts[1].Text, `"contactName":"Ana"`)
	assert.Contains(t, parts[1].Text, `"waId":"5511"`)
	assert.True(t, strings.HasSuffix(parts[2].Text, "oi"))
	assert.Nil(t, gen.cfgs[0])
}

func TestChat_EmptyReply(t *testing.T) {
	g := newGemini(replying("  "), "", 0)
	reply, err := g.Chat(context.Background(), "oi", domain.ChatContext{})
	require.NoError(t, err)
	assert.Equal(t, "Certo!", reply)
}

func TestDisabled(t *testing.T) {
	var d Disabled
	ctx := context.Background()

	tx, err := d.ClassifyTransaction(ctx, "gastei 50", ref)
	assert.NoError(t, err)
	assert.Nil(t, tx)

	q, err := d.ClassifyIntent(ctx, "quanto gastei", ref)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentChat, q.Intent)

	reply, err := d.Chat(ctx, "oi", domain.ChatContext{})
	require.NoError(t, err)
	assert.Equal(t, DisabledReply, reply)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Aqui está: {\"a\":1} obrigado", `{"a":1}`},
		{"```", "```"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanModelJSON(tt.in))
	}
}
