package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"google.golang.org/genai"
)

const (
	// DefaultModelName is the Gemini model used when none is configured.
	DefaultModelName = "gemini-2.5-flash"

	// DisabledReply is the chat answer when no API key is configured.
	DisabledReply = "IA não configurada no momento."

	emptyChatReply = "Certo!"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini classifies WhatsApp text and answers chat through the Gemini API.
// It is built once at startup and shared by every request.
type Gemini struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGemini creates a classifier backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return newGemini(client.Models, model, timeout), nil
}

func newGemini(models contentGenerator, model string, timeout time.Duration) *Gemini {
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{models: models, model: model, timeout: timeout}
}

// ClassifyTransaction extracts a transaction from text. It returns (nil, nil)
// when the model says the text is not a transaction.
func (g *Gemini) ClassifyTransaction(ctx context.Context, text string, ref civil.Date) (*domain.Transaction, error) {
	raw, err := g.generate(ctx, jsonConfig(), transactionInstructions, referenceLine(ref), "Mensagem: "+text)
	if err != nil {
		return nil, fmt.Errorf("ClassifyTransaction: %w", err)
	}
	tx, err := decodeTransaction(raw, ref)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Str("raw_response", raw).Msg("transaction output rejected")
		return nil, fmt.Errorf("ClassifyTransaction: %w", err)
	}
	return tx, nil
}

// ClassifyIntent decides whether text is a financial query or chat.
func (g *Gemini) ClassifyIntent(ctx context.Context, text string, ref civil.Date) (*domain.QueryIntent, error) {
	raw, err := g.generate(ctx, jsonConfig(), intentInstructions, referenceLine(ref), "Mensagem: "+text)
	if err != nil {
		return nil, fmt.Errorf("ClassifyIntent: %w", err)
	}
	q, err := decodeIntent(raw)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Str("raw_response", raw).Msg("intent output rejected")
		return nil, fmt.Errorf("ClassifyIntent: %w", err)
	}
	return q, nil
}

// Chat answers free-form text. The reply is returned verbatim.
func (g *Gemini) Chat(ctx context.Context, text string, cc domain.ChatContext) (string, error) {
	ctxJSON, err := json.Marshal(cc)
	if err != nil {
		return "", fmt.Errorf("Chat: marshal context: %w", err)
	}
	raw, err := g.generate(ctx, nil, chatInstructions, "Contexto:\n"+string(ctxJSON), "Pergunta do usuário:\n"+text)
	if errors.Is(err, ErrEmptyResponse) {
		return emptyChatReply, nil
	}
	if err != nil {
		return "", fmt.Errorf("Chat: %w", err)
	}
	return raw, nil
}

func (g *Gemini) generate(ctx context.Context, cfg *genai.GenerateContentConfig, parts ...string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	content := &genai.Content{Role: "user"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}

	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{content}, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func jsonConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
}

func referenceLine(ref civil.Date) string {
	return "Data de referência: " + domain.FormatBRDate(ref)
}

// Disabled stands in for Gemini when no API key is configured. Nothing is a
// transaction, everything is chat, and chat answers with DisabledReply.
type Disabled struct{}

// ClassifyTransaction always reports no transaction.
func (Disabled) ClassifyTransaction(context.Context, string, civil.Date) (*domain.Transaction, error) {
	return nil, nil
}

// ClassifyIntent always reports chat.
func (Disabled) ClassifyIntent(context.Context, string, civil.Date) (*domain.QueryIntent, error) {
	return &domain.QueryIntent{Intent: domain.IntentChat}, nil
}

// Chat always returns DisabledReply.
func (Disabled) Chat(context.Context, string, domain.ChatContext) (string, error) {
	return DisabledReply, nil
}
