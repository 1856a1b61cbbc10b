package router_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/router"
	"github.com/dvloznov/wa-finance/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClassifier is a mock implementation of router.Classifier.
type MockClassifier struct {
	ClassifyTransactionFunc func(ctx context.Context, text string, ref civil.Date) (*domain.Transaction, error)
	ClassifyIntentFunc      func(ctx context.Context, text string, ref civil.Date) (*domain.QueryIntent, error)

	transactionCalls int32
	intentCalls      int32
}

func (m *MockClassifier) ClassifyTransaction(ctx context.Context, text string, ref civil.Date) (*domain.Transaction, error) {
	atomic.AddInt32(&m.transactionCalls, 1)
	if m.ClassifyTransactionFunc != nil {
		return m.ClassifyTransactionFunc(ctx, text, ref)
	}
	return nil, nil
}

func (m *MockClassifier) ClassifyIntent(ctx context.Context, text string, ref civil.Date) (*domain.QueryIntent, error) {
	atomic.AddInt32(&m.intentCalls, 1)
	if m.ClassifyIntentFunc != nil {
		return m.ClassifyIntentFunc(ctx, text, ref)
	}
	return &domain.QueryIntent{Intent: domain.IntentChat}, nil
}

// MockChat is a mock implementation of router.ChatResponder.
type MockChat struct {
	ChatFunc func(ctx context.Context, text string, cc domain.ChatContext) (string, error)
	calls    int32
}

func (m *MockChat) Chat(ctx context.Context, text string, cc domain.ChatContext) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, text, cc)
	}
	return "Olá!", nil
}

type sent struct {
	to   string
	body string
}

// MockNotifier records every outbound message.
type MockNotifier struct {
	SendTextFunc func(ctx context.Context, to, body string) error
	MarkReadFunc func(ctx context.Context, messageID string) error

	mu    sync.Mutex
	sends []sent
	reads []string
}

func (m *MockNotifier) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	m.sends = append(m.sends, sent{to: to, body: body})
	m.mu.Unlock()
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, to, body)
	}
	return nil
}

func (m *MockNotifier) MarkRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	m.reads = append(m.reads, messageID)
	m.mu.Unlock()
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, messageID)
	}
	return nil
}

func (m *MockNotifier) Sends() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sends...)
}

// MockMirror is a mock implementation of router.Mirror.
type MockMirror struct {
	AppendTransactionFunc func(ctx context.Context, tx *domain.Transaction) error
	calls                 int32
}

func (m *MockMirror) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	atomic.AddInt32(&m.calls, 1)
	if m.AppendTransactionFunc != nil {
		return m.AppendTransactionFunc(ctx, tx)
	}
	return nil
}

// failingStore wraps the memory store and fails selected operations.
type failingStore struct {
	*memory.Store
	insertErr    error
	aggregateErr error
	processedErr error

	aggregateCalls int32
	lastFilter     domain.AggregateFilter
}

func (s *failingStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if s.processedErr != nil {
		return false, s.processedErr
	}
	return s.Store.MarkProcessed(ctx, id)
}

func (s *failingStore) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	return s.Store.InsertIfAbsent(ctx, tx)
}

func (s *failingStore) record(f domain.AggregateFilter) error {
	atomic.AddInt32(&s.aggregateCalls, 1)
	s.lastFilter = f
	return s.aggregateErr
}

func (s *failingStore) Totals(ctx context.Context, f domain.AggregateFilter) (domain.Totals, error) {
	if err := s.record(f); err != nil {
		return domain.Totals{}, err
	}
	return s.Store.Totals(ctx, f)
}

func (s *failingStore) ByCategory(ctx context.Context, f domain.AggregateFilter) ([]domain.CategoryTotal, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	return s.Store.ByCategory(ctx, f)
}

func (s *failingStore) Recent(ctx context.Context, f domain.AggregateFilter) ([]domain.RecentTransaction, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	return s.Store.Recent(ctx, f)
}

func (s *failingStore) Monthly(ctx context.Context, f domain.AggregateFilter) ([]domain.MonthlyTotal, error) {
	if err := s.record(f); err != nil {
		return nil, err
	}
	return s.Store.Monthly(ctx, f)
}

// 2025-10-15 12:00 in São Paulo.
var fixedNow = time.Date(2025, time.October, 15, 15, 0, 0, 0, time.UTC)

var today = civil.Date{Year: 2025, Month: time.October, Day: 15}

type harness struct {
	store      *failingStore
	classifier *MockClassifier
	chat       *MockChat
	notifier   *MockNotifier
	mirror     *MockMirror
	router     *router.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	h := &harness{
		store:      &failingStore{Store: memory.New()},
		classifier: &MockClassifier{},
		chat:       &MockChat{},
		notifier:   &MockNotifier{},
		mirror:     &MockMirror{},
	}
	h.router = router.New(h.store, h.store, h.classifier, h.chat, h.notifier,
		router.WithMirror(h.mirror),
		router.WithLocation(loc),
		router.WithClock(func() time.Time { return fixedNow }),
	)
	return h
}

func textEvent(id, text string) domain.InboundEvent {
	return domain.InboundEvent{
		MessageID:  id,
		SenderID:   "5511999999999",
		SenderName: "Ana",
		Kind:       domain.KindText,
		Text:       text,
	}
}

func groceries(_ context.Context, _ string, ref civil.Date) (*domain.Transaction, error) {
	return &domain.Transaction{Type: domain.Debit, Category: "Mercado", Amount: decimal.NewFromInt(50), Date: ref}, nil
}

func TestHandle_TransactionScenario(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = groceries
	ctx := context.Background()

	res, err := h.router.Handle(ctx, textEvent("wamid.1", "gastei 50 no mercado hoje"))
	require.NoError(t, err)
	assert.Equal(t, router.OutcomeReplied, res.Outcome)
	assert.Equal(t, router.BranchTransaction, res.Branch)
	assert.True(t, res.Inserted)
	assert.Equal(t, "Tipo: Débito\nCategoria: Mercado\nValor: 50,00\nData: 15/10/2025", res.Reply)
	assert.Equal(t, 1, h.store.Count())
	assert.Equal(t, int32(1), h.mirror.calls)

	sends := h.notifier.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "5511999999999", sends[0].to)
	assert.Equal(t, res.Reply, sends[0].body)

	// Redelivery of the same message id.
	res, err = h.router.Handle(ctx, textEvent("wamid.1", "gastei 50 no mercado hoje"))
	require.NoError(t, err)
	assert.Equal(t, router.OutcomeAlreadyHandled, res.Outcome)
	assert.Equal(t, 1, h.store.Count())
	assert.Len(t, h.notifier.Sends(), 1)
	assert.Equal(t, int32(1), h.classifier.transactionCalls)
}

func TestHandle_StoredTransactionProvenance(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = groceries
	ctx := context.Background()

	_, err := h.router.Handle(ctx, textEvent("wamid.1", "  gastei 50 no mercado hoje "))
	require.NoError(t, err)

	rows, err := h.store.ListTransactions(ctx, domain.DateRange{From: today, To: today})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "wamid.1", rows[0].MessageID)
	assert.Equal(t, "5511999999999", rows[0].SenderID)
	assert.Equal(t, "Ana", rows[0].SenderName)
	assert.Equal(t, "gastei 50 no mercado hoje", rows[0].RawText)
}

func TestHandle_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = groceries

	var wg sync.WaitGroup
	outcomes := make(chan router.Outcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.router.Handle(context.Background(), textEvent("wamid.dup", "gastei 50 no mercado hoje"))
			assert.NoError(t, err)
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	replied := 0
	for o := range outcomes {
		if o == router.OutcomeReplied {
			replied++
		} else {
			assert.Equal(t, router.OutcomeAlreadyHandled, o)
		}
	}
	assert.Equal(t, 1, replied)
	assert.Equal(t, 1, h.store.Count())
	assert.Len(t, h.notifier.Sends(), 1)
}

func TestHandle_DedupFailureStillReplies(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = groceries
	h.store.processedErr = errors.New("connection refused")

	for i := 0; i < 2; i++ {
		res, err := h.router.Handle(context.Background(), textEvent("wamid.same", "gastei 50 no mercado hoje"))
		require.NoError(t, err)
		assert.Equal(t, router.OutcomeReplied, res.Outcome)
	}

	// The transaction row itself stays unique by message id.
	assert.Equal(t, 1, h.store.Count())
	assert.Len(t, h.notifier.Sends(), 2)
}

func TestHandle_PriorityLaw(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = groceries
	h.classifier.ClassifyIntentFunc = func(context.Context, string, civil.Date) (*domain.QueryIntent, error) {
		return &domain.QueryIntent{Intent: domain.IntentQuery, Focus: domain.FocusTotals}, nil
	}

	res, err := h.router.Handle(context.Background(), textEvent("wamid.1", "gastei 50, quanto gastei no mês?"))
	require.NoError(t, err)
	assert.Equal(t, router.BranchTransaction, res.Branch)
	assert.Equal(t, int32(0), h.classifier.intentCalls)
	assert.Equal(t, int32(0), h.store.aggregateCalls)
}

func TestHandle_QueryScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := &domain.Transaction{Type: domain.Debit, Category: "Mercado", Amount: decimal.RequireFromString("12.30"), Date: civil.Date{Year: 2025, Month: time.October, Day: 2}, SenderID: "5511999999999", MessageID: "wamid.seed"}
	_, err := h.store.InsertIfAbsent(ctx, seeded)
	require.NoError(t, err)
	h.classifier.ClassifyIntentFunc = func(context.Context, string, civil.Date) (*domain.QueryIntent, error) {
		return &domain.QueryIntent{Intent: domain.IntentQuery, Focus: domain.FocusTotals, Type: domain.FilterAll}, nil
	}

	res, err := h.router.Handle(ctx, textEvent("wamid.2", "quanto gastei esse mês"))
	require.NoError(t, err)
	assert.Equal(t, router.BranchQuery, res.Branch)
	assert.Equal(t, "Débitos: R$ 12,30\nCréditos: R$ 0,00", res.Reply)
	assert.Equal(t, int32(1), h.store.aggregateCalls)

	f := h.store.lastFilter
	assert.Equal(t, "5511999999999", f.SenderID)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.October, Day: 1}, f.From)
	assert.Equal(t, today, f.To)
	assert.Equal(t, int32(0), h.chat.calls)
}

func TestHandle_QueryFocus(t *testing.T) {
	tests := []struct {
		focus     domain.Focus
		wantLimit int
	}{
		{domain.FocusByCategory, domain.CategoryLimit},
		{domain.FocusRecent, domain.DefaultRecentLimit},
		{domain.FocusMonthly, domain.MonthlyLimit},
	}
	for _, tt := range tests {
		t.Run(string(tt.focus), func(t *testing.T) {
			h := newHarness(t)
			h.classifier.ClassifyIntentFunc = func(context.Context, string, civil.Date) (*domain.QueryIntent, error) {
				return &domain.QueryIntent{Intent: domain.IntentQuery, Focus: tt.focus}, nil
			}

			res, err := h.router.Handle(context.Background(), textEvent("wamid.q", "me mostra"))
			require.NoError(t, err)
			assert.Equal(t, router.NoRecordsReply, res.Reply)
			assert.Equal(t, int32(1), h.store.aggregateCalls)
			assert.Equal(t, tt.wantLimit, h.store.lastFilter.Limit)
			assert.Equal(t, domain.FilterAll, h.store.lastFilter.Type)
		})
	}
}

func TestHandle_ChatBranch(t *testing.T) {
	h := newHarness(t)
	var got domain.ChatContext
	h.chat.ChatFunc = func(_ context.Context, _ string, cc domain.ChatContext) (string, error) {
		got = cc
		return "Oi, Ana! Como posso ajudar?", nil
	}

	res, err := h.router.Handle(context.Background(), textEvent("wamid.3", "bom dia"))
	require.NoError(t, err)
	assert.Equal(t, router.BranchChat, res.Branch)
	assert.Equal(t, "Oi, Ana! Como posso ajudar?", res.Reply)
	assert.Equal(t, domain.ChatContext{SenderName: "Ana", SenderID: "5511999999999"}, got)
}

func TestHandle_NonText(t *testing.T) {
	h := newHarness(t)
	ev := domain.InboundEvent{MessageID: "wamid.img", SenderID: "5511", Kind: domain.KindOther}

	res, err := h.router.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, router.OutcomeNonTextReply, res.Outcome)
	assert.Equal(t, router.NonTextReply, res.Reply)
	assert.Equal(t, int32(0), h.classifier.transactionCalls)
	assert.Len(t, h.notifier.Sends(), 1)
}

func TestHandle_TotalReplyGuarantee(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantReply string
		wantBr    router.Branch
	}{
		{
			name: "transaction and intent classifiers fail",
			setup: func(h *harness) {
				h.classifier.ClassifyTransactionFunc = func(context.Context, string, civil.Date) (*domain.Transaction, error) { return nil, boom }
				h.classifier.ClassifyIntentFunc = func(context.Context, string, civil.Date) (*domain.QueryIntent, error) { return nil, boom }
			},
			wantReply: router.FallbackReply,
			wantBr:    router.BranchChat,
		},
		{
			name: "chat responder fails",
			setup: func(h *harness) {
				h.chat.ChatFunc = func(context.Context, string, domain.ChatContext) (string, error) { return "", boom }
			},
			wantReply: router.FallbackReply,
			wantBr:    router.BranchChat,
		},
		{
			name: "store insert fails",
			setup: func(h *harness) {
				h.classifier.ClassifyTransactionFunc = groceries
				h.store.insertErr = boom
			},
			wantReply: "Tipo: Débito\nCategoria: Mercado\nValor: 50,00\nData: 15/10/2025",
			wantBr:    router.BranchTransaction,
		},
		{
			name: "mirror fails",
			setup: func(h *harness) {
				h.classifier.ClassifyTransactionFunc = groceries
				h.mirror.AppendTransactionFunc = func(context.Context, *domain.Transaction) error { return boom }
			},
			wantReply: "Tipo: Débito\nCategoria: Mercado\nValor: 50,00\nData: 15/10/2025",
			wantBr:    router.BranchTransaction,
		},
		{
			name: "invalid transaction",
			setup: func(h *harness) {
				h.classifier.ClassifyTransactionFunc = func(_ context.Context, _ string, ref civil.Date) (*domain.Transaction, error) {
					return &domain.Transaction{Type: domain.Debit, Category: "Mercado", Amount: decimal.NewFromInt(-5), Date: ref}, nil
				}
			},
			wantReply: "Tipo: Débito\nCategoria: Mercado\nValor: -5,00\nData: 15/10/2025",
			wantBr:    router.BranchTransaction,
		},
		{
			name: "aggregate fails",
			setup: func(h *harness) {
				h.classifier.ClassifyIntentFunc = func(context.Context, string, civil.Date) (*domain.QueryIntent, error) {
					return &domain.QueryIntent{Intent: domain.IntentQuery, Focus: domain.FocusTotals}, nil
				}
				h.store.aggregateErr = boom
			},
			wantReply: router.QueryFailedReply,
			wantBr:    router.BranchQuery,
		},
		{
			name: "mark read and dedup fail",
			setup: func(h *harness) {
				h.notifier.MarkReadFunc = func(context.Context, string) error { return boom }
				h.store.processedErr = boom
			},
			wantReply: "Olá!",
			wantBr:    router.BranchChat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			res, err := h.router.Handle(context.Background(), textEvent("wamid.x", "qualquer coisa"))
			require.NoError(t, err)
			assert.Equal(t, router.OutcomeReplied, res.Outcome)
			assert.Equal(t, tt.wantBr, res.Branch)
			assert.Equal(t, tt.wantReply, res.Reply)

			sends := h.notifier.Sends()
			require.Len(t, sends, 1)
			assert.Equal(t, tt.wantReply, sends[0].body)
		})
	}
}

func TestHandle_InvalidTransactionNotStored(t *testing.T) {
	h := newHarness(t)
	h.classifier.ClassifyTransactionFunc = func(_ context.Context, _ string, ref civil.Date) (*domain.Transaction, error) {
		return &domain.Transaction{Type: domain.Debit, Amount: decimal.NewFromInt(-5), Date: ref}, nil
	}

	res, err := h.router.Handle(context.Background(), textEvent("wamid.neg", "gastei -5"))
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Zero(t, h.store.Count())
	assert.Equal(t, int32(0), h.mirror.calls)
	assert.True(t, strings.Contains(res.Reply, "Categoria: Outros"))
}

func TestHandle_SendFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.notifier.SendTextFunc = func(context.Context, string, string) error { return errors.New("graph api down") }

	res, err := h.router.Handle(context.Background(), textEvent("wamid.9", "oi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph api down")
	assert.Equal(t, router.OutcomeReplied, res.Outcome)
}

func TestHandle_MarksRead(t *testing.T) {
	h := newHarness(t)

	_, err := h.router.Handle(context.Background(), textEvent("wamid.r", "oi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"wamid.r"}, h.notifier.reads)
}
