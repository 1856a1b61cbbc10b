// Package router decides what happens to one inbound WhatsApp message: it
// deduplicates by message id, tries to extract a transaction, falls back to
// intent classification, and sends exactly one reply.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/metrics"
	"github.com/rs/zerolog"
)

// Outcome is the terminal state of one handled event.
type Outcome string

const (
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeNonTextReply   Outcome = "non_text_reply"
	OutcomeReplied        Outcome = "replied"
)

// Branch is the path taken for an event with text.
type Branch string

const (
	BranchNone        Branch = "none"
	BranchTransaction Branch = "transaction"
	BranchQuery       Branch = "query"
	BranchChat        Branch = "chat"
)

// Result describes how an event was handled.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Branch  Branch  `json:"branch"`
	Reply   string  `json:"reply,omitempty"`
	// Inserted is true when the transaction branch stored a new row.
	Inserted bool `json:"inserted,omitempty"`
}

// Router handles inbound events. All collaborators are built once at startup
// and shared across concurrent calls to Handle.
type Router struct {
	processed  ProcessedSet
	store      TransactionStore
	classifier Classifier
	chat       ChatResponder
	notifier   Notifier
	mirror     Mirror

	loc         *time.Location
	recentLimit int
	now         func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithMirror sets the best-effort mirror for stored transactions.
func WithMirror(m Mirror) Option {
	return func(r *Router) { r.mirror = m }
}

// WithLocation sets the zone used to compute today's date.
func WithLocation(loc *time.Location) Option {
	return func(r *Router) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithRecentLimit caps the recent-transactions query.
func WithRecentLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.recentLimit = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router.
func New(processed ProcessedSet, store TransactionStore, classifier Classifier, chat ChatResponder, notifier Notifier, opts ...Option) *Router {
	r := &Router{
		processed:   processed,
		store:       store,
		classifier:  classifier,
		chat:        chat,
		notifier:    notifier,
		loc:         time.UTC,
		recentLimit: domain.DefaultRecentLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one event. Every non-duplicate event gets exactly one reply.
// The only error returned is a failure to send that reply.
func (r *Router) Handle(ctx context.Context, ev domain.InboundEvent) (Result, error) {
	log := logger.FromContext(ctx).With().
		Str("message_id", ev.MessageID).
		Str("wa_id", ev.SenderID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	first, err := r.processed.MarkProcessed(ctx, ev.MessageID)
	if err != nil {
		// Fail open: a store outage may cause a duplicate reply, never a lost one.
		log.Warn().Err(err).Msg("dedup check failed, handling message anyway")
		first = true
	}
	if !first {
		log.Info().Msg("duplicate delivery ignored")
		res := Result{Outcome: OutcomeAlreadyHandled, Branch: BranchNone}
		metrics.RecordOutcome(string(res.Outcome), string(res.Branch))
		return res, nil
	}

	if err := r.notifier.MarkRead(ctx, ev.MessageID); err != nil {
		log.Warn().Err(err).Msg("mark read failed")
	}

	var res Result
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		res = Result{Outcome: OutcomeNonTextReply, Branch: BranchNone, Reply: NonTextReply}
	} else {
		res = r.route(ctx, log, ev, text)
	}

	metrics.RecordOutcome(string(res.Outcome), string(res.Branch))
	if err := r.notifier.SendText(ctx, ev.SenderID, res.Reply); err != nil {
		log.Error().Err(err).Str("branch", string(res.Branch)).Msg("reply not delivered")
		return res, fmt.Errorf("Handle: send reply: %w", err)
	}

	log.Info().Str("outcome", string(res.Outcome)).Str("branch", string(res.Branch)).Msg("message handled")
	return res, nil
}

func (r *Router) route(ctx context.Context, log zerolog.Logger, ev domain.InboundEvent, text string) Result {
	today := domain.Today(r.now(), r.loc)

	start := time.Now()
	tx, err := r.classifier.ClassifyTransaction(ctx, text, today)
	metrics.ObserveClassifier("transaction", err, time.Since(start))
	if err != nil {
		log.Warn().Err(err).Msg("transaction classification failed")
		tx = nil
	}
	if tx != nil {
		inserted := r.persist(ctx, log, ev, text, tx)
		return Result{Outcome: OutcomeReplied, Branch: BranchTransaction, Reply: FormatTransaction(tx), Inserted: inserted}
	}

	start = time.Now()
	intent, err := r.classifier.ClassifyIntent(ctx, text, today)
	metrics.ObserveClassifier("intent", err, time.Since(start))
	if err != nil || intent == nil {
		log.Warn().Err(err).Msg("intent classification failed")
		return Result{Outcome: OutcomeReplied, Branch: BranchChat, Reply: FallbackReply}
	}

	if intent.Intent == domain.IntentQuery {
		return Result{Outcome: OutcomeReplied, Branch: BranchQuery, Reply: r.answerQuery(ctx, log, ev.SenderID, intent, today)}
	}

	start = time.Now()
	reply, err := r.chat.Chat(ctx, text, domain.ChatContext{SenderName: ev.SenderName, SenderID: ev.SenderID})
	metrics.ObserveClassifier("chat", err, time.Since(start))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn().Err(err).Msg("chat responder failed")
		reply = FallbackReply
	}
	return Result{Outcome: OutcomeReplied, Branch: BranchChat, Reply: reply}
}

// persist fills provenance, validates and stores tx. Failures are logged and
// never block the confirmation reply.
func (r *Router) persist(ctx context.Context, log zerolog.Logger, ev domain.InboundEvent, text string, tx *domain.Transaction) bool {
	tx.RawText = text
	tx.SenderID = ev.SenderID
	tx.SenderName = ev.SenderName
	tx.MessageID = ev.MessageID
	tx.Normalize()

	if err := tx.Validate(); err != nil {
		log.Warn().Err(err).Msg("transaction not stored")
		return false
	}

	inserted, err := r.store.InsertIfAbsent(ctx, tx)
	if err != nil {
		log.Error().Err(err).Msg("transaction insert failed")
	} else if !inserted {
		log.Info().Msg("transaction already stored")
		return false
	}

	if r.mirror != nil {
		if err := r.mirror.AppendTransaction(ctx, tx); err != nil {
			log.Warn().Err(err).Msg("mirror append failed")
		}
	}
	return inserted
}

// answerQuery runs the single aggregate selected by the intent focus.
func (r *Router) answerQuery(ctx context.Context, log zerolog.Logger, senderID string, q *domain.QueryIntent, today civil.Date) string {
	rng := q.ResolveRange(today)
	f := domain.AggregateFilter{
		SenderID: senderID,
		From:     rng.From,
		To:       rng.To,
		Type:     q.Type,
		Category: q.Category,
	}
	if f.Type == "" {
		f.Type = domain.FilterAll
	}

	var (
		reply string
		err   error
	)
	switch q.Focus {
	case domain.FocusByCategory:
		f.Limit = domain.CategoryLimit
		var rows []domain.CategoryTotal
		if rows, err = r.store.ByCategory(ctx, f); err == nil {
			reply = FormatByCategory(rows)
		}
	case domain.FocusRecent:
		f.Limit = r.recentLimit
		var rows []domain.RecentTransaction
		if rows, err = r.store.Recent(ctx, f); err == nil {
			reply = FormatRecent(rows)
		}
	case domain.FocusMonthly:
		f.Limit = domain.MonthlyLimit
		var rows []domain.MonthlyTotal
		if rows, err = r.store.Monthly(ctx, f); err == nil {
			reply = FormatMonthly(rows)
		}
	default:
		var totals domain.Totals
		if totals, err = r.store.Totals(ctx, f); err == nil {
			reply = FormatTotals(totals)
		}
	}

	if err != nil {
		log.Error().Err(err).Str("focus", string(q.Focus)).Msg("aggregate query failed")
		return QueryFailedReply
	}
	return reply
}
