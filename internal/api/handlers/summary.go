package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/dvloznov/wa-finance/internal/api/middleware"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// SummaryRecentLimit caps the recent transactions shown on the summary.
const SummaryRecentLimit = 10

//go:embed templates/*.html
var templateFS embed.FS

var summaryTmpl = template.Must(template.New("summary.html").Funcs(template.FuncMap{
	"brl":    domain.FormatBRL,
	"brdate": domain.FormatBRDate,
	"category": func(c string) string {
		if strings.TrimSpace(c) == "" {
			return "Sem categoria"
		}
		return c
	},
}).ParseFS(templateFS, "templates/summary.html"))

// SummaryStore is the read side of the transaction store.
type SummaryStore interface {
	Totals(ctx context.Context, f domain.AggregateFilter) (domain.Totals, error)
	ByCategory(ctx context.Context, f domain.AggregateFilter) ([]domain.CategoryTotal, error)
	Recent(ctx context.Context, f domain.AggregateFilter) ([]domain.RecentTransaction, error)
	Monthly(ctx context.Context, f domain.AggregateFilter) ([]domain.MonthlyTotal, error)
}

// SummaryQuery is the filter as typed by the user, echoed back in responses.
type SummaryQuery struct {
	From string            `json:"from,omitempty"`
	To   string            `json:"to,omitempty"`
	Type domain.TypeFilter `json:"type"`
}

// Summary holds the four aggregates for one sender.
type Summary struct {
	WaID       string                     `json:"wa_id"`
	Query      SummaryQuery               `json:"query"`
	Totals     domain.Totals              `json:"totals"`
	ByCategory []domain.CategoryTotal     `json:"by_category"`
	Recent     []domain.RecentTransaction `json:"recent"`
	Monthly    []domain.MonthlyTotal      `json:"monthly"`
}

// SummaryHandler serves per-user summaries as JSON and as an HTML page.
type SummaryHandler struct {
	store SummaryStore
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(store SummaryStore) *SummaryHandler {
	return &SummaryHandler{store: store}
}

func parseSummaryQuery(r *http.Request) (SummaryQuery, domain.AggregateFilter, error) {
	q := r.URL.Query()
	sq := SummaryQuery{
		From: strings.TrimSpace(q.Get("from")),
		To:   strings.TrimSpace(q.Get("to")),
		Type: domain.ParseTypeFilter(q.Get("type")),
	}
	rng, err := domain.ParseOpenRange(sq.From, sq.To)
	if err != nil {
		return sq, domain.AggregateFilter{}, err
	}
	return sq, domain.AggregateFilter{
		SenderID: mux.Vars(r)["waId"],
		From:     rng.From,
		To:       rng.To,
		Type:     sq.Type,
	}, nil
}

// load runs the four aggregates concurrently.
func (h *SummaryHandler) load(ctx context.Context, f domain.AggregateFilter) (*Summary, error) {
	s := &Summary{WaID: f.SenderID}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		s.Totals, err = h.store.Totals(ctx, f)
		return err
	})
	g.Go(func() error {
		cf := f
		cf.Limit = domain.CategoryLimit
		var err error
		s.ByCategory, err = h.store.ByCategory(ctx, cf)
		return err
	})
	g.Go(func() error {
		rf := f
		rf.Limit = SummaryRecentLimit
		var err error
		s.Recent, err = h.store.Recent(ctx, rf)
		return err
	})
	g.Go(func() error {
		mf := f
		mf.Limit = domain.MonthlyLimit
		var err error
		s.Monthly, err = h.store.Monthly(ctx, mf)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if s.ByCategory == nil {
		s.ByCategory = []domain.CategoryTotal{}
	}
	if s.Recent == nil {
		s.Recent = []domain.RecentTransaction{}
	}
	if s.Monthly == nil {
		s.Monthly = []domain.MonthlyTotal{}
	}
	return s, nil
}

// JSON handles GET /api/users/{waId}/summary
func (h *SummaryHandler) JSON(w http.ResponseWriter, r *http.Request) {
	sq, f, err := parseSummaryQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "datas devem estar no formato DD/MM/AAAA")
		return
	}

	s, err := h.load(r.Context(), f)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("wa_id", f.SenderID).Msg("Failed to load summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load summary")
		return
	}
	s.Query = sq

	middleware.WriteJSON(w, http.StatusOK, s)
}

type summaryPage struct {
	*Summary
	Error       string
	Token       string
	TypeOptions []domain.TypeFilter
}

// Page handles GET /usuarios/{waId}/resumo
func (h *SummaryHandler) Page(w http.ResponseWriter, r *http.Request) {
	sq, f, err := parseSummaryQuery(r)
	page := summaryPage{
		Summary:     &Summary{WaID: mux.Vars(r)["waId"], Query: sq},
		Token:       r.URL.Query().Get("token"),
		TypeOptions: []domain.TypeFilter{domain.FilterAll, domain.FilterDebit, domain.FilterCredit},
	}
	status := http.StatusOK

	switch {
	case err != nil:
		page.Error = "Datas devem estar no formato DD/MM/AAAA."
		status = http.StatusBadRequest
	default:
		s, err := h.load(r.Context(), f)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("wa_id", f.SenderID).Msg("Failed to load summary")
			page.Error = "Não foi possível carregar o resumo agora."
			status = http.StatusInternalServerError
			break
		}
		s.Query = sq
		page.Summary = s
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := summaryTmpl.Execute(w, page); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to render summary page")
	}
}
