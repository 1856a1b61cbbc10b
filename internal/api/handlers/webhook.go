package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/wa-finance/internal/api/middleware"
	"github.com/dvloznov/wa-finance/internal/archive"
	"github.com/dvloznov/wa-finance/internal/jobs"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/whatsapp"
)

// maxWebhookBody bounds the envelope size read from the Cloud API.
const maxWebhookBody = 1 << 20

// Archiver stores the raw webhook body and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, body []byte) (string, error)
}

// WebhookHandler serves the WhatsApp Cloud API webhook.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	archiver    Archiver
	publisher   jobs.Publisher
}

// NewWebhookHandler creates a webhook handler. appSecret may be empty, in
// which case signatures are not checked. A nil archiver discards bodies.
func NewWebhookHandler(verifyToken, appSecret string, archiver Archiver, publisher jobs.Publisher) *WebhookHandler {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		archiver:    archiver,
		publisher:   publisher,
	}
}

// Verify handles GET /api/webhook, the subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "Forbidden")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// Receive handles POST /api/webhook. Every message in the envelope becomes one
// queued job; the response is 200 whatever happens downstream.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if h.appSecret != "" {
		if err := whatsapp.VerifySignature(h.appSecret, body, r.Header.Get(whatsapp.SignatureHeader)); err != nil {
			log.Warn().Err(err).Msg("rejected webhook with bad signature")
			middleware.WriteError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	archiveURI, err := h.archiver.Archive(ctx, body)
	if err != nil {
		log.Warn().Err(err).Msg("failed to archive webhook body")
	}

	var env whatsapp.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed webhook body")
		middleware.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	events, skipped := env.Events()
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("messages without id or sender ignored")
	}
	if len(events) == 0 {
		log.Debug().Int("statuses", env.StatusCount()).Msg("no messages in webhook")
	}

	for _, ev := range events {
		job := &jobs.EventJob{Event: ev, ArchiveURI: archiveURI}
		if err := h.publisher.PublishEvent(ctx, job); err != nil {
			log.Error().Err(err).Str("message_id", ev.MessageID).Msg("failed to enqueue message")
			continue
		}
		log.Info().
			Str("job_id", job.JobID).
			Str("message_id", ev.MessageID).
			Str("kind", string(ev.Kind)).
			Msg("message enqueued")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
