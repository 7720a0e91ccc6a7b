package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/entities"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/repository/storage"
)

// supporterEvents are the Buy Me a Coffee notifications that grant plan time.
var supporterEvents = map[string]bool{
	"donation.created":       true,
	"membership.started":     true,
	"membership.renewed":     true,
	"extra_purchase.created": true,
}

// BMCWebhook handles Buy Me a Coffee payment notifications. The payload is
// authenticated either by an HMAC-SHA256 hex signature over the raw body or,
// as a fallback for manual integrations, by a shared secret header.
func (h *Handler) BMCWebhook(w http.ResponseWriter, r *http.Request) {
	secret := h.cfg.Billing.BMCWebhookSecret
	if secret == "" {
		writeJSONError(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifyWebhook(r, body, secret) {
		writeJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload bmcPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if !supporterEvents[payload.Type] {
		log.Info().Str("type", payload.Type).Msg("webhook: ignored event")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	email := normalizeEmail(payload.BuyerEmail())
	if email == "" {
		writeJSONError(w, "no supporter email in payload", http.StatusBadRequest)
		return
	}

	user, err := h.findOrCreateSupporter(r, email)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("webhook: resolve supporter")
		writeJSONError(w, "failed to resolve supporter", http.StatusInternalServerError)
		return
	}

	plan := "supporter"
	if strings.HasPrefix(payload.Type, "membership.") {
		plan = "member"
	}

	if _, err := h.accounts.ExtendPlan(r.Context(), user.ID, plan, h.cfg.Billing.PlanDays); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("webhook: extend plan")
		writeJSONError(w, "failed to extend plan", http.StatusInternalServerError)
		return
	}

	log.Info().Str("type", payload.Type).Str("email", email).Str("plan", plan).Msg("webhook: plan extended")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) verifyWebhook(r *http.Request, body []byte, secret string) bool {
	if sig := r.Header.Get("X-Signature-Sha256"); sig != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
	}
	// Shared-secret fallback for senders that cannot sign.
	provided := r.Header.Get("X-Webhook-Secret")
	return provided != "" && hmac.Equal([]byte(provided), []byte(secret))
}

// findOrCreateSupporter looks the payer up by email, provisioning a
// password-less account when the payment arrives before registration.
func (h *Handler) findOrCreateSupporter(r *http.Request, email string) (entities.User, error) {
	u, err := h.accounts.GetUserByEmail(r.Context(), email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return u, err
	}
	return h.accounts.CreateUser(r.Context(), email, "", "", "")
}
