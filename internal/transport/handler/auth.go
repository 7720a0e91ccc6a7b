package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/auth"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/repository/storage"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": validationErrorsToMap(verrs)})
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		writeJSONError(w, "failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), normalizeEmail(payload.Email), payload.FirstName, payload.LastName, hash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeJSONError(w, "email already registered", http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("register: create user")
		writeJSONError(w, "failed to create account", http.StatusInternalServerError)
		return
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		writeJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.GetUserByEmail(r.Context(), normalizeEmail(payload.Email))
	if err != nil {
		writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, payload.Password) {
		writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		writeJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	active := user.PlanActive(time.Now())
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user, PlanActive: &active})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	active := user.PlanActive(time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "plan_active": active})
}

// ActivateAccess grants the signed-in user a plan window. It backs the
// post-payment confirmation step in the web client.
func (h *Handler) ActivateAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	// The body is optional; an empty or absent payload selects the default plan.
	var payload activatePayload
	_ = json.NewDecoder(r.Body).Decode(&payload)
	plan := payload.Plan
	if plan == "" {
		plan = "supporter"
	}

	updated, err := h.accounts.ExtendPlan(r.Context(), user.ID, plan, h.cfg.Billing.PlanDays)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("activate access: extend plan")
		writeJSONError(w, "failed to activate access", http.StatusInternalServerError)
		return
	}
	active := updated.PlanActive(time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"user": updated, "plan_active": active})
}
