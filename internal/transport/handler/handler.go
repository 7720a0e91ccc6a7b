// Package handler exposes the HTTP surface: the conversion endpoint, the
// account endpoints and the membership webhook.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/admission"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/auth"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/config"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/converter"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/entities"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/quota"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/transcoder"
)

type Converter interface {
	Convert(ctx context.Context, req converter.Request) (*converter.Result, error)
}

// AccountStore is the persisted user surface the handlers need.
type AccountStore interface {
	CreateUser(ctx context.Context, email, firstName, lastName, passwordHash string) (entities.User, error)
	GetUserByEmail(ctx context.Context, email string) (entities.User, error)
	GetUserByID(ctx context.Context, id string) (entities.User, error)
	ExtendPlan(ctx context.Context, userID, plan string, days int) (entities.User, error)
}

type Handler struct {
	converter Converter
	accounts  AccountStore
	issuer    *auth.Issuer
	cfg       *config.Config
	validator *validator.Validate
}

func New(conv Converter, accounts AccountStore, issuer *auth.Issuer, cfg *config.Config) *Handler {
	return &Handler{
		converter: conv,
		accounts:  accounts,
		issuer:    issuer,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := validateMimeType(mime.String()); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	caller := quota.Caller{ClientKey: clientKey(r)}
	if user, ok := h.currentUser(r); ok {
		caller.User = &user
	}

	req := converter.Request{
		Caller:   caller,
		Filename: fh.Filename,
		Payload:  payload,
		Quality:  parseIntClamped(r.FormValue("quality"), h.cfg.Convert.DefaultQuality, 1, 100),
		MaxWidth: parseIntClamped(r.FormValue("max_width"), 0, 1, h.cfg.Convert.MaxWidthCeiling),
	}

	res, err := h.converter.Convert(r.Context(), req)
	if err != nil {
		h.writeConvertError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// writeConvertError maps executor failures onto the API error taxonomy:
// quota 402, overload 429, transcode 500, bad input 400.
func (h *Handler) writeConvertError(w http.ResponseWriter, err error) {
	var decodeErr *transcoder.DecodeError
	var encodeErr *transcoder.EncodeError

	switch {
	case errors.Is(err, quota.ErrLimitReached):
		zero := 0
		writeJSON(w, http.StatusPaymentRequired, apiError{
			Error:     "Membership required",
			Code:      quota.DeniedCode,
			Remaining: &zero,
		})
	case errors.Is(err, admission.ErrBusy):
		writeJSON(w, http.StatusTooManyRequests, apiError{Error: "Server busy, try again later"})
	case errors.Is(err, converter.ErrEmptyPayload):
		writeJSONError(w, "No file uploaded", http.StatusBadRequest)
	case errors.As(err, &decodeErr), errors.As(err, &encodeErr):
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:  "Conversion failed",
			Detail: err.Error(),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:  "Conversion failed",
			Detail: err.Error(),
		})
	}
}

// currentUser resolves the optional bearer token. Unauthenticated requests
// simply proceed anonymously.
func (h *Handler) currentUser(r *http.Request) (entities.User, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return entities.User{}, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return entities.User{}, false
	}

	userID, err := h.issuer.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return entities.User{}, false
	}
	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		return entities.User{}, false
	}
	return user, true
}
