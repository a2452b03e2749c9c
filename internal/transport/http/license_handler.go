package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/NevessSt/Trading-bots-sub000/internal/errors"
	"github.com/NevessSt/Trading-bots-sub000/internal/issuer"
	"github.com/NevessSt/Trading-bots-sub000/internal/store"
	api "github.com/NevessSt/Trading-bots-sub000/pkg/contracts/api/v1"
	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// LicenseHandler handles the license API endpoints.
type LicenseHandler struct {
	service  *issuer.Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service *issuer.Service, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// Routes returns a router with every license endpoint registered, with
// no middleware attached; the application wires rate limiting and API
// key auth around the right subsets.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	r.Get("/revocation-list", h.RevocationList)
	r.Post("/generate", h.Generate)
	r.Post("/revoke", h.Revoke)
	r.Get("/stats", h.Stats)
	return r
}

// Validate handles POST /validate.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/validate"),
		),
	)
	defer span.End()

	var req api.ValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	span.SetAttributes(attribute.String("license.key", req.LicenseKey))

	verdict, err := h.service.Validate(ctx, req.LicenseKey, req.MachineID)
	if err != nil {
		span.RecordError(err)
		h.renderServiceError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.Bool("license.valid", verdict.Valid),
		attribute.String("license.reason", verdict.Reason),
	)

	resp := &api.ValidateResponse{
		Valid:       verdict.Valid,
		Message:     validationMessage(verdict),
		Reason:      verdict.Reason,
		Timestamp:   verdict.CheckedAt,
		LicenseData: verdict.LicenseData,
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// RevocationList handles GET /revocation-list.
func (h *LicenseHandler) RevocationList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, asOf, signature, err := h.service.RevocationList(ctx)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	render.JSON(w, r, &api.RevocationListResponse{
		RevokedLicenses: keys,
		Count:           len(keys),
		Timestamp:       asOf,
		Signature:       signature,
	})
}

// Generate handles POST /generate.
func (h *LicenseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}

	lic, err := h.service.Generate(ctx, issuer.GenerateParams{
		MachineID:   req.MachineID,
		LicenseType: req.LicenseType,
		DaysValid:   req.DaysValid,
		Features:    req.Features,
		Replace:     req.Replace,
	})
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, lic)
}

// Revoke handles POST /revoke.
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RevokeRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.service.Revoke(ctx, req.LicenseKey, req.Reason, req.RevokedBy)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	render.JSON(w, r, &api.RevokeResponse{
		Success:   true,
		RevokedAt: entry.RevokedAt,
	})
}

// Stats handles GET /stats.
func (h *LicenseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// decode binds and validates the JSON request body, rendering a 400 on
// failure. Returns false when the request was already answered.
func (h *LicenseHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			ves := make([]apierrors.ValidationError, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				ves = append(ves, apierrors.ValidationError{
					Field:   fe.Field(),
					Message: fe.Tag(),
				})
			}
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.NewValidationErrors(ves)))
		} else {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidationFailed))
		}
		return false
	}
	return true
}

// renderServiceError maps service and store errors to the API taxonomy.
// Store unavailability stays distinguishable from a denial: a client
// must never read 503 as "you are not licensed".
func (h *LicenseHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError

	switch {
	case errors.Is(err, issuer.ErrDuplicateMachineLicense):
		apiErr = apierrors.ErrDuplicateMachineLicense
	case errors.Is(err, store.ErrNotFound):
		apiErr = apierrors.ErrLicenseNotFound
	case errors.Is(err, store.ErrUnavailable):
		apiErr = apierrors.ErrStoreUnavailable
	default:
		apiErr = apierrors.ErrInternalServer
	}

	h.logger.ErrorContext(r.Context(), "license request failed",
		slog.String("path", r.URL.Path),
		slog.String("error_code", apiErr.ErrorCode),
		slog.String("error", err.Error()))

	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

func validationMessage(verdict *domain.VerdictResult) string {
	if verdict.Valid {
		return "License is valid"
	}
	switch verdict.Reason {
	case domain.ReasonInvalidSignature:
		return "License signature verification failed"
	case domain.ReasonRevoked:
		return "License has been revoked"
	case domain.ReasonExpired:
		return "License has expired"
	case domain.ReasonMachineMismatch:
		return "License is bound to a different machine"
	case domain.ReasonLicenseNotFound:
		return "License key not found"
	default:
		return "License is not valid"
	}
}
