package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/series"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the posting JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.post)
	r.Get("/documents", h.list)
	r.Get("/documents/{id}", h.show)
	r.Post("/documents/{id}/deliver", h.deliver)
	r.Post("/documents/{id}/cancel", h.cancel)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Post(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, err := h.service.repo.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if doc == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "company_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)

	docs, total, err := h.service.repo.ListDocuments(r.Context(), companyID, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": shared.NewPagination(p.Page, p.PerPage, total),
	})
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, err := h.service.ConfirmDelivery(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// respondError maps the posting taxonomy onto problem responses. Validation
// and precondition violations carry their specific code; anything else is an
// internal error.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicatePosting):
		httpx.Problem(w, http.StatusConflict, "Duplicate Posting", err.Error())
	case errors.Is(err, ErrNotCancelable):
		httpx.Problem(w, http.StatusConflict, "Not Cancelable", err.Error())
	case errors.Is(err, ErrReversalInconsistency):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Reversal Inconsistency", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, documents.ErrIllegalTransition):
		httpx.Problem(w, http.StatusConflict, "Illegal State Transition", err.Error())
	case errors.Is(err, documents.ErrParentNotCorrectable):
		httpx.Problem(w, http.StatusConflict, "Parent Not Correctable", err.Error())
	case errors.Is(err, ledger.ErrLedgerMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Ledger Mismatch", err.Error())
	case errors.Is(err, series.ErrSeriesNotConfigured):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Series Not Configured", err.Error())
	default:
		h.logger.Error("posting request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
