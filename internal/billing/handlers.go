package billing

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes billing endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type calculateRequest struct {
	Items []LineInput `json:"items" validate:"required,min=1,dive"`
}

// Calculate handles POST /api/v1/billing/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req calculateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	rec, err := h.service.Calculate(r.Context(), req.Items)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusCreated, "billing created", rec)
}

// Get handles GET /api/v1/billing/{billId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "billId"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "billing fetched", rec)
}

// List handles GET /api/v1/billing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page, limit := common.ParsePagination(r, h.service.DefaultLimit(), h.service.MaxLimit())
	sort := common.ParseSort(r, SortFields, common.Sort{Field: SortCreatedAt, Desc: true})
	res, err := h.service.List(r.Context(), ListParams{Page: page, Limit: limit, Sort: sort})
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.SuccessPage(w, "billing fetched", res.Items, res.Pagination)
}

// LifetimeEarnings handles GET /api/v1/billing/earnings/lifetime.
func (h *Handler) LifetimeEarnings(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.LifetimeEarnings(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "lifetime earnings fetched", out)
}

// RangeEarnings handles GET /api/v1/billing/earnings/range?start=&end=.
func (h *Handler) RangeEarnings(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	rng, err := h.service.ParseRange(q.Get("start"), q.Get("end"), true)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	out, err := h.service.RangeEarnings(r.Context(), *rng.Start, *rng.End)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "earnings fetched", out)
}

// TodayEarnings handles GET /api/v1/billing/earnings/today.
func (h *Handler) TodayEarnings(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.service.TodayEarnings(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "today earnings fetched", out)
}

// Report handles GET /api/v1/billing/report.csv.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	rng, err := h.service.ParseRange(q.Get("start"), q.Get("end"), false)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	filename := fmt.Sprintf("billing-report-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := h.service.WriteReport(r.Context(), w, rng); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("billing report aborted")
	}
}

// Routes mounts the billing endpoints. idem guards bill creation against replays.
func (h *Handler) Routes(r chi.Router, idem func(http.Handler) http.Handler) {
	create := http.Handler(http.HandlerFunc(h.Calculate))
	if idem != nil {
		create = idem(create)
	}
	r.Method(http.MethodPost, "/calculate", create)
	r.Get("/", h.List)
	r.Get("/report.csv", h.Report)
	r.Get("/earnings/lifetime", h.LifetimeEarnings)
	r.Get("/earnings/range", h.RangeEarnings)
	r.Get("/earnings/today", h.TodayEarnings)
	r.Get("/{billId}", h.Get)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return false
	}
	return true
}
