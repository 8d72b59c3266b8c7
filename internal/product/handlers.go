package product

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes product endpoints.
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

type createRequest struct {
	Name      string      `json:"name" validate:"required,max=200"`
	Price     PriceString `json:"price" validate:"required,money"`
	BannerImg *string     `json:"bannerImg" validate:"omitempty,url"`
}

type updateRequest struct {
	Name      *string      `json:"name" validate:"omitempty,min=1,max=200"`
	Price     *PriceString `json:"price" validate:"omitempty,money"`
	BannerImg *string      `json:"bannerImg" validate:"omitempty,url"`
}

// Create handles POST /api/v1/products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	price, err := ParsePrice(string(req.Price))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	p, err := h.service.Add(r.Context(), CreateInput{Name: req.Name, Price: price, BannerImg: req.BannerImg})
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusCreated, "product created", p)
}

// Update handles PUT /api/v1/products/{productId}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req updateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	in := UpdateInput{Name: req.Name, BannerImg: req.BannerImg}
	if req.Price != nil {
		price, err := ParsePrice(string(*req.Price))
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		in.Price = &price
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "productId"), in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "product updated", p)
}

// List handles GET /api/v1/products.
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
	common.SuccessPage(w, "products fetched", res.Items, res.Pagination)
}

// Get handles GET /api/v1/products/{productId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "product fetched", p)
}

// SoldCount handles GET /api/v1/products/{productId}/sold-count.
func (h *Handler) SoldCount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sold, err := h.service.SoldCount(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "product sold count fetched", map[string]any{"productSold": sold})
}

// Revenue handles GET /api/v1/products/{productId}/revenue.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	revenue, err := h.service.Revenue(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "product revenue fetched", map[string]any{"grossRevenue": revenue})
}

// TopSold handles GET /api/v1/products/top/sold.
func (h *Handler) TopSold(w http.ResponseWriter, r *http.Request) {
	h.top(w, r, TopBySold)
}

// TopRevenue handles GET /api/v1/products/top/revenue.
func (h *Handler) TopRevenue(w http.ResponseWriter, r *http.Request) {
	h.top(w, r, TopByRevenue)
}

func (h *Handler) top(w http.ResponseWriter, r *http.Request, metric TopMetric) {
	if !h.ready(w) {
		return
	}
	p, err := h.service.Top(r.Context(), metric)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "top product fetched", p)
}

// Names handles GET /api/v1/products/names.
func (h *Handler) Names(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	names, err := h.service.Names(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "product names fetched", names)
}

// Routes mounts the product endpoints. adminOnly guards mutations.
func (h *Handler) Routes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/", h.List)
	r.Get("/names", h.Names)
	r.Get("/top/sold", h.TopSold)
	r.Get("/top/revenue", h.TopRevenue)
	r.Get("/{productId}", h.Get)
	r.Get("/{productId}/sold-count", h.SoldCount)
	r.Get("/{productId}/revenue", h.Revenue)
	r.Group(func(r chi.Router) {
		if adminOnly != nil {
			r.Use(adminOnly)
		}
		r.Post("/", h.Create)
		r.Put("/{productId}", h.Update)
	})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product service not configured", nil)
		return false
	}
	return true
}
