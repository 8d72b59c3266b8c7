package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes account endpoints.
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

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyOTPRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	OTP    string `json:"otp" validate:"required,len=4,numeric"`
}

type resetPasswordRequest struct {
	UserID     string `json:"userId" validate:"required,uuid"`
	ResetToken string `json:"resetToken" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type createRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=6,max=20"`
	Role     Role   `json:"role" validate:"omitempty,oneof=ADMIN STAFF"`
}

type updateRequest struct {
	Username *string `json:"username" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,min=6,max=20"`
	Role     *Role   `json:"role" validate:"omitempty,oneof=ADMIN STAFF"`
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

// Login handles POST /api/v1/users/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req loginRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "login successful", res)
}

// RequestOTP handles POST /api/v1/users/otp/{email}.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.service.RequestOTP(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "otp sent", res)
}

// VerifyOTP handles POST /api/v1/users/otp/verify.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req verifyOTPRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.service.VerifyOTP(r.Context(), req.UserID, req.OTP)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "otp verified", res)
}

// ResetPassword handles POST /api/v1/users/password/reset.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req resetPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.UserID, req.ResetToken, req.Password); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "password updated", nil)
}

// Create handles POST /api/v1/users.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req createRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u, err := h.service.Add(r.Context(), CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusCreated, "user created", u)
}

// Update handles PUT /api/v1/users/{userId}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req updateRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u, err := h.service.Update(r.Context(), chi.URLParam(r, "userId"), UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "user updated", u)
}

// SetStatus handles PATCH /api/v1/users/{userId}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req statusRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "userId"), req.Status)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "user status updated", u)
}

// List handles GET /api/v1/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	users, err := h.service.List(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "users fetched", users)
}

// Get handles GET /api/v1/users/{userId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Success(w, http.StatusOK, "user fetched", u)
}

// Routes mounts the account endpoints. publicLimit throttles the unauthenticated
// credential endpoints and adminOnly guards account management.
func (h *Handler) Routes(r chi.Router, publicLimit, adminOnly func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if publicLimit != nil {
			r.Use(publicLimit)
		}
		r.Post("/login", h.Login)
		r.Post("/otp/verify", h.VerifyOTP)
		r.Post("/otp/{email}", h.RequestOTP)
		r.Post("/password/reset", h.ResetPassword)
	})
	r.Group(func(r chi.Router) {
		if adminOnly != nil {
			r.Use(adminOnly)
		}
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{userId}", h.Get)
		r.Put("/{userId}", h.Update)
		r.Patch("/{userId}/status", h.SetStatus)
	})
}

func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		common.WriteError(w, r, err)
		return false
	}
	if err := common.ValidateStruct(dst); err != nil {
		common.WriteError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return false
	}
	return true
}
