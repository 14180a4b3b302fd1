// Package handler contains the HTTP handlers of the cashback service API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rbarros/cashback-system/internal/domain"
	"github.com/rbarros/cashback-system/internal/middleware"
	"github.com/rbarros/cashback-system/internal/model"
	"github.com/rbarros/cashback-system/internal/validation"
)

const dateLayout = "2006-01-02"

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterUser(ctx context.Context, in model.UserCreate) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	CreatePurchase(ctx context.Context, actorID int64, in model.PurchaseCreate) (*model.Purchase, error)
	ListPurchases(ctx context.Context, actorID int64, skip, limit int) ([]model.Purchase, error)
	UpdatePurchase(ctx context.Context, actorID, purchaseID int64, patch model.PurchasePatch) (*model.Purchase, error)
	DeletePurchase(ctx context.Context, actorID, purchaseID int64) (*model.Purchase, error)
	AggregateCashback(ctx context.Context, actorID int64) (decimal.Decimal, error)
}

// Handler implements the HTTP handlers of the cashback service API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}

// writeDomainError translates a domain failure into a status code and
// a client-facing detail message. Unclassified errors are logged and
// surfaced as 500 without internals.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		respondDetail(w, http.StatusBadRequest, "Already exists an user with this email.")
	case errors.Is(err, domain.ErrCPFTaken):
		respondDetail(w, http.StatusBadRequest, "Already exists an user with this cpf.")
	case errors.Is(err, domain.ErrInvalidCredentials):
		respondDetail(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, domain.ErrUserNotFound):
		respondDetail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrPurchaseNotFound):
		respondDetail(w, http.StatusNotFound, "Purchase not found")
	case errors.Is(err, domain.ErrCPFMismatch):
		respondDetail(w, http.StatusForbidden,
			"It is not allowed to register purchases for a different user. Please check the entered CPF.")
	case errors.Is(err, domain.ErrOwnerTransfer):
		respondDetail(w, http.StatusForbidden,
			"It is not allowed to transfer a purchase to a different user.")
	case errors.Is(err, domain.ErrNotOwner):
		respondDetail(w, http.StatusForbidden, "The purchase belongs to another user.")
	case errors.Is(err, domain.ErrPurchaseLocked):
		respondDetail(w, http.StatusForbidden, "Only purchases in validation can be changed.")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		respondDetail(w, http.StatusForbidden, "The purchase code has already been used.")
	case errors.Is(err, domain.ErrCashbackUnavailable):
		respondDetail(w, http.StatusServiceUnavailable,
			"The service is currently unavailable, please try again later.")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respondDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

type userRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	CPF      string `json:"cpf"`
}

// RegisterUser handles the registration of a new user.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	if req.FullName == "" || req.Email == "" || req.Password == "" {
		respondDetail(w, http.StatusBadRequest, "full_name, email, cpf and password are required.")
		return
	}
	if !validation.IsValidCPF(req.CPF) {
		respondDetail(w, http.StatusBadRequest, "The cpf must contain exactly 11 digits.")
		return
	}

	u, err := h.service.RegisterUser(r.Context(), model.UserCreate{
		FullName: req.FullName,
		Email:    req.Email,
		CPF:      req.CPF,
		Password: req.Password,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, userResponse{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		CPF:      u.CPF,
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login authenticates a user from an OAuth2-style form body and
// returns a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondDetail(w, http.StatusBadRequest, "Malformed form body.")
		return
	}

	email := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		respondDetail(w, http.StatusBadRequest, "username and password are required.")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), email, password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		respondDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

type purchaseCreateRequest struct {
	Code   string           `json:"code"`
	Value  *decimal.Decimal `json:"value"`
	Date   string           `json:"date"`
	CPF    string           `json:"cpf"`
	Status string           `json:"status"`
}

type purchaseResponse struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Value           decimal.Decimal `json:"value"`
	Date            string          `json:"date"`
	CashbackValue   decimal.Decimal `json:"cashback_value"`
	CashbackPercent decimal.Decimal `json:"cashback_percent"`
	Status          string          `json:"status"`
	CPF             string          `json:"cpf"`
}

func toPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:              p.ID,
		Code:            p.Code,
		Value:           p.Value,
		Date:            p.Date.Format(dateLayout),
		CashbackValue:   p.CashbackValue,
		CashbackPercent: p.CashbackPercent(),
		Status:          p.Status,
		CPF:             p.OwnerCPF,
	}
}

// CreatePurchase records a purchase for the authenticated user.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req purchaseCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	if req.Code == "" || req.Value == nil || req.Date == "" {
		respondDetail(w, http.StatusBadRequest, "code, value, date and cpf are required.")
		return
	}
	if req.Value.IsNegative() {
		respondDetail(w, http.StatusBadRequest, "The purchase value must not be negative.")
		return
	}
	if !validation.IsValidCPF(req.CPF) {
		respondDetail(w, http.StatusBadRequest, "The cpf must contain exactly 11 digits.")
		return
	}
	if req.Status != "" && !model.IsValidStatus(req.Status) {
		respondDetail(w, http.StatusBadRequest, "Unknown purchase status.")
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "The date must be formatted as YYYY-MM-DD.")
		return
	}

	p, err := h.service.CreatePurchase(r.Context(), actorID, model.PurchaseCreate{
		Code:   req.Code,
		Value:  *req.Value,
		Date:   date,
		CPF:    req.CPF,
		Status: req.Status,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toPurchaseResponse(p))
}

func paginationParams(r *http.Request) (skip, limit int, err error) {
	skip, limit = 0, 100

	if v := r.URL.Query().Get("skip"); v != "" {
		skip, err = strconv.Atoi(v)
		if err != nil || skip < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}

	return skip, limit, nil
}

// ListPurchases returns the authenticated user's purchases.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	skip, limit, err := paginationParams(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), actorID, skip, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, toPurchaseResponse(&purchases[i]))
	}

	respondJSON(w, http.StatusOK, resp)
}

type purchaseUpdateRequest struct {
	Code   *string          `json:"code"`
	Value  *decimal.Decimal `json:"value"`
	Date   *string          `json:"date"`
	Status *string          `json:"status"`
	CPF    *string          `json:"cpf"`
}

func (req *purchaseUpdateRequest) toPatch() (model.PurchasePatch, string) {
	var patch model.PurchasePatch

	if req.Code != nil {
		if *req.Code == "" {
			return patch, "The code must not be empty."
		}
		patch.Code = req.Code
	}
	if req.Value != nil {
		if req.Value.IsNegative() {
			return patch, "The purchase value must not be negative."
		}
		patch.Value = req.Value
	}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return patch, "The date must be formatted as YYYY-MM-DD."
		}
		patch.Date = &date
	}
	if req.Status != nil {
		if !model.IsValidStatus(*req.Status) {
			return patch, "Unknown purchase status."
		}
		patch.Status = req.Status
	}
	if req.CPF != nil {
		if !validation.IsValidCPF(*req.CPF) {
			return patch, "The cpf must contain exactly 11 digits."
		}
		patch.CPF = req.CPF
	}

	return patch, ""
}

func purchaseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "purchaseID"), 10, 64)
}

func (h *Handler) updatePurchase(w http.ResponseWriter, r *http.Request, full bool) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid purchase id.")
		return
	}

	var req purchaseUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	if full && (req.Code == nil || req.Value == nil || req.Date == nil || req.Status == nil || req.CPF == nil) {
		respondDetail(w, http.StatusBadRequest, "code, value, date, status and cpf are required.")
		return
	}

	patch, detail := req.toPatch()
	if detail != "" {
		respondDetail(w, http.StatusBadRequest, detail)
		return
	}

	p, err := h.service.UpdatePurchase(r.Context(), actorID, purchaseID, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toPurchaseResponse(p))
}

// UpdatePurchase handles the full-replace update of a purchase; every
// field is mandatory.
func (h *Handler) UpdatePurchase(w http.ResponseWriter, r *http.Request) {
	h.updatePurchase(w, r, true)
}

// PatchPurchase handles the partial update of a purchase; absent
// fields are left unchanged.
func (h *Handler) PatchPurchase(w http.ResponseWriter, r *http.Request) {
	h.updatePurchase(w, r, false)
}

// DeletePurchase removes a purchase owned by the authenticated user
// and returns its last snapshot.
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid purchase id.")
		return
	}

	p, err := h.service.DeletePurchase(r.Context(), actorID, purchaseID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toPurchaseResponse(p))
}

type cashbackResponse struct {
	Cashback decimal.Decimal `json:"cashback"`
}

// GetCashback returns the authenticated user's aggregate cashback.
func (h *Handler) GetCashback(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	total, err := h.service.AggregateCashback(r.Context(), actorID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cashbackResponse{Cashback: total})
}
