package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapStockView))
		r.Get("/availability", h.handleAvailability)
		r.Get("/low-stock", h.handleLowStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapStockReserve))
		r.Post("/reservations", h.handleReserve)
		r.Post("/reservations/{id}/release", h.handleRelease)
		r.Post("/invoices/{id}/release", h.handleReleaseInvoice)
		r.Post("/units/{id}/damaged", h.handleMarkDamaged)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapStockTransfer))
		r.Post("/units/{id}/transfer", h.handleBeginTransfer)
		r.Post("/units/{id}/transfer/complete", h.handleCompleteTransfer)
	})
}

type availabilityResponse struct {
	ProductID int64 `json:"product_id"`
	BranchID  int64 `json:"branch_id"`
	Total     int   `json:"total"`
	Reserved  int   `json:"reserved"`
	Available int   `json:"available"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	branchID, _ := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	avail, err := h.service.Availability(r.Context(), productID, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availabilityResponse{
		ProductID: avail.ProductID, BranchID: avail.BranchID,
		Total: avail.Total, Reserved: avail.Reserved, Available: avail.Available,
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("low stock scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	type lowStockResponse struct {
		ProductID    int64 `json:"product_id"`
		BranchID     int64 `json:"branch_id"`
		Available    int   `json:"available"`
		ReorderLevel int   `json:"reorder_level"`
	}
	out := make([]lowStockResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, lowStockResponse(row))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type reserveRequest struct {
	UnitID      int64  `json:"unit_id" validate:"required,gt=0"`
	InvoiceID   int64  `json:"invoice_id" validate:"required,gt=0"`
	InvoiceKind string `json:"invoice_kind" validate:"omitempty,oneof=SALES TRANSFER PURCHASE"`
	Quantity    int    `json:"quantity" validate:"omitempty,eq=1"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("stock: %s", err.Error()))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	res, err := h.service.Reserve(r.Context(), ReserveInput{
		UnitID:      req.UnitID,
		InvoiceID:   req.InvoiceID,
		InvoiceKind: InvoiceKind(req.InvoiceKind),
		Quantity:    req.Quantity,
		ActorID:     principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           res.ID,
		"unit_id":      res.UnitID,
		"invoice_id":   res.InvoiceID,
		"invoice_kind": string(res.InvoiceKind),
		"branch_id":    res.BranchID,
		"status":       string(res.Status),
		"reserved_at":  res.ReservedAt,
	})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Release(r.Context(), id, principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *Handler) handleReleaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	released, err := h.service.ReleaseForInvoice(r.Context(), id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": id, "released": released})
}

func (h *Handler) handleMarkDamaged(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.MarkDamaged(r.Context(), id, principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "damaged"})
}

type transferRequest struct {
	DestBranchID int64 `json:"dest_branch_id" validate:"required,gt=0"`
}

func (h *Handler) handleBeginTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("stock: %s", err.Error()))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.BeginTransfer(r.Context(), id, req.DestBranchID, principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "in_transit"})
}

func (h *Handler) handleCompleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.CompleteTransfer(r.Context(), id, principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "available"})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("stock: invalid id")
	}
	return id, nil
}
