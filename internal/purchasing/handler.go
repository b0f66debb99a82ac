package purchasing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the purchasing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapPurchaseEdit))
		r.Post("/orders", h.handleCreatePO)
		r.Post("/orders/{id}/items", h.handleAddItem)
		r.Post("/orders/{id}/submit", h.handleSubmit)
		r.Get("/orders/{id}", h.handleGetPO)
		r.Post("/grns", h.handleCreateGRN)
		r.Post("/grns/{id}/receive", h.handleReceiveGRN)
		r.Post("/grns/{id}/landing-costs", h.handleAddLandingCost)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapPurchaseApprove))
		r.Post("/orders/{id}/approve", h.handleApprove)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapPurchaseFinalize))
		r.Post("/grns/{id}/finalize", h.handleFinalize)
	})
}

type createPORequest struct {
	Number     string `json:"number"`
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	BranchID   int64  `json:"branch_id" validate:"required,gt=0"`
	Note       string `json:"note"`
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: %s", err.Error()))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	po, err := h.service.CreatePurchaseOrder(r.Context(), CreatePOInput{
		Number:     req.Number,
		SupplierID: req.SupplierID,
		BranchID:   req.BranchID,
		Note:       req.Note,
		ActorID:    principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poResponse(po))
}

type addItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: %s", err.Error()))
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: invalid unit price"))
		return
	}
	item, err := h.service.AddItem(r.Context(), id, ItemInput{
		ProductID: req.ProductID,
		Qty:       req.Qty,
		UnitPrice: price,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         item.ID,
		"product_id": item.ProductID,
		"qty":        item.Qty,
		"unit_price": item.UnitPrice.StringFixed(2),
		"line_total": item.LineTotal.StringFixed(2),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit, "submitted")
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve, "approved")
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListPOItems(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body := poResponse(po)
	lines := make([]map[string]any, 0, len(items))
	for _, item := range items {
		lines = append(lines, map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"qty":        item.Qty,
			"unit_price": item.UnitPrice.StringFixed(2),
			"line_total": item.LineTotal.StringFixed(2),
		})
	}
	body["items"] = lines
	httpx.JSON(w, http.StatusOK, body)
}

type createGRNRequest struct {
	Number string `json:"number"`
	POID   int64  `json:"po_id" validate:"required,gt=0"`
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: %s", err.Error()))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	grn, err := h.service.CreateGRN(r.Context(), CreateGRNInput{
		Number:  req.Number,
		POID:    req.POID,
		ActorID: principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":          grn.ID,
		"number":      grn.Number,
		"po_id":       grn.POID,
		"supplier_id": grn.SupplierID,
		"branch_id":   grn.BranchID,
		"status":      string(grn.Status),
	})
}

func (h *Handler) handleReceiveGRN(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ReceiveGRN, "received")
}

type landingCostRequest struct {
	Kind   string `json:"kind" validate:"required"`
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note"`
}

func (h *Handler) handleAddLandingCost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req landingCostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: %s", err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("purchasing: invalid amount"))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	lc, err := h.service.AddLandingCost(r.Context(), LandingCostInput{
		GRNID:   id,
		Kind:    req.Kind,
		Amount:  amount,
		Note:    req.Note,
		ActorID: principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":     lc.ID,
		"kind":   lc.Kind,
		"amount": lc.Amount.StringFixed(2),
	})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	final, err := h.service.FinalizePurchase(r.Context(), id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":            final.ID,
		"grn_id":        final.GRNID,
		"goods_total":   final.GoodsTotal.StringFixed(2),
		"landing_total": final.LandingTotal.StringFixed(2),
		"final_amount":  final.FinalAmount.StringFixed(2),
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) error, result string) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := fn(r.Context(), id, principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": result})
}

func poResponse(po PurchaseOrder) map[string]any {
	return map[string]any{
		"id":          po.ID,
		"number":      po.Number,
		"supplier_id": po.SupplierID,
		"branch_id":   po.BranchID,
		"status":      string(po.Status),
		"total":       po.Total.StringFixed(2),
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("purchasing: invalid id")
	}
	return id, nil
}
