package sales

import (
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

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapSalePost))
		r.Post("/post", h.handlePostSale)
		r.Get("/invoices/{id}/items", h.handleListItems)
	})
}

type postSaleRequest struct {
	InvoiceID int64             `json:"invoice_id" validate:"required,gt=0"`
	Prices    map[string]string `json:"prices" validate:"required,min=1"`
}

func (h *Handler) handlePostSale(w http.ResponseWriter, r *http.Request) {
	var req postSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("sales: %s", err.Error()))
		return
	}
	prices := make(map[int64]decimal.Decimal, len(req.Prices))
	for rawID, rawPrice := range req.Prices {
		unitID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || unitID <= 0 {
			httpx.RespondError(w, shared.Validationf("sales: invalid unit id %q", rawID))
			return
		}
		price, err := decimal.NewFromString(rawPrice)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("sales: invalid price for unit %s", rawID))
			return
		}
		prices[unitID] = price
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	items, err := h.service.PostSale(r.Context(), PostSaleInput{
		InvoiceID: req.InvoiceID,
		Prices:    prices,
		ActorID:   principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("sale posted",
		slog.Int64("invoice_id", req.InvoiceID),
		slog.Int("units", len(items)))
	httpx.JSON(w, http.StatusCreated, itemsBody(items))
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.RespondError(w, shared.Validationf("sales: invalid invoice id"))
		return
	}
	items, err := h.service.ListItemsForInvoice(r.Context(), invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemsBody(items))
}

func itemsBody(items []SaleItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":             item.ID,
			"invoice_id":     item.InvoiceID,
			"unit_id":        item.UnitID,
			"product_id":     item.ProductID,
			"branch_id":      item.BranchID,
			"retail_price":   item.RetailPrice.StringFixed(2),
			"landing_cost":   item.LandingCost.StringFixed(2),
			"branch_cost":    item.BranchCost.StringFixed(2),
			"profit":         item.Profit.StringFixed(2),
			"investor_share": item.InvestorShare.StringFixed(2),
			"master_share":   item.MasterShare.StringFixed(2),
			"cash_due_hq":    item.CashDueHeadOffice.StringFixed(2),
			"sold_at":        item.SoldAt,
		})
	}
	return out
}
