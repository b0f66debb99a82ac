package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapInvoiceEdit))
		r.Post("/invoices", h.handleCreateInvoice)
		r.Post("/invoices/{id}/issue", h.handleIssue)
		r.Get("/invoices/{id}", h.handleGetInvoice)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapInvoicePay))
		r.Post("/invoices/{id}/payments", h.handleRecordPayment)
		r.Post("/invoices/{id}/aging/refresh", h.handleRefreshAging)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapReportView))
		r.Get("/parties/{id}/outstanding", h.handleOutstanding)
		r.Get("/aging", h.handleAgingSummary)
	})
}

type createInvoiceRequest struct {
	Number   string `json:"number"`
	Kind     string `json:"kind" validate:"required"`
	PartyID  int64  `json:"party_id" validate:"required,gt=0"`
	BranchID int64  `json:"branch_id" validate:"required,gt=0"`
	Total    string `json:"total" validate:"required"`
	DueAt    string `json:"due_at" validate:"required"`
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("billing: %s", err.Error()))
		return
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("billing: invalid total"))
		return
	}
	dueAt, err := time.Parse("2006-01-02", req.DueAt)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("billing: invalid due date"))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		Number:   req.Number,
		Kind:     InvoiceKind(req.Kind),
		PartyID:  req.PartyID,
		BranchID: req.BranchID,
		Total:    total,
		DueAt:    dueAt,
		ActorID:  principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse(inv))
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	inv, err := h.service.Issue(r.Context(), id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse(inv))
}

type recordPaymentRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("billing: %s", err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("billing: invalid amount"))
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	inv, payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		InvoiceID: id,
		Amount:    amount,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
		ActorID:   principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body := invoiceResponse(inv)
	body["payment"] = map[string]any{
		"id":        payment.ID,
		"number":    payment.Number,
		"amount":    payment.Amount.StringFixed(2),
		"reference": payment.Reference,
		"notes":     payment.Notes,
		"paid_at":   payment.PaidAt,
	}
	httpx.JSON(w, http.StatusCreated, body)
}

func (h *Handler) handleRefreshAging(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	row, err := h.service.UpdateInvoiceAging(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoice_id":   row.InvoiceID,
		"outstanding":  row.Outstanding.StringFixed(2),
		"days_overdue": row.DaysOverdue,
		"bucket":       string(row.Bucket),
	})
}

func (h *Handler) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	outstanding, err := h.service.Outstanding(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"party_id":    id,
		"outstanding": outstanding.StringFixed(2),
	})
}

func (h *Handler) handleAgingSummary(w http.ResponseWriter, r *http.Request) {
	var partyID int64
	if raw := r.URL.Query().Get("party_id"); raw != "" {
		var err error
		partyID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || partyID <= 0 {
			httpx.RespondError(w, shared.Validationf("billing: invalid party id"))
			return
		}
	}
	summary, err := h.service.AgingSummary(r.Context(), partyID)
	if err != nil {
		h.logger.Error("aging summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	type bucketResponse struct {
		Bucket string `json:"bucket"`
		Count  int    `json:"count"`
		Total  string `json:"total"`
	}
	out := make([]bucketResponse, 0, len(summary))
	for _, s := range summary {
		out = append(out, bucketResponse{Bucket: string(s.Bucket), Count: s.Count, Total: s.Total.StringFixed(2)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func invoiceResponse(inv Invoice) map[string]any {
	return map[string]any{
		"id":          inv.ID,
		"number":      inv.Number,
		"kind":        string(inv.Kind),
		"party_id":    inv.PartyID,
		"branch_id":   inv.BranchID,
		"total":       inv.Total.StringFixed(2),
		"paid":        inv.Paid.StringFixed(2),
		"outstanding": inv.Outstanding.StringFixed(2),
		"credit":      inv.Credit.StringFixed(2),
		"status":      string(inv.Status),
		"due_at":      inv.DueAt.Format("2006-01-02"),
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("billing: invalid id")
	}
	return id, nil
}
