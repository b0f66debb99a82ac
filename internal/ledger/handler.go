package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapLedgerView))
		r.Get("/{kind}/{subjectID}/balance", h.handleBalance)
		r.Get("/{kind}/{subjectID}/history", h.handleHistory)
	})
}

type balanceResponse struct {
	Kind      string `json:"kind"`
	SubjectID int64  `json:"subject_id"`
	Balance   string `json:"balance"`
}

type entryResponse struct {
	ID             int64  `json:"id"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	RunningBalance string `json:"running_balance"`
	Description    string `json:"description"`
	Reference      string `json:"reference"`
	EntryAt        string `json:"entry_at"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	kind, subjectID, err := subjectParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), kind, subjectID)
	if err != nil {
		h.logger.Error("ledger balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{Kind: string(kind), SubjectID: subjectID, Balance: balance.StringFixed(2)})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	kind, subjectID, err := subjectParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := HistoryFilter{Kind: kind, SubjectID: subjectID}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("ledger: invalid from date"))
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("ledger: invalid to date"))
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	entries, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("ledger history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:             e.ID,
		Debit:          e.Debit.StringFixed(2),
		Credit:         e.Credit.StringFixed(2),
		RunningBalance: e.RunningBalance.StringFixed(2),
		Description:    e.Description,
		Reference:      e.Reference,
		EntryAt:        e.EntryAt.Format(time.RFC3339),
	}
}

func subjectParams(r *http.Request) (SubjectKind, int64, error) {
	kind := SubjectKind(chi.URLParam(r, "kind"))
	switch kind {
	case SubjectBranch, SubjectSupplier:
	default:
		return "", 0, shared.Validationf("ledger: unknown subject kind")
	}
	subjectID, err := strconv.ParseInt(chi.URLParam(r, "subjectID"), 10, 64)
	if err != nil || subjectID <= 0 {
		return "", 0, shared.Validationf("ledger: invalid subject id")
	}
	return kind, subjectID, nil
}
