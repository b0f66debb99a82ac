package profit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the profit module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the profit handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers profit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapDistributionView))
		r.Get("/{period}/preview", h.handlePreview)
		r.Get("/{period}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapDistributionFinal))
		r.Post("/{period}/finalize", h.handleFinalize)
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dist, details, err := h.service.Preview(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, distributionBody(dist, details))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dist, details, err := h.service.GetDistribution(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, distributionBody(dist, details))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	dist, details, err := h.service.Finalize(r.Context(), period, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("distribution finalized",
		slog.String("period", period.String()),
		slog.String("pool", dist.Pool.String()))
	httpx.JSON(w, http.StatusOK, distributionBody(dist, details))
}

func distributionBody(dist Distribution, details []DistributionDetail) map[string]any {
	lines := make([]map[string]any, 0, len(details))
	for _, d := range details {
		lines = append(lines, map[string]any{
			"investor_id":   d.InvestorID,
			"share_percent": d.SharePercent.String(),
			"amount":        d.Amount.StringFixed(2),
		})
	}
	return map[string]any{
		"period":       dist.Period.String(),
		"pool":         dist.Pool.StringFixed(2),
		"is_finalized": dist.IsFinalized,
		"details":      lines,
	}
}
