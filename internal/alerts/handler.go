package alerts

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ScanEnqueuer hands an immediate alert scan to the job queue.
type ScanEnqueuer interface {
	EnqueueAlertScan(ctx context.Context) error
}

// Handler wires HTTP endpoints for the alerts module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	queue   ScanEnqueuer
}

// NewHandler constructs the alerts handler. The queue may be nil when no
// worker is deployed; the scan endpoint then reports a conflict.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware, queue ScanEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, queue: queue}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapAlertView))
		r.Get("/", h.handleListOpen)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapAlertAck))
		r.Post("/{alertID}/ack", h.handleAcknowledge)
		r.Post("/scan", h.handleEnqueueScan)
	})
}

func (h *Handler) handleEnqueueScan(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, shared.Conflictf("alerts: job queue not configured"))
		return
	}
	if err := h.queue.EnqueueAlertScan(r.Context()); err != nil {
		h.logger.Error("alerts scan enqueue", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	var branchID int64
	if raw := r.URL.Query().Get("branch_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			httpx.RespondError(w, shared.Validationf("alerts: invalid branch id"))
			return
		}
		branchID = parsed
	}
	rows, err := h.service.ListOpen(r.Context(), branchID)
	if err != nil {
		h.logger.Error("alerts list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID, err := strconv.ParseInt(chi.URLParam(r, "alertID"), 10, 64)
	if err != nil || alertID <= 0 {
		httpx.RespondError(w, shared.Validationf("alerts: invalid alert id"))
		return
	}
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.Permissionf("alerts: missing caller identity"))
		return
	}
	if err := h.service.Acknowledge(r.Context(), alertID, principal.UserID); err != nil {
		h.logger.Error("alerts ack", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"result": "acknowledged"})
}
