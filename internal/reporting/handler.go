package reporting

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SnapshotEnqueuer hands a snapshot rebuild to the job queue. An empty date
// means yesterday, matching the nightly schedule.
type SnapshotEnqueuer interface {
	EnqueueDailySnapshot(ctx context.Context, date string) error
}

// Handler wires HTTP endpoints for the reporting module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	queue   SnapshotEnqueuer
	printer *message.Printer
}

// NewHandler constructs the reporting handler. The queue may be nil when no
// worker is deployed; the rebuild endpoint then reports a conflict.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware, queue SnapshotEnqueuer) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		rbac:    rbacMW,
		queue:   queue,
		printer: message.NewPrinter(language.English),
	}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapReportView))
		r.Get("/daily-sales", h.handleDailySales)
		r.Get("/monthly-revenue/{period}", h.handleMonthlyRevenue)
		r.Get("/profit-breakdown", h.handleProfitBreakdown)
		r.Get("/supplier-payables", h.handleSupplierPayables)
		r.Get("/branch-outstanding", h.handleBranchOutstanding)
		r.Get("/aging", h.handleAgingSummary)
		r.Get("/aging/export.csv", h.handleAgingExport)
		r.Post("/snapshots", h.handleEnqueueSnapshot)
	})
}

type enqueueSnapshotRequest struct {
	Date string `json:"date"`
}

func (h *Handler) handleEnqueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, shared.Conflictf("reporting: job queue not configured"))
		return
	}
	var req enqueueSnapshotRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			httpx.RespondError(w, shared.Validationf("reporting: invalid date"))
			return
		}
	}
	if err := h.queue.EnqueueDailySnapshot(r.Context(), req.Date); err != nil {
		h.respondErr(w, "enqueue snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleDailySales(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("reporting: invalid date"))
			return
		}
		date = parsed
	}
	rows, err := h.service.DailySales(r.Context(), date)
	if err != nil {
		h.respondErr(w, "daily sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.MonthlyRevenue(r.Context(), period)
	if err != nil {
		h.respondErr(w, "monthly revenue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleProfitBreakdown(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		httpx.RespondError(w, shared.Validationf("reporting: invalid from date"))
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		httpx.RespondError(w, shared.Validationf("reporting: invalid to date"))
		return
	}
	breakdown, err := h.service.ProfitBreakdown(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.respondErr(w, "profit breakdown", err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) handleSupplierPayables(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.SupplierPayables(r.Context())
	if err != nil {
		h.respondErr(w, "supplier payables", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleBranchOutstanding(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.BranchOutstanding(r.Context())
	if err != nil {
		h.respondErr(w, "branch outstanding", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAgingSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.AgingSummary(r.Context())
	if err != nil {
		h.respondErr(w, "aging summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAgingExport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.AgingSummary(r.Context())
	if err != nil {
		h.respondErr(w, "aging export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aging_summary.csv"`)

	streamer := newCSVStreamer(w)
	total := decimal.Zero
	count := 0
	for _, row := range rows {
		total = total.Add(row.Total)
		count += row.Count
	}
	_ = streamer.writeComment(fmt.Sprintf("# Aging summary as of %s", time.Now().UTC().Format("2006-01-02")))
	_ = streamer.writeComment(h.printer.Sprintf("# Open invoices: %d, total outstanding: %s", count, total.StringFixed(2)))
	_ = streamer.writeRow([]string{"bucket", "count", "total"})
	for _, row := range rows {
		if err := streamer.writeRow([]string{row.Bucket, fmt.Sprintf("%d", row.Count), row.Total.StringFixed(2)}); err != nil {
			h.logger.Error("aging export write", slog.Any("error", err))
			return
		}
	}
	if err := streamer.Close(); err != nil {
		h.logger.Error("aging export flush", slog.Any("error", err))
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}
