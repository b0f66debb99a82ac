package alerts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/rbac"
)

type scanQueueStub struct {
	calls int
}

func (q *scanQueueStub) EnqueueAlertScan(context.Context) error {
	q.calls++
	return nil
}

func newAlertRouter(queue ScanEnqueuer) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Logger: logger}
	svc := NewService(newMemAlertRepo(), &stubStock{}, logger)
	h := NewHandler(logger, svc, mw, queue)
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Route("/alerts", h.MountRoutes)
	return r
}

func postScan(router http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/alerts/scan", nil)
	req.Header.Set(rbac.HeaderUserID, "1")
	req.Header.Set(rbac.HeaderRole, "ADMIN")
	req.Header.Set(rbac.HeaderBranch, "1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueScanQueuesJob(t *testing.T) {
	queue := &scanQueueStub{}
	router := newAlertRouter(queue)

	rec := postScan(router)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, queue.calls)
}

func TestEnqueueScanWithoutQueueConflicts(t *testing.T) {
	router := newAlertRouter(nil)

	rec := postScan(router)
	require.Equal(t, http.StatusConflict, rec.Code)
}
