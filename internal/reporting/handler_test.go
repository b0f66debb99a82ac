package reporting

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/rbac"
)

type queueStub struct {
	dates []string
}

func (q *queueStub) EnqueueDailySnapshot(_ context.Context, date string) error {
	q.dates = append(q.dates, date)
	return nil
}

func newSnapshotRouter(queue SnapshotEnqueuer) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(&mockReportRepo{}, nil, nil)
	mw := rbac.Middleware{Logger: logger}
	h := NewHandler(logger, svc, mw, queue)
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Route("/reports", h.MountRoutes)
	return r
}

func postSnapshot(router http.Handler, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/reports/snapshots", reader)
	req.Header.Set(rbac.HeaderUserID, "1")
	req.Header.Set(rbac.HeaderRole, "ADMIN")
	req.Header.Set(rbac.HeaderBranch, "1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueSnapshotQueuesRebuild(t *testing.T) {
	queue := &queueStub{}
	router := newSnapshotRouter(queue)

	rec := postSnapshot(router, `{"date":"2026-08-15"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"2026-08-15"}, queue.dates)

	rec = postSnapshot(router, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"2026-08-15", ""}, queue.dates)
}

func TestEnqueueSnapshotRejectsBadDate(t *testing.T) {
	queue := &queueStub{}
	router := newSnapshotRouter(queue)

	rec := postSnapshot(router, `{"date":"15-08-2026"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, queue.dates)
}

func TestEnqueueSnapshotWithoutQueueConflicts(t *testing.T) {
	router := newSnapshotRouter(nil)

	rec := postSnapshot(router, `{"date":"2026-08-15"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}
