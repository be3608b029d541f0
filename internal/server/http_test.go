package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/export"
	"github.com/joseph-ayodele/faxintake/internal/metrics"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                     { return s.name }
func (s stubChecker) CheckReady(context.Context) error { return s.err }

type fixture struct {
	repo   repository.AuthorizationRepository
	router http.Handler
	ids    []string
}

func newFixture(t *testing.T, checkers ...ReadinessChecker) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewSQLiteRepository(db, zap.NewNop())

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i, name := range []string{"fax1", "fax2", "fax3"} {
		id, err := repo.Create(ctx, name+"/"+name+".pdf", name+".pdf", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, repo.Complete(ctx, ids[0], entity.ExtractedFields{}))
	require.NoError(t, repo.MarkFailed(ctx, ids[1], "boom"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := NewHandler(repo, export.NewService(repo, nil), reg, nil, checkers...)
	return &fixture{repo: repo, router: h.Router(m.Middleware), ids: ids}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, stubChecker{name: "store"})
	rec := f.get(t, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = f.get(t, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t, stubChecker{name: "store"}, stubChecker{name: "redis", err: errors.New("dial tcp: refused")})
	rec = f.get(t, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "fail", body.Status)
	assert.Equal(t, "ok", body.Checks["store"].Status)
	assert.Equal(t, "fail", body.Checks["redis"].Status)
}

func TestListAuthorizations(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/authorizations")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Items []entity.AuthorizationRecord `json:"items"`
		Limit int                          `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all.Items, 3)
	assert.Equal(t, "fax3/fax3.pdf", all.Items[0].SourcePath)
	assert.Equal(t, repository.DefaultListLimit, all.Limit)

	rec = f.get(t, "/api/v1/authorizations?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	var failed struct {
		Items []entity.AuthorizationRecord `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&failed))
	require.Len(t, failed.Items, 1)
	require.NotNil(t, failed.Items[0].ErrorMessage)
	assert.Equal(t, "boom", *failed.Items[0].ErrorMessage)

	rec = f.get(t, "/api/v1/authorizations?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []entity.AuthorizationRecord `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "fax2/fax2.pdf", page.Items[0].SourcePath)
}

func TestListAuthorizations_BadInput(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/v1/authorizations?status=pending",
		"/api/v1/authorizations?limit=0",
		"/api/v1/authorizations?limit=abc",
		"/api/v1/authorizations?offset=-1",
	} {
		rec := f.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		var body errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "INVALID_ARGUMENT", body.Error)
		assert.NotEmpty(t, body.RequestID)
	}
}

func TestGetAuthorization(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/authorizations/"+f.ids[0])
	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.AuthorizationRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, f.ids[0], got.ID)
	assert.Equal(t, "completed", string(got.Status))

	rec = f.get(t, "/api/v1/authorizations/2f1c7f4e-8a9b-4a7e-9e59-0d6c3f1b2a11")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.get(t, "/api/v1/authorizations/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportAuthorizations(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/authorizations/export.xlsx?status=completed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Greater(t, rec.Body.Len(), 0)
	// xlsx is a zip container
	assert.Equal(t, "PK", rec.Body.String()[:2])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	_ = f.get(t, "/api/v1/authorizations")
	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "faxintake_http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(headerRequestID))
}
