package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/checkpoint"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	res *executor.Result
	err error
}

func (f *fakeFinder) Candidates(_ context.Context, term string) (*executor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeAdmin struct {
	more      bool
	err       error
	updated   []int64
	rebuilt   bool
	statusErr error
}

func (f *fakeAdmin) Status(context.Context) (indexer.Status, error) {
	if f.statusErr != nil {
		return indexer.Status{}, f.statusErr
	}
	st := checkpoint.Default()
	st.New = false
	st.First, st.Current, st.Last = 1, 3, 5
	return indexer.Status{State: st, Phase: st.Phase(), Fraction: st.Fraction()}, nil
}

func (f *fakeAdmin) RunOneBatch(context.Context) (bool, error) { return f.more, f.err }

func (f *fakeAdmin) Rebuild(context.Context) error {
	f.rebuilt = true
	return f.err
}

func (f *fakeAdmin) Update(_ context.Context, ids []int64) error {
	f.updated = ids
	return f.err
}

type kicks struct{ n int }

func (k *kicks) Enqueue() { k.n++ }

type testServer struct {
	mux    *http.ServeMux
	finder *fakeFinder
	admin  *fakeAdmin
	kicks  *kicks
}

func newServer() *testServer {
	s := &testServer{
		mux:    http.NewServeMux(),
		finder: &fakeFinder{},
		admin:  &fakeAdmin{},
		kicks:  &kicks{},
	}
	p := planner.New("textdex_postings", database.Postgres{}, metrics.New(prometheus.NewRegistry()))
	New(s.finder, p, s.admin, s.kicks).RegisterRoutes(s.mux)
	return s
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestSearch(t *testing.T) {
	s := newServer()
	s.finder.res = &executor.Result{Term: "olivi", Kind: planner.KindIntersect, Total: 1, RecordIDs: []int64{2}}

	rec := s.do(http.MethodGet, "/api/v1/search?q=Olivi", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res executor.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, []int64{2}, res.RecordIDs)
	assert.Equal(t, planner.KindIntersect, res.Kind)
}

func TestSearchErrors(t *testing.T) {
	s := newServer()
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/search", "").Code)

	s.finder.err = apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "index is still being built")
	rec := s.do(http.MethodGet, "/api/v1/search?q=abc", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "still being built")

	s.finder.err = errors.New("connection reset")
	rec = s.do(http.MethodGet, "/api/v1/search?q=abc", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestPlan(t *testing.T) {
	s := newServer()
	rec := s.do(http.MethodGet, "/api/v1/plan?q=Jo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp planResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, planner.KindPrefix, resp.Kind)
	assert.Equal(t, `SELECT DISTINCT record_id FROM textdex_postings WHERE shingle LIKE $1 ESCAPE '\'`, resp.Query)
	assert.Equal(t, []any{"jo%"}, resp.Args)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/plan?q=%20%20", "").Code)
}

func TestStatus(t *testing.T) {
	s := newServer()
	rec := s.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st indexer.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, checkpoint.PhaseBuilding, st.Phase)
	assert.InDelta(t, 0.5, st.Fraction, 1e-9)
}

func TestRunBatchKicksScheduler(t *testing.T) {
	s := newServer()
	s.admin.more = true
	rec := s.do(http.MethodPost, "/api/v1/index/batch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"more":true}`, rec.Body.String())
	assert.Equal(t, 1, s.kicks.n)

	s.admin.err = apperrors.ErrBuildHalted
	rec = s.do(http.MethodPost, "/api/v1/index/batch", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRebuild(t *testing.T) {
	s := newServer()
	rec := s.do(http.MethodPost, "/api/v1/index/rebuild", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, s.admin.rebuilt)
	assert.Equal(t, 1, s.kicks.n)
}

func TestRecordsChanged(t *testing.T) {
	s := newServer()
	rec := s.do(http.MethodPost, "/api/v1/records/changed", `{"record_ids":[4,9],"reason":"updated"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{4, 9}, s.admin.updated)

	rec = s.do(http.MethodPost, "/api/v1/records/changed", `{"record_ids":[],"reason":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "reason")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newServer()
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodGet, "/api/v1/index/rebuild", "").Code)
}
