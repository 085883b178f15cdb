package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	got *ingestion.ChangeRequest
	err error
}

func (f *fakePublisher) Publish(_ context.Context, req *ingestion.ChangeRequest) (*ingestion.ChangeResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.ChangeResponse{EventID: "evt-1", Accepted: len(req.RecordIDs), Status: "queued"}, nil
}

func serve(t *testing.T, pub *fakePublisher, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	New(pub).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records/changed", strings.NewReader(body)))
	return rec
}

func TestRecordsChangedAccepted(t *testing.T) {
	pub := &fakePublisher{}
	rec := serve(t, pub, `{"record_ids":[3,4],"reason":"updated"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestion.ChangeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, []int64{3, 4}, pub.got.RecordIDs)
}

func TestRecordsChangedRejectsBadInput(t *testing.T) {
	rec := serve(t, &fakePublisher{}, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pub := &fakePublisher{}
	rec = serve(t, pub, `{"record_ids":[-1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "record_ids")
	assert.Nil(t, pub.got)
}

func TestRecordsChangedPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: apperrors.Wrap(apperrors.ErrUnavailable, nil, "change feed unavailable")}
	rec := serve(t, pub, `{"record_ids":[1]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
