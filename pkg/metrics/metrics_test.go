package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SlicesTotal.WithLabelValues("ok").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["textdex_slices_total"])
	assert.True(t, names["textdex_build_progress_ratio"])

	// a second set of collectors must not collide with the first registry
	New(prometheus.NewRegistry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PostingsInserted.Add(3)
	m.PlansTotal.WithLabelValues("intersect").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "textdex_postings_inserted_total 3")
	assert.Contains(t, string(body), `textdex_plans_total{kind="intersect"} 1`)
}
