package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ad-reporting-engine/internal/reporting"
)

func TestUsageLogger_CountsByStatus(t *testing.T) {
	c := APICalls.WithLabelValues("report_impression", reporting.StatusInvalidArgument.String())
	before := testutil.ToFloat64(c)

	UsageLogger{}.LogAPICall("report_impression", "com.app", reporting.StatusInvalidArgument, 3*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestPipelineMetrics(t *testing.T) {
	m := PipelineMetrics{}

	b := BeaconsRegistered.WithLabelValues("buyer")
	before := testutil.ToFloat64(b)
	m.BeaconsRegistered(reporting.DestinationBuyer, 4)
	assert.Equal(t, before+4, testutil.ToFloat64(b))

	skipped := Notifications.WithLabelValues("seller", "skipped")
	before = testutil.ToFloat64(skipped)
	m.Notification(reporting.DestinationSeller, false)
	assert.Equal(t, before+1, testutil.ToFloat64(skipped))

	m.ObservePhase("seller_script", 10*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(PhaseLatency), 1)
}

func TestMeasure_RecordsStatus(t *testing.T) {
	c := RequestsTotal.WithLabelValues("418")
	before := testutil.ToFloat64(c)

	h := Measure(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
