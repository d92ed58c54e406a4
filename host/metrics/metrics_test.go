package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransaction(t *testing.T) {
	before := testutil.ToFloat64(transactions.WithLabelValues("send", ResultOK))
	RecordTransaction("send", ResultOK, 2*time.Millisecond)
	RecordTransaction("send", ResultOK, 0)
	after := testutil.ToFloat64(transactions.WithLabelValues("send", ResultOK))

	assert.Equal(t, before+2, after)
}

func TestOpenBusesGauge(t *testing.T) {
	before := testutil.ToFloat64(openBuses)
	BusOpened()
	assert.Equal(t, before+1, testutil.ToFloat64(OpenBuses()))
	BusClosed()
	assert.Equal(t, before, testutil.ToFloat64(OpenBuses()))
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterMetrics()
		RegisterMetrics()
	})
}
