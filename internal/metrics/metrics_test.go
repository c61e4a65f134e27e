package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRead(t *testing.T) {

	assert := assert.New(t)

	m := New()
	dev := sunspec.NewDevice()
	dev.Datasets = []*sunspec.Dataset{{}, {}}

	m.ObserveRead(dev, 100*time.Millisecond, nil)
	m.ObserveRead(dev, 100*time.Millisecond, errors.New("timeout"))
	m.ObserveRead(sunspec.NewDevice(), 100*time.Millisecond, errors.New("timeout"))

	assert.Equal(1.0, testutil.ToFloat64(m.deviceReads.WithLabelValues(ResultOk)))
	assert.Equal(1.0, testutil.ToFloat64(m.deviceReads.WithLabelValues(ResultPartial)))
	assert.Equal(1.0, testutil.ToFloat64(m.deviceReads.WithLabelValues(ResultError)))
	assert.Equal(0.0, testutil.ToFloat64(m.datasets))
	assert.Greater(testutil.ToFloat64(m.lastRead), 0.0)
}

func TestWarnings(t *testing.T) {

	assert := assert.New(t)

	m := New()
	diag := sunspec.Tee(sunspec.Discard, m)
	diag.Warn(sunspec.Warning{Kind: sunspec.WarnUnknownDid})
	diag.Warn(sunspec.Warning{Kind: sunspec.WarnUnknownDid})
	diag.Warn(sunspec.Warning{Kind: sunspec.WarnLengthMismatch})

	assert.Equal(2.0, testutil.ToFloat64(m.warnings.WithLabelValues("unknown_did")))
	assert.Equal(1.0, testutil.ToFloat64(m.warnings.WithLabelValues("length_mismatch")))
}

func TestInstrumentAndHandler(t *testing.T) {

	assert := assert.New(t)

	m := New()
	m.Instrument().RecordTime("ReadRegisters", 20*time.Millisecond)
	m.Instrument().RecordTime("ReadRegisters", 30*time.Millisecond)

	assert.Equal(1, testutil.CollectAndCount(m.modbusTime))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(200, rec.Code)
	assert.Contains(string(body), `sunspec2mqtt_modbus_request_duration_seconds_count{op="ReadRegisters"} 2`)
}
