package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sunspec2mqtt"

const (
	ResultOk      = "ok"
	ResultPartial = "partial"
	ResultError   = "error"
)

// Metrics groups the bridge collectors on a dedicated registry.
type Metrics struct {
	registry     *prometheus.Registry
	modbusTime   *prometheus.HistogramVec
	deviceReads  *prometheus.CounterVec
	readDuration prometheus.Histogram
	datasets     prometheus.Gauge
	warnings     *prometheus.CounterVec
	lastRead     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		modbusTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_request_duration_seconds",
			Help:      "Duration of Modbus requests by operation.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		deviceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_reads_total",
			Help:      "Number of device walks by result.",
		}, []string{"result"}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_read_duration_seconds",
			Help:      "Duration of a full device walk.",
			Buckets:   prometheus.ExponentialBuckets(.05, 2, 10),
		}),
		datasets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datasets",
			Help:      "Number of model datasets decoded by the last read.",
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_warnings_total",
			Help:      "Number of decoder and reader warnings by kind.",
		}, []string{"kind"}),
		lastRead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_read_timestamp_seconds",
			Help:      "Unix time of the last complete device read.",
		}),
	}
	m.registry.MustRegister(
		m.modbusTime,
		m.deviceReads,
		m.readDuration,
		m.datasets,
		m.warnings,
		m.lastRead,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument feeds the Modbus request histogram from transport timings.
func (m *Metrics) Instrument() sunspec_modbus.ModbusInstrument {
	return sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.modbusTime.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

// Warn counts warnings by kind; Metrics is a sunspec.Diagnostics sink.
func (m *Metrics) Warn(w sunspec.Warning) {
	m.warnings.WithLabelValues(w.Kind.String()).Inc()
}

// ObserveRead records the outcome of one device walk. A failed read that
// still decoded datasets counts as partial.
func (m *Metrics) ObserveRead(dev *sunspec.Device, duration time.Duration, err error) {
	m.readDuration.Observe(duration.Seconds())
	switch {
	case err == nil:
		m.deviceReads.WithLabelValues(ResultOk).Inc()
		m.lastRead.SetToCurrentTime()
	case dev != nil && len(dev.Datasets) > 0:
		m.deviceReads.WithLabelValues(ResultPartial).Inc()
	default:
		m.deviceReads.WithLabelValues(ResultError).Inc()
	}
	if dev != nil {
		m.datasets.Set(float64(len(dev.Datasets)))
	}
}
