package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fiscal service.
type Metrics struct {
	ReceiptsIssued      prometheus.Counter
	ReceiptAppendErrors prometheus.Counter
	AppendDuration      prometheus.Histogram

	ReportsAcknowledged prometheus.Counter
	ReportsQueued       prometheus.Counter
	ReportsRejected     prometheus.Counter
	GatewayFailures     *prometheus.CounterVec

	FiscalDaysOpened  prometheus.Counter
	DevicesRegistered prometheus.Counter
}

// New creates all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceiptsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_receipts_issued_total",
			Help: "Receipts appended to the local chain ledger",
		}),
		ReceiptAppendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_receipt_append_errors_total",
			Help: "Failed receipt append attempts",
		}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lithipos_receipt_append_duration_seconds",
			Help:    "Latency of the local append critical section",
			Buckets: prometheus.DefBuckets,
		}),
		ReportsAcknowledged: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_reports_acknowledged_total",
			Help: "Receipt reports acknowledged by the authority",
		}),
		ReportsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_reports_queued_total",
			Help: "Receipt reports deferred because the authority was unreachable",
		}),
		ReportsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_reports_rejected_total",
			Help: "Receipt reports rejected by the authority",
		}),
		GatewayFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lithipos_gateway_failures_total",
			Help: "Authority gateway failures by operation",
		}, []string{"operation"}),
		FiscalDaysOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_fiscal_days_opened_total",
			Help: "Fiscal days opened across all devices",
		}),
		DevicesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "lithipos_devices_registered_total",
			Help: "Devices that completed certificate registration",
		}),
	}
}
