// Package reporting submits locally committed receipts to the authority and
// keeps their report status current. It runs strictly after local
// persistence: nothing here can fail or roll back a receipt.
package reporting

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"lithipos/internal/gateway"
	"lithipos/internal/ledger"
	"lithipos/internal/platform/metrics"
)

// StatusStore is the single receipt mutation the reporter needs.
type StatusStore interface {
	SetReportStatus(ctx context.Context, deviceID string, globalNo int64, status ledger.ReportStatus, serverSignature string) error
}

// Reporter converts gateway outcomes into report-status transitions.
type Reporter struct {
	gateway gateway.Client
	store   StatusStore
	taxRate decimal.Decimal
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReporter(gw gateway.Client, store StatusStore, taxRate float64, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Reporter {
	return &Reporter{
		gateway: gw,
		store:   store,
		taxRate: decimal.NewFromFloat(taxRate),
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Report submits one receipt and records the outcome. The call is detached
// from the caller's cancellation: once the receipt exists locally, aborting
// the HTTP request that carried it must not strand the report mid-update.
// Returns the resulting status and, when acknowledged, the server signature.
func (r *Reporter) Report(ctx context.Context, receipt *ledger.Receipt) (ledger.ReportStatus, string) {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	outcome := r.gateway.ReportReceipt(reportCtx, receipt.DeviceID, r.buildPayload(receipt))

	status := ledger.StatusQueued
	serverSignature := ""
	switch outcome.Status {
	case gateway.OutcomeAcknowledged:
		status = ledger.StatusReported
		serverSignature = outcome.ServerSignature
		r.metrics.ReportsAcknowledged.Inc()
	case gateway.OutcomeRejected:
		r.metrics.ReportsRejected.Inc()
		r.metrics.GatewayFailures.WithLabelValues("report").Inc()
	case gateway.OutcomeUnreachable:
		r.metrics.ReportsQueued.Inc()
		r.metrics.GatewayFailures.WithLabelValues("report").Inc()
	}

	if err := r.store.SetReportStatus(reportCtx, receipt.DeviceID, receipt.GlobalNo, status, serverSignature); err != nil {
		// The receipt keeps its old status; the worker re-submits
		// stranded PENDING and QUEUED receipts, so log and move on.
		r.logger.ErrorContext(reportCtx, "failed to record report status",
			"device_id", receipt.DeviceID,
			"global_no", receipt.GlobalNo,
			"status", string(status),
			"error", err.Error(),
		)
	}
	return status, serverSignature
}

// buildPayload shapes the receipt into the authority's report schema. Line
// items are the fixed single-line placeholder until the POS carries real
// baskets through.
func (r *Reporter) buildPayload(receipt *ledger.Receipt) gateway.SubmitReceiptRequest {
	taxPercent := r.taxRate.Mul(decimal.NewFromInt(100))
	return gateway.SubmitReceiptRequest{
		ReceiptType:              "FiscalInvoice",
		ReceiptCurrency:          receipt.Currency,
		ReceiptCounter:           receipt.GlobalNo,
		ReceiptGlobalNo:          receipt.GlobalNo,
		InvoiceNo:                receipt.InvoiceNo,
		ReceiptDate:              receipt.CreatedAt,
		ReceiptLinesTaxInclusive: true,
		ReceiptLines: []gateway.ReceiptLine{{
			ReceiptLineType:     "Sale",
			ReceiptLineNo:       1,
			ReceiptLineName:     "General Goods",
			ReceiptLineQuantity: 1,
			ReceiptLineTotal:    receipt.TotalAmount,
			TaxPercent:          taxPercent,
			TaxID:               1,
		}},
		ReceiptTaxes: []gateway.ReceiptTax{{
			TaxID:              1,
			TaxPercent:         taxPercent,
			TaxAmount:          receipt.TaxAmount,
			SalesAmountWithTax: receipt.TotalAmount,
		}},
		ReceiptPayments: []gateway.Payment{{
			MoneyTypeCode: "Cash",
			PaymentAmount: receipt.TotalAmount,
		}},
		ReceiptTotal: receipt.TotalAmount,
		ReceiptDeviceSignature: gateway.DeviceSignature{
			Hash:      receipt.Hash,
			Signature: receipt.Signature,
		},
	}
}
