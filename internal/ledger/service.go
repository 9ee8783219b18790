// Package ledger is the append-only, hash-linked, globally numbered receipt
// chain. Append is the one critical section in the system: everything from
// reading the chain tip to committing the new receipt is serialized per
// device.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"lithipos/internal/device"
	"lithipos/internal/platform/metrics"
	"lithipos/internal/signing"
	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/platform/sentinel"
	"lithipos/pkg/requestcontext"
)

// DeviceStore is the slice of the device store the ledger reads chain state
// from.
type DeviceStore interface {
	Find(ctx context.Context, deviceID string) (*device.Device, error)
}

// Store is the receipt persistence surface. Satisfied by
// storage.ReceiptStore.
type Store interface {
	Append(ctx context.Context, r *Receipt, expectedTip string) error
	NextGlobalNo(ctx context.Context, deviceID string) (int64, error)
	FindByGlobalNo(ctx context.Context, deviceID string, globalNo int64) (*Receipt, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*Receipt, error)
	SetReportStatus(ctx context.Context, deviceID string, globalNo int64, status ReportStatus, serverSignature string) error
}

// Signer produces the device signature over a receipt hash.
type Signer interface {
	Sign(deviceID, hash string) (string, error)
}

// Service owns receipt creation and the report-status transition.
type Service struct {
	receipts Store
	devices  DeviceStore
	signer   Signer
	taxRate  decimal.Decimal
	locks    *keyedMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(receipts Store, devices DeviceStore, signer Signer, taxRate float64, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		receipts: receipts,
		devices:  devices,
		signer:   signer,
		taxRate:  decimal.NewFromFloat(taxRate),
		locks:    newKeyedMutex(),
		metrics:  m,
		logger:   logger,
	}
}

// Append creates the next receipt in the device's chain. The per-device lock
// spans the read of the global number and chain tip through the persisted
// write, so concurrent submissions for one device serialize; different
// devices proceed in parallel. The store's conditional tip write catches
// writers from other processes.
func (s *Service) Append(ctx context.Context, deviceID string, amount decimal.Decimal, currency string) (*Receipt, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if currency == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "currency is required")
	}

	start := time.Now()
	mu := s.locks.get(deviceID)
	mu.Lock()
	defer mu.Unlock()

	dev, err := s.devices.Find(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load device state")
	}
	if !dev.IsDayOpen {
		return nil, dErrors.Newf(dErrors.CodeConflict, "fiscal day is not open for device %s", deviceID)
	}

	globalNo, err := s.receipts.NextGlobalNo(ctx, deviceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "allocate global number")
	}

	createdAt := requestcontext.Now(ctx)
	timestamp := createdAt.Format(signing.TimestampFormat)
	hash := signing.ComputeHash(deviceID, dev.FiscalDayNo, globalNo, amount, dev.ChainTip, timestamp)

	signature, err := s.signer.Sign(deviceID, hash)
	if err != nil {
		// KeyNotFound propagates with its own code.
		return nil, err
	}

	receipt := &Receipt{
		DeviceID:     deviceID,
		GlobalNo:     globalNo,
		FiscalDayNo:  dev.FiscalDayNo,
		InvoiceNo:    InvoiceNo(globalNo),
		TotalAmount:  amount,
		TaxAmount:    amount.Mul(s.taxRate).Round(2),
		Currency:     currency,
		PreviousHash: dev.ChainTip,
		Hash:         hash,
		Signature:    signature,
		ReportStatus: StatusPending,
		CreatedAt:    createdAt,
	}

	if err := s.receipts.Append(ctx, receipt, dev.ChainTip); err != nil {
		s.metrics.ReceiptAppendErrors.Inc()
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Newf(dErrors.CodeConflict, "concurrent append detected for device %s", deviceID)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist receipt")
		}
	}

	s.metrics.ReceiptsIssued.Inc()
	s.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "receipt appended",
		"device_id", deviceID,
		"global_no", globalNo,
		"fiscal_day_no", dev.FiscalDayNo,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

// SetReportStatus records the authority outcome. It never touches any other
// receipt field.
func (s *Service) SetReportStatus(ctx context.Context, deviceID string, globalNo int64, status ReportStatus, serverSignature string) error {
	if err := s.receipts.SetReportStatus(ctx, deviceID, globalNo, status, serverSignature); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "receipt %d for device %s not found", globalNo, deviceID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "set report status")
	}
	return nil
}

// Get returns one receipt by global number.
func (s *Service) Get(ctx context.Context, deviceID string, globalNo int64) (*Receipt, error) {
	r, err := s.receipts.FindByGlobalNo(ctx, deviceID, globalNo)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "receipt %d for device %s not found", globalNo, deviceID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find receipt")
	}
	return r, nil
}

// List returns the device's receipts in chain order.
func (s *Service) List(ctx context.Context, deviceID string, limit int) ([]*Receipt, error) {
	receipts, err := s.receipts.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list receipts")
	}
	return receipts, nil
}
