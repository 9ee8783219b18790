// Package fiscal is the orchestration layer behind the local service
// surface: device provisioning, registration with the authority, day
// control, and receipt submission. Handlers call this and nothing below it.
package fiscal

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"lithipos/internal/device"
	"lithipos/internal/fiscalday"
	"lithipos/internal/gateway"
	"lithipos/internal/keys"
	"lithipos/internal/ledger"
	"lithipos/internal/platform/metrics"
	"lithipos/internal/reporting"
	"lithipos/internal/signing"
	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/requestcontext"
)

// qrHashLength is how many characters of the receipt hash go into the QR
// payload. Fixed at 16: verifier apps truncate the same way, so this is a
// compatibility constant, not a tunable.
const qrHashLength = 16

// Service wires the fiscal subsystem together.
type Service struct {
	keys     *keys.Manager
	devices  *device.Service
	days     *fiscalday.Service
	ledger   *ledger.Service
	gateway  gateway.Client
	reporter *reporting.Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	defaultTaxpayer device.TaxpayerProfile
}

func NewService(
	km *keys.Manager,
	devices *device.Service,
	days *fiscalday.Service,
	chain *ledger.Service,
	gw gateway.Client,
	reporter *reporting.Reporter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		keys:     km,
		devices:  devices,
		days:     days,
		ledger:   chain,
		gateway:  gw,
		reporter: reporter,
		metrics:  m,
		logger:   logger,
	}
}

// SetDefaultTaxpayer sets the profile stamped onto newly registered devices.
func (s *Service) SetDefaultTaxpayer(p device.TaxpayerProfile) {
	s.defaultTaxpayer = p
}

// FetchAuthorityDeviceID asks the authority which device ID a serial maps
// to. Gateway failures here are fatal: there is no local artifact to fall
// back on yet.
func (s *Service) FetchAuthorityDeviceID(ctx context.Context, serialNumber string) (string, error) {
	if serialNumber == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "serial number is required")
	}
	deviceID, err := s.gateway.LookupDeviceID(ctx, serialNumber)
	if err != nil {
		s.metrics.GatewayFailures.WithLabelValues("lookup").Inc()
		return "", err
	}
	return deviceID, nil
}

// GenerateDeviceKeys creates the device keypair, registers the identity
// record, and returns the CSR to submit to the authority. Key collision is an
// error: a second keypair under the same device ID means identity corruption.
func (s *Service) GenerateDeviceKeys(ctx context.Context, deviceID, serialNumber string) (string, error) {
	key, err := s.keys.Generate(deviceID)
	if err != nil {
		return "", err
	}
	csr, err := s.keys.BuildCSR(deviceID, serialNumber, key)
	if err != nil {
		return "", err
	}
	if err := s.devices.Register(ctx, deviceID, serialNumber, s.defaultTaxpayer); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "device keys generated",
		"device_id", deviceID,
		"serial_number", serialNumber,
		"request_id", requestcontext.RequestID(ctx),
	)
	return string(csr), nil
}

// CompleteRegistration submits the CSR and stores the issued certificate.
func (s *Service) CompleteRegistration(ctx context.Context, deviceID, csrPEM string) (string, error) {
	if csrPEM == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "csr is required")
	}
	cert, err := s.gateway.IssueCertificate(ctx, deviceID, []byte(csrPEM))
	if err != nil {
		s.metrics.GatewayFailures.WithLabelValues("register").Inc()
		return "", err
	}
	if err := s.devices.AttachCertificate(ctx, deviceID, cert); err != nil {
		return "", err
	}
	s.metrics.DevicesRegistered.Inc()
	s.logger.InfoContext(ctx, "device registered", "device_id", deviceID)
	return cert, nil
}

// GetDeviceStatus is the read-only projection.
func (s *Service) GetDeviceStatus(ctx context.Context, deviceID string) (device.Status, error) {
	return s.devices.GetStatus(ctx, deviceID)
}

// OpenDay opens the next fiscal day.
func (s *Service) OpenDay(ctx context.Context, deviceID string) (int, error) {
	dayNo, err := s.days.Open(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	s.metrics.FiscalDaysOpened.Inc()
	return dayNo, nil
}

// CloseDay closes the fiscal day; closing a closed day succeeds.
func (s *Service) CloseDay(ctx context.Context, deviceID string) error {
	return s.days.Close(ctx, deviceID)
}

// SubmitResult is the submit-receipt response payload.
type SubmitResult struct {
	InvoiceNo    string              `json:"invoiceNo"`
	GlobalNo     int64               `json:"globalNo"`
	Amount       decimal.Decimal     `json:"amount"`
	TaxAmount    decimal.Decimal     `json:"taxAmount"`
	Currency     string              `json:"currency"`
	Timestamp    string              `json:"timestamp"`
	Hash         string              `json:"hash"`
	Signature    string              `json:"signature"`
	ReportStatus ledger.ReportStatus `json:"reportStatus"`
	QRData       string              `json:"qrData"`
}

// SubmitReceipt appends a receipt to the local chain, then reports it to the
// authority. The report runs strictly after the local transaction commits;
// its outcome only selects REPORTED or QUEUED and can never fail the submit.
func (s *Service) SubmitReceipt(ctx context.Context, deviceID string, amount decimal.Decimal, currency string) (*SubmitResult, error) {
	receipt, err := s.ledger.Append(ctx, deviceID, amount, currency)
	if err != nil {
		return nil, err
	}

	status, _ := s.reporter.Report(ctx, receipt)

	timestamp := receipt.CreatedAt.Format(signing.TimestampFormat)
	return &SubmitResult{
		InvoiceNo:    receipt.InvoiceNo,
		GlobalNo:     receipt.GlobalNo,
		Amount:       receipt.TotalAmount,
		TaxAmount:    receipt.TaxAmount,
		Currency:     receipt.Currency,
		Timestamp:    timestamp,
		Hash:         receipt.Hash,
		Signature:    receipt.Signature,
		ReportStatus: status,
		QRData:       QRPayload(deviceID, timestamp, receipt.GlobalNo, receipt.Hash),
	}, nil
}

// GetReceipt returns one receipt.
func (s *Service) GetReceipt(ctx context.Context, deviceID string, globalNo int64) (*ledger.Receipt, error) {
	return s.ledger.Get(ctx, deviceID, globalNo)
}

// ListReceipts returns the device's chain in order.
func (s *Service) ListReceipts(ctx context.Context, deviceID string, limit int) ([]*ledger.Receipt, error) {
	return s.ledger.List(ctx, deviceID, limit)
}

// QRPayload builds the verification string encoded into the receipt QR code:
// deviceId ∥ timestamp ∥ globalNo ∥ first 16 chars of the hash.
func QRPayload(deviceID, timestamp string, globalNo int64, hash string) string {
	truncated := hash
	if len(truncated) > qrHashLength {
		truncated = truncated[:qrHashLength]
	}
	return deviceID + timestamp + strconv.FormatInt(globalNo, 10) + truncated
}
