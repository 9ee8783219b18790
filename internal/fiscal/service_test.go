package fiscal_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"lithipos/internal/device"
	"lithipos/internal/fiscal"
	"lithipos/internal/fiscalday"
	"lithipos/internal/gateway"
	"lithipos/internal/keys"
	"lithipos/internal/ledger"
	"lithipos/internal/platform/metrics"
	"lithipos/internal/reporting"
	"lithipos/internal/signing"
	"lithipos/internal/storage"
	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/requestcontext"
)

// FiscalServiceSuite drives the orchestrator end to end: provisioning,
// registration, day control, and receipt submission against the in-memory
// store with real key material.
type FiscalServiceSuite struct {
	suite.Suite
	store      *storage.InMemoryStore
	keyManager *keys.Manager
	mock       *gateway.MockClient
	service    *fiscal.Service
}

func TestFiscalServiceSuite(t *testing.T) {
	suite.Run(t, new(FiscalServiceSuite))
}

func (s *FiscalServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	s.store = storage.NewInMemoryStore()
	s.keyManager = keys.NewManager(s.T().TempDir())
	s.mock = &gateway.MockClient{}

	signer := signing.NewSigner(s.keyManager)
	deviceSvc := device.NewService(s.store)
	daySvc := fiscalday.NewService(s.store, logger)
	ledgerSvc := ledger.NewService(s.store, s.store, signer, 0.15, m, logger)
	reporter := reporting.NewReporter(s.mock, ledgerSvc, 0.15, time.Second, m, logger)

	s.service = fiscal.NewService(s.keyManager, deviceSvc, daySvc, ledgerSvc, s.mock, reporter, m, logger)
}

// provision walks the full setup flow and returns the assigned device ID.
func (s *FiscalServiceSuite) provision() string {
	s.T().Helper()
	ctx := context.Background()

	deviceID, err := s.service.FetchAuthorityDeviceID(ctx, "SN-001")
	s.Require().NoError(err)
	s.Require().NotEmpty(deviceID)

	csr, err := s.service.GenerateDeviceKeys(ctx, deviceID, "SN-001")
	s.Require().NoError(err)
	s.Require().Contains(csr, "CERTIFICATE REQUEST")

	cert, err := s.service.CompleteRegistration(ctx, deviceID, csr)
	s.Require().NoError(err)
	s.Require().Contains(cert, "CERTIFICATE")

	return deviceID
}

func (s *FiscalServiceSuite) TestProvisioningFlow() {
	deviceID := s.provision()

	status, err := s.service.GetDeviceStatus(context.Background(), deviceID)
	s.Require().NoError(err)
	s.True(status.Registered)
	s.False(status.DayOpen)
	s.Zero(status.DayNumber)
}

func (s *FiscalServiceSuite) TestGenerateKeysTwiceFails() {
	ctx := context.Background()
	deviceID := s.provision()

	_, err := s.service.GenerateDeviceKeys(ctx, deviceID, "SN-001")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *FiscalServiceSuite) TestFetchDeviceIDUnreachableAuthority() {
	s.mock.Unreachable = true

	_, err := s.service.FetchAuthorityDeviceID(context.Background(), "SN-001")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *FiscalServiceSuite) TestSubmitReceiptChainsFromGenesis() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)

	at := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	result, err := s.service.SubmitReceipt(requestcontext.WithTime(ctx, at), deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)

	s.Equal(int64(1), result.GlobalNo)
	s.Equal("INV-000001", result.InvoiceNo)
	s.Equal("20260115093000", result.Timestamp)
	s.Equal(ledger.StatusReported, result.ReportStatus)

	wantHash := signing.ComputeHash(deviceID, 1, 1, decimal.RequireFromString("10.00"), device.Genesis, "20260115093000")
	s.Equal(wantHash, result.Hash)

	// The stored signature must verify against the device's own key.
	key, err := s.keyManager.Load(deviceID)
	s.Require().NoError(err)
	s.True(signing.Verify(&key.PublicKey, result.Hash, result.Signature))
}

func (s *FiscalServiceSuite) TestSecondReceiptLinksToFirst() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)

	first, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)
	second, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("5.50"), "USD")
	s.Require().NoError(err)

	s.Equal(int64(2), second.GlobalNo)
	s.Equal("INV-000002", second.InvoiceNo)

	stored, err := s.service.GetReceipt(ctx, deviceID, 2)
	s.Require().NoError(err)
	s.Equal(first.Hash, stored.PreviousHash)
}

func (s *FiscalServiceSuite) TestSubmitAfterCloseDayRejected() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)
	_, err = s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)

	s.Require().NoError(s.service.CloseDay(ctx, deviceID))

	_, err = s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("5.00"), "USD")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *FiscalServiceSuite) TestUnreachableAuthorityQueuesButPersists() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)

	s.mock.Unreachable = true
	result, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err, "local submit must succeed even when the authority is down")
	s.Equal(ledger.StatusQueued, result.ReportStatus)

	stored, err := s.service.GetReceipt(ctx, deviceID, result.GlobalNo)
	s.Require().NoError(err)
	s.Equal(ledger.StatusQueued, stored.ReportStatus)
	s.NotEmpty(stored.Hash)
	s.NotEmpty(stored.Signature)

	// Chain continues from the queued receipt once the authority is back.
	s.mock.Unreachable = false
	next, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("5.00"), "USD")
	s.Require().NoError(err)
	s.Equal(result.GlobalNo+1, next.GlobalNo)
	s.Equal(ledger.StatusReported, next.ReportStatus)
}

func (s *FiscalServiceSuite) TestReopenedDayKeepsGlobalNumbering() {
	deviceID := s.provision()
	ctx := context.Background()

	dayNo, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)
	s.Equal(1, dayNo)

	_, err = s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)
	s.Require().NoError(s.service.CloseDay(ctx, deviceID))

	dayNo, err = s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)
	s.Equal(2, dayNo)

	result, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("5.00"), "USD")
	s.Require().NoError(err)
	s.Equal(int64(2), result.GlobalNo, "global numbers span fiscal days")

	stored, err := s.service.GetReceipt(ctx, deviceID, 2)
	s.Require().NoError(err)
	s.Equal(2, stored.FiscalDayNo)
}

func (s *FiscalServiceSuite) TestQRPayloadFormat() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)

	at := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	result, err := s.service.SubmitReceipt(requestcontext.WithTime(ctx, at), deviceID, decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)

	want := deviceID + "20260115093000" + "1" + result.Hash[:16]
	s.Equal(want, result.QRData)
	s.True(strings.HasPrefix(result.QRData, deviceID))
}

func (s *FiscalServiceSuite) TestListReceipts() {
	deviceID := s.provision()
	ctx := context.Background()

	_, err := s.service.OpenDay(ctx, deviceID)
	s.Require().NoError(err)
	for i := 0; i < 3; i++ {
		_, err := s.service.SubmitReceipt(ctx, deviceID, decimal.RequireFromString("1.00"), "USD")
		s.Require().NoError(err)
	}

	receipts, err := s.service.ListReceipts(ctx, deviceID, 0)
	s.Require().NoError(err)
	s.Require().Len(receipts, 3)
	s.Equal(int64(1), receipts[0].GlobalNo)
	s.Equal(int64(3), receipts[2].GlobalNo)
}
