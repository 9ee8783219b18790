package ledger_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"lithipos/internal/device"
	"lithipos/internal/ledger"
	"lithipos/internal/platform/metrics"
	"lithipos/internal/signing"
	"lithipos/internal/storage"
	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/requestcontext"
)

// fakeSigner signs without key material so tests stay fast and deterministic.
type fakeSigner struct{}

func (fakeSigner) Sign(deviceID, hash string) (string, error) {
	return "sig:" + deviceID + ":" + hash[:8], nil
}

type failingSigner struct{}

func (failingSigner) Sign(string, string) (string, error) {
	return "", dErrors.New(dErrors.CodeNotFound, "no key found")
}

type LedgerServiceSuite struct {
	suite.Suite
	store   *storage.InMemoryStore
	service *ledger.Service
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.store = storage.NewInMemoryStore()
	s.service = ledger.NewService(
		s.store, s.store, fakeSigner{}, 0.15,
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *LedgerServiceSuite) openDevice(deviceID string) {
	s.T().Helper()
	ctx := context.Background()
	err := s.store.Create(ctx, &device.Device{DeviceID: deviceID, SerialNumber: "SN-" + deviceID, CreatedAt: time.Now()})
	s.Require().NoError(err)
	_, err = s.store.OpenDay(ctx, deviceID)
	s.Require().NoError(err)
}

func (s *LedgerServiceSuite) TestFirstReceiptChainsFromGenesis() {
	s.openDevice("dev1")
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))

	amount := decimal.RequireFromString("10.00")
	r, err := s.service.Append(ctx, "dev1", amount, "USD")
	s.Require().NoError(err)

	s.Equal(int64(1), r.GlobalNo)
	s.Equal(1, r.FiscalDayNo)
	s.Equal("INV-000001", r.InvoiceNo)
	s.Equal(device.Genesis, r.PreviousHash)
	s.Equal(signing.ComputeHash("dev1", 1, 1, amount, device.Genesis, "20260115093000"), r.Hash)
	s.Equal(ledger.StatusPending, r.ReportStatus)
	s.True(r.TaxAmount.Equal(decimal.RequireFromString("1.50")), "tax was %s", r.TaxAmount)
}

func (s *LedgerServiceSuite) TestSecondReceiptChainsFromFirst() {
	s.openDevice("dev1")
	ctx := context.Background()

	first, err := s.service.Append(ctx, "dev1", decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)

	second, err := s.service.Append(ctx, "dev1", decimal.RequireFromString("5.50"), "USD")
	s.Require().NoError(err)

	s.Equal(int64(2), second.GlobalNo)
	s.Equal(first.Hash, second.PreviousHash)
	s.NotEqual(first.Hash, second.Hash)
}

func (s *LedgerServiceSuite) TestAppendRejectsClosedDay() {
	ctx := context.Background()
	err := s.store.Create(ctx, &device.Device{DeviceID: "dev1", SerialNumber: "SN-dev1", CreatedAt: time.Now()})
	s.Require().NoError(err)

	_, err = s.service.Append(ctx, "dev1", decimal.RequireFromString("10.00"), "USD")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *LedgerServiceSuite) TestAppendRejectsUnknownDevice() {
	_, err := s.service.Append(context.Background(), "ghost", decimal.RequireFromString("10.00"), "USD")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerServiceSuite) TestAppendValidatesAmountAndCurrency() {
	s.openDevice("dev1")
	ctx := context.Background()

	_, err := s.service.Append(ctx, "dev1", decimal.Zero, "USD")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Append(ctx, "dev1", decimal.RequireFromString("-1.00"), "USD")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Append(ctx, "dev1", decimal.RequireFromString("1.00"), "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *LedgerServiceSuite) TestSignerFailureLeavesChainUntouched() {
	s.store = storage.NewInMemoryStore()
	service := ledger.NewService(
		s.store, s.store, failingSigner{}, 0.15,
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	s.openDevice("dev1")
	ctx := context.Background()

	_, err := service.Append(ctx, "dev1", decimal.RequireFromString("10.00"), "USD")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	d, err := s.store.Find(ctx, "dev1")
	s.Require().NoError(err)
	s.Equal(device.Genesis, d.ChainTip)
}

// TestConcurrentAppendsStayGapFree hammers one device from many goroutines;
// the chain must come out contiguous with every receipt linked to its
// predecessor.
func (s *LedgerServiceSuite) TestConcurrentAppendsStayGapFree() {
	s.openDevice("dev1")
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			amount := decimal.NewFromInt(int64(n + 1))
			_, err := s.service.Append(ctx, "dev1", amount, "USD")
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	receipts, err := s.service.List(ctx, "dev1", 0)
	s.Require().NoError(err)
	s.Require().Len(receipts, goroutines)

	prev := device.Genesis
	for i, r := range receipts {
		s.Equal(int64(i+1), r.GlobalNo, "global numbers must be gap-free")
		s.Equal(prev, r.PreviousHash, "receipt %d must link to its predecessor", r.GlobalNo)
		prev = r.Hash
	}
}

func (s *LedgerServiceSuite) TestConcurrentAppendsAcrossDevicesDoNotInterfere() {
	ctx := context.Background()
	const devices = 5
	const perDevice = 10

	for i := 0; i < devices; i++ {
		s.openDevice(fmt.Sprintf("dev%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		for j := 0; j < perDevice; j++ {
			wg.Add(1)
			go func(dev int) {
				defer wg.Done()
				_, err := s.service.Append(ctx, fmt.Sprintf("dev%d", dev), decimal.RequireFromString("2.00"), "USD")
				s.NoError(err)
			}(i)
		}
	}
	wg.Wait()

	for i := 0; i < devices; i++ {
		receipts, err := s.service.List(ctx, fmt.Sprintf("dev%d", i), 0)
		s.Require().NoError(err)
		s.Len(receipts, perDevice)
		s.Equal(int64(perDevice), receipts[len(receipts)-1].GlobalNo)
	}
}

func (s *LedgerServiceSuite) TestSetReportStatus() {
	s.openDevice("dev1")
	ctx := context.Background()

	r, err := s.service.Append(ctx, "dev1", decimal.RequireFromString("10.00"), "USD")
	s.Require().NoError(err)

	s.Require().NoError(s.service.SetReportStatus(ctx, "dev1", r.GlobalNo, ledger.StatusReported, "server-sig"))

	got, err := s.service.Get(ctx, "dev1", r.GlobalNo)
	s.Require().NoError(err)
	s.Equal(ledger.StatusReported, got.ReportStatus)
	s.Equal("server-sig", got.ServerSignature)

	err = s.service.SetReportStatus(ctx, "dev1", 999, ledger.StatusReported, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
