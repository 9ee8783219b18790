package httptransport

import (
	"context"

	"github.com/shopspring/decimal"

	"lithipos/internal/device"
	"lithipos/internal/fiscal"
	"lithipos/internal/ledger"
)

// FiscalService defines the orchestrator operations the transport exposes.
type FiscalService interface {
	FetchAuthorityDeviceID(ctx context.Context, serialNumber string) (string, error)
	GenerateDeviceKeys(ctx context.Context, deviceID, serialNumber string) (string, error)
	CompleteRegistration(ctx context.Context, deviceID, csrPEM string) (string, error)
	GetDeviceStatus(ctx context.Context, deviceID string) (device.Status, error)
	OpenDay(ctx context.Context, deviceID string) (int, error)
	CloseDay(ctx context.Context, deviceID string) error
	SubmitReceipt(ctx context.Context, deviceID string, amount decimal.Decimal, currency string) (*fiscal.SubmitResult, error)
	GetReceipt(ctx context.Context, deviceID string, globalNo int64) (*ledger.Receipt, error)
	ListReceipts(ctx context.Context, deviceID string, limit int) ([]*ledger.Receipt, error)
}

// OperatorService defines the operator login operation.
type OperatorService interface {
	Login(ctx context.Context, username, pin string) (string, error)
}
