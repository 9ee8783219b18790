package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReportStatus tracks the authority's view of a receipt. It is the only
// receipt field that may change after creation.
type ReportStatus string

const (
	// StatusPending: locally persisted, report not yet attempted.
	StatusPending ReportStatus = "PENDING"
	// StatusReported: acknowledged by the authority.
	StatusReported ReportStatus = "REPORTED"
	// StatusQueued: locally complete and valid, but the authority did not
	// acknowledge it yet; the report worker retries it.
	StatusQueued ReportStatus = "QUEUED"
)

// Receipt is one link in a device's hash chain. Immutable once created,
// except for ReportStatus/ServerSignature.
type Receipt struct {
	DeviceID    string
	GlobalNo    int64
	FiscalDayNo int
	InvoiceNo   string

	TotalAmount decimal.Decimal
	TaxAmount   decimal.Decimal
	Currency    string

	PreviousHash string
	Hash         string
	Signature    string

	ReportStatus    ReportStatus
	ServerSignature string

	CreatedAt time.Time
}

// InvoiceNo derives the display identifier for a global number.
func InvoiceNo(globalNo int64) string {
	return fmt.Sprintf("INV-%06d", globalNo)
}
