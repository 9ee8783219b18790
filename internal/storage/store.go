// Package storage defines the persistence interfaces and ships the in-memory
// and PostgreSQL implementations. Stores are interface-driven to keep the
// domain logic testable and to allow swapping persistence without rewiring
// business code. Stores return pkg/platform/sentinel errors; services
// translate them into coded domain errors.
package storage

import (
	"context"
	"time"

	"lithipos/internal/device"
	"lithipos/internal/ledger"
	"lithipos/internal/operator"
)

// DeviceStore persists device identity and fiscal-day state, one record per
// device.
type DeviceStore interface {
	// Create registers the identity if absent. Re-creating with the same
	// serial is a no-op success; a different serial for an existing device
	// ID returns sentinel.ErrConflict.
	Create(ctx context.Context, d *device.Device) error

	Find(ctx context.Context, deviceID string) (*device.Device, error)

	// AttachCertificate stores the issued certificate and flips the device
	// to registered.
	AttachCertificate(ctx context.Context, deviceID, certificate string) error

	// OpenDay transitions CLOSED -> OPEN and increments the day number in
	// one atomic step, returning the new day number. Returns
	// sentinel.ErrInvalidState when the day is already open (the day
	// number must not move in that case).
	OpenDay(ctx context.Context, deviceID string) (int, error)

	// CloseDay transitions OPEN -> CLOSED. Closing an already-closed day
	// succeeds (closing is the safe, idempotent direction).
	CloseDay(ctx context.Context, deviceID string) error
}

// ReceiptStore is the append-only receipt ledger. There is no delete or
// general update: SetReportStatus is the single permitted mutation.
type ReceiptStore interface {
	// Append persists the receipt and advances the device chain tip from
	// expectedTip to receipt.Hash as a single atomic unit, provided the
	// fiscal day is still open. A tip that no longer matches, a closed
	// day, or a duplicate (device, globalNo) returns sentinel.ErrConflict
	// with nothing written.
	Append(ctx context.Context, r *ledger.Receipt, expectedTip string) error

	// NextGlobalNo computes max(global_no)+1 from persisted receipts.
	// Recomputing from the ledger itself (rather than a counter) is what
	// makes crash recovery trivial: nothing can drift.
	NextGlobalNo(ctx context.Context, deviceID string) (int64, error)

	FindByGlobalNo(ctx context.Context, deviceID string, globalNo int64) (*ledger.Receipt, error)

	// ListByDevice returns receipts in ascending global-number order.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*ledger.Receipt, error)

	// ListByStatus returns receipts across all devices in the given report
	// status, oldest first.
	ListByStatus(ctx context.Context, status ledger.ReportStatus, limit int) ([]*ledger.Receipt, error)

	// ListUnreported returns receipts that still owe the authority a
	// report: every QUEUED receipt, plus PENDING receipts created before
	// pendingBefore. A PENDING older than that was stranded by a crash or
	// a failed status write between the local commit and the report.
	// Oldest first.
	ListUnreported(ctx context.Context, pendingBefore time.Time, limit int) ([]*ledger.Receipt, error)

	// SetReportStatus records the authority outcome for one receipt.
	SetReportStatus(ctx context.Context, deviceID string, globalNo int64, status ledger.ReportStatus, serverSignature string) error
}

// Store is the combined persistence surface the server wires once. Both the
// in-memory and postgres implementations satisfy it.
type Store interface {
	DeviceStore
	ReceiptStore
}

// OperatorStore persists POS operators.
type OperatorStore interface {
	Create(ctx context.Context, op *operator.Operator) error
	FindByUsername(ctx context.Context, username string) (*operator.Operator, error)
}
