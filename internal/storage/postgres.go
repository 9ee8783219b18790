package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lithipos/internal/device"
	"lithipos/internal/ledger"
	"lithipos/internal/operator"
	"lithipos/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL error code for constraint 23505.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresStore implements the device and receipt stores on PostgreSQL.
// Writes that must not interleave use a transaction with a conditional
// chain-tip update; the unique (device_id, global_no) index backstops any
// writer that slipped past the in-process lock.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, d *device.Device) error {
	tip := d.ChainTip
	if tip == "" {
		tip = device.Genesis
	}
	query := `
		INSERT INTO devices (device_id, serial_number, chain_tip, taxpayer_name, trade_name, bp_number, vat_number, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		d.DeviceID, d.SerialNumber, tip,
		d.Taxpayer.TaxpayerName, d.Taxpayer.TradeName, d.Taxpayer.BPNumber, d.Taxpayer.VATNumber, d.Taxpayer.Address,
	)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	if rows == 0 {
		// Row already exists; re-registering the same serial is fine.
		var serial string
		err := s.db.QueryRowContext(ctx, `SELECT serial_number FROM devices WHERE device_id = $1`, d.DeviceID).Scan(&serial)
		if err != nil {
			return fmt.Errorf("create device: %w", err)
		}
		if serial != d.SerialNumber {
			return sentinel.ErrConflict
		}
	}
	return nil
}

const deviceColumns = `device_id, serial_number, COALESCE(certificate, ''), registered,
	fiscal_day_no, is_day_open, chain_tip,
	taxpayer_name, trade_name, bp_number, vat_number, address, created_at`

func scanDevice(row *sql.Row) (*device.Device, error) {
	var d device.Device
	err := row.Scan(
		&d.DeviceID, &d.SerialNumber, &d.Certificate, &d.Registered,
		&d.FiscalDayNo, &d.IsDayOpen, &d.ChainTip,
		&d.Taxpayer.TaxpayerName, &d.Taxpayer.TradeName, &d.Taxpayer.BPNumber, &d.Taxpayer.VATNumber, &d.Taxpayer.Address,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) Find(ctx context.Context, deviceID string) (*device.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`
	d, err := scanDevice(s.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) AttachCertificate(ctx context.Context, deviceID, certificate string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET certificate = $2, registered = TRUE WHERE device_id = $1`,
		deviceID, certificate,
	)
	if err != nil {
		return fmt.Errorf("attach certificate: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// OpenDay flips the flag and increments the day number in one statement, so
// two concurrent opens can never both succeed or double-increment.
func (s *PostgresStore) OpenDay(ctx context.Context, deviceID string) (int, error) {
	var dayNo int
	err := s.db.QueryRowContext(ctx, `
		UPDATE devices
		SET is_day_open = TRUE, fiscal_day_no = fiscal_day_no + 1
		WHERE device_id = $1 AND is_day_open = FALSE
		RETURNING fiscal_day_no
	`, deviceID).Scan(&dayNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either missing or already open; disambiguate.
			var open bool
			innerErr := s.db.QueryRowContext(ctx, `SELECT is_day_open FROM devices WHERE device_id = $1`, deviceID).Scan(&open)
			if errors.Is(innerErr, sql.ErrNoRows) {
				return 0, sentinel.ErrNotFound
			}
			if innerErr != nil {
				return 0, fmt.Errorf("open day: %w", innerErr)
			}
			return 0, sentinel.ErrInvalidState
		}
		return 0, fmt.Errorf("open day: %w", err)
	}
	return dayNo, nil
}

func (s *PostgresStore) CloseDay(ctx context.Context, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET is_day_open = FALSE WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("close day: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Append inserts the receipt and advances the chain tip in one transaction.
// The conditional update carries both preconditions, the expected tip and an
// open day, so a lost race or a close committed by another instance shows up
// as zero affected rows; nothing is committed in that case, and a retry
// recomputes from clean state.
func (s *PostgresStore) Append(ctx context.Context, r *ledger.Receipt, expectedTip string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append receipt: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE devices SET chain_tip = $3
		WHERE device_id = $1 AND chain_tip = $2 AND is_day_open = TRUE
	`, r.DeviceID, expectedTip, r.Hash)
	if err != nil {
		return fmt.Errorf("append receipt: advance tip: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append receipt: advance tip: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE device_id = $1)`, r.DeviceID).Scan(&exists); err != nil {
			return fmt.Errorf("append receipt: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (device_id, global_no, fiscal_day_no, invoice_no,
			total_amount, tax_amount, currency,
			previous_hash, hash, signature, report_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		r.DeviceID, r.GlobalNo, r.FiscalDayNo, r.InvoiceNo,
		r.TotalAmount, r.TaxAmount, r.Currency,
		r.PreviousHash, r.Hash, r.Signature, string(r.ReportStatus), r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append receipt: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append receipt: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextGlobalNo(ctx context.Context, deviceID string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(global_no), 0) + 1 FROM receipts WHERE device_id = $1`,
		deviceID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next global no: %w", err)
	}
	return next, nil
}

const receiptColumns = `device_id, global_no, fiscal_day_no, invoice_no,
	total_amount, tax_amount, currency,
	previous_hash, hash, signature, report_status, COALESCE(server_signature, ''), created_at`

func scanReceipt(scanner interface{ Scan(...any) error }) (*ledger.Receipt, error) {
	var r ledger.Receipt
	var status string
	err := scanner.Scan(
		&r.DeviceID, &r.GlobalNo, &r.FiscalDayNo, &r.InvoiceNo,
		&r.TotalAmount, &r.TaxAmount, &r.Currency,
		&r.PreviousHash, &r.Hash, &r.Signature, &status, &r.ServerSignature, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ReportStatus = ledger.ReportStatus(status)
	return &r, nil
}

func (s *PostgresStore) FindByGlobalNo(ctx context.Context, deviceID string, globalNo int64) (*ledger.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE device_id = $1 AND global_no = $2`
	r, err := scanReceipt(s.db.QueryRowContext(ctx, query, deviceID, globalNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*ledger.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE device_id = $1 ORDER BY global_no`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.listReceipts(ctx, query, args...)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status ledger.ReportStatus, limit int) ([]*ledger.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE report_status = $1 ORDER BY created_at`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.listReceipts(ctx, query, args...)
}

func (s *PostgresStore) ListUnreported(ctx context.Context, pendingBefore time.Time, limit int) ([]*ledger.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts
		WHERE report_status = $1 OR (report_status = $2 AND created_at < $3)
		ORDER BY created_at`
	args := []any{string(ledger.StatusQueued), string(ledger.StatusPending), pendingBefore}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	return s.listReceipts(ctx, query, args...)
}

func (s *PostgresStore) listReceipts(ctx context.Context, query string, args ...any) ([]*ledger.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("list receipts: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetReportStatus(ctx context.Context, deviceID string, globalNo int64, status ledger.ReportStatus, serverSignature string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE receipts
		SET report_status = $3, server_signature = NULLIF($4, '')
		WHERE device_id = $1 AND global_no = $2
	`, deviceID, globalNo, string(status), serverSignature)
	if err != nil {
		return fmt.Errorf("set report status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// PostgresOperatorStore persists POS operators.
type PostgresOperatorStore struct {
	db *sql.DB
}

func NewPostgresOperatorStore(db *sql.DB) *PostgresOperatorStore {
	return &PostgresOperatorStore{db: db}
}

func (s *PostgresOperatorStore) Create(ctx context.Context, op *operator.Operator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, username, pin_hash, role)
		VALUES ($1, $2, $3, $4)
	`, op.ID, op.Username, op.PINHash, string(op.Role))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

func (s *PostgresOperatorStore) FindByUsername(ctx context.Context, username string) (*operator.Operator, error) {
	var op operator.Operator
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, pin_hash, role, created_at FROM operators WHERE username = $1
	`, username).Scan(&op.ID, &op.Username, &op.PINHash, &role, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find operator: %w", err)
	}
	op.Role = operator.Role(role)
	return &op, nil
}
