package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outbound and inbound message schemas for the authority API. These are
// explicit structs, not ad-hoc maps: the report payload is a wire contract
// the authority validates field by field.

type lookupDeviceIDRequest struct {
	SerialNumber string `json:"serialNumber"`
}

type lookupDeviceIDResponse struct {
	DeviceID string `json:"deviceID"`
}

type issueCertificateRequest struct {
	DeviceID string `json:"deviceID"`
	CSR      string `json:"csr"`
}

type issueCertificateResponse struct {
	Certificate string `json:"certificate"`
}

// SubmitReceiptRequest is the structured receipt report.
type SubmitReceiptRequest struct {
	ReceiptType              string          `json:"receiptType"`
	ReceiptCurrency          string          `json:"receiptCurrency"`
	ReceiptCounter           int64           `json:"receiptCounter"`
	ReceiptGlobalNo          int64           `json:"receiptGlobalNo"`
	InvoiceNo                string          `json:"invoiceNo"`
	ReceiptDate              time.Time       `json:"receiptDate"`
	ReceiptLinesTaxInclusive bool            `json:"receiptLinesTaxInclusive"`
	ReceiptLines             []ReceiptLine   `json:"receiptLines"`
	ReceiptTaxes             []ReceiptTax    `json:"receiptTaxes"`
	ReceiptPayments          []Payment       `json:"receiptPayments"`
	ReceiptTotal             decimal.Decimal `json:"receiptTotal"`
	ReceiptDeviceSignature   DeviceSignature `json:"receiptDeviceSignature"`
}

type ReceiptLine struct {
	ReceiptLineType     string          `json:"receiptLineType"`
	ReceiptLineNo       int             `json:"receiptLineNo"`
	ReceiptLineName     string          `json:"receiptLineName"`
	ReceiptLineQuantity int             `json:"receiptLineQuantity"`
	ReceiptLineTotal    decimal.Decimal `json:"receiptLineTotal"`
	TaxPercent          decimal.Decimal `json:"taxPercent"`
	TaxID               int             `json:"taxID"`
}

type ReceiptTax struct {
	TaxID              int             `json:"taxID"`
	TaxPercent         decimal.Decimal `json:"taxPercent"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	SalesAmountWithTax decimal.Decimal `json:"salesAmountWithTax"`
}

type Payment struct {
	MoneyTypeCode string          `json:"moneyTypeCode"`
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
}

type DeviceSignature struct {
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
}

type submitReceiptResponse struct {
	ReceiptServerSignature DeviceSignature `json:"receiptServerSignature"`
}

// OutcomeStatus classifies the result of a receipt report.
type OutcomeStatus string

const (
	// OutcomeAcknowledged: the authority accepted and countersigned.
	OutcomeAcknowledged OutcomeStatus = "acknowledged"
	// OutcomeRejected: the authority answered with a non-success status.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeUnreachable: the authority could not be reached in time.
	OutcomeUnreachable OutcomeStatus = "unreachable"
)

// ReportOutcome is what a report attempt produced. It is a value, not an
// error: reporting failures are degraded states, never failures of the local
// submit operation.
type ReportOutcome struct {
	Status          OutcomeStatus
	ServerSignature string
	Reason          string
}
