package device

import "time"

// Device is the per-device identity and fiscal state record. It is the single
// authoritative copy of the chain tip and fiscal-day state; the ledger reads
// and writes them through the same row so chains cannot diverge.
//
// Devices are never deleted (audit requirement), and DeviceID is immutable
// once assigned by the authority.
type Device struct {
	DeviceID     string
	SerialNumber string

	// Certificate is the PEM-encoded public certificate issued by the
	// authority. Empty until registration completes; non-empty iff
	// Registered is true.
	Certificate string
	Registered  bool

	// FiscalDayNo only ever increases. Zero means no day was ever opened.
	FiscalDayNo int
	IsDayOpen   bool

	// ChainTip is the hash of the most recent receipt, or Genesis when the
	// device has issued none.
	ChainTip string

	Taxpayer TaxpayerProfile

	CreatedAt time.Time
}

// Genesis is the chain tip value before the first receipt exists.
const Genesis = "0"

// TaxpayerProfile is the fiscal-memory identity echoed on printed receipts
// and report headers.
type TaxpayerProfile struct {
	TaxpayerName string
	TradeName    string
	BPNumber     string
	VATNumber    string
	Address      string
}

// Status is the read-only projection exposed to external callers.
type Status struct {
	Registered bool `json:"registered"`
	DayOpen    bool `json:"dayOpen"`
	DayNumber  int  `json:"dayNumber"`
}
