package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	dErrors "lithipos/pkg/errors"
)

// MockClient is a deterministic in-process authority for development and
// tests: device IDs derive from the serial, certificates are placeholder PEM,
// and reports are acknowledged with a synthetic server signature. A
// configurable latency mimics real-world calls; Unreachable forces the
// degraded reporting path.
type MockClient struct {
	Latency     time.Duration
	Unreachable bool
	RejectAll   bool
}

func (c *MockClient) LookupDeviceID(_ context.Context, serialNumber string) (string, error) {
	time.Sleep(c.Latency)
	if c.Unreachable {
		return "", dErrors.New(dErrors.CodeUnavailable, "authority unreachable")
	}
	if c.RejectAll || serialNumber == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "authority rejected serial")
	}
	sum := sha256.Sum256([]byte(serialNumber))
	// Six digits is enough to be unique across a test fleet.
	return fmt.Sprintf("%d", 100000+int(sum[0])<<8+int(sum[1])), nil
}

func (c *MockClient) IssueCertificate(_ context.Context, deviceID string, csrPEM []byte) (string, error) {
	time.Sleep(c.Latency)
	if c.Unreachable {
		return "", dErrors.New(dErrors.CodeUnavailable, "authority unreachable")
	}
	if c.RejectAll || len(csrPEM) == 0 {
		return "", dErrors.New(dErrors.CodeBadRequest, "authority rejected csr")
	}
	fingerprint := sha256.Sum256(csrPEM)
	return fmt.Sprintf("-----BEGIN CERTIFICATE-----\nMOCK-%s-%s\n-----END CERTIFICATE-----\n",
		deviceID, base64.StdEncoding.EncodeToString(fingerprint[:8])), nil
}

func (c *MockClient) ReportReceipt(_ context.Context, deviceID string, req SubmitReceiptRequest) ReportOutcome {
	time.Sleep(c.Latency)
	if c.Unreachable {
		return ReportOutcome{Status: OutcomeUnreachable, Reason: "authority unreachable"}
	}
	if c.RejectAll {
		return ReportOutcome{Status: OutcomeRejected, Reason: "authority rejected receipt"}
	}
	sum := sha256.Sum256([]byte(deviceID + req.ReceiptDeviceSignature.Hash))
	return ReportOutcome{
		Status:          OutcomeAcknowledged,
		ServerSignature: base64.StdEncoding.EncodeToString(sum[:]),
	}
}
