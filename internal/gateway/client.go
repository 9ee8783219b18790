// Package gateway exchanges registration and receipt-reporting messages with
// the external fiscal authority. Its failure taxonomy is deliberately small:
// the authority either rejected the request or could not be reached, and only
// registration-flow callers treat either as fatal.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"lithipos/internal/platform/config"
	dErrors "lithipos/pkg/errors"
)

// Client is the authority gateway.
type Client interface {
	// LookupDeviceID asks the authority for the ID assigned to a serial.
	LookupDeviceID(ctx context.Context, serialNumber string) (string, error)

	// IssueCertificate submits the CSR and returns the PEM certificate.
	IssueCertificate(ctx context.Context, deviceID string, csrPEM []byte) (string, error)

	// ReportReceipt submits a signed receipt. It returns an outcome, never
	// an error: the caller's local transaction has already committed and
	// must not be failed retroactively.
	ReportReceipt(ctx context.Context, deviceID string, req SubmitReceiptRequest) ReportOutcome
}

// HTTPClient talks to the real authority endpoints.
type HTTPClient struct {
	cfg    config.Authority
	http   *http.Client
	logger *slog.Logger
}

func NewHTTPClient(cfg config.Authority, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *HTTPClient) LookupDeviceID(ctx context.Context, serialNumber string) (string, error) {
	var resp lookupDeviceIDResponse
	url := c.cfg.PublicBaseURL + "/LookupDeviceID"
	if err := c.post(ctx, url, lookupDeviceIDRequest{SerialNumber: serialNumber}, &resp); err != nil {
		return "", err
	}
	if resp.DeviceID == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "authority returned empty device id")
	}
	return resp.DeviceID, nil
}

func (c *HTTPClient) IssueCertificate(ctx context.Context, deviceID string, csrPEM []byte) (string, error) {
	var resp issueCertificateResponse
	url := c.cfg.DeviceBaseURL + "/IssueCertificate"
	req := issueCertificateRequest{DeviceID: deviceID, CSR: string(csrPEM)}
	if err := c.post(ctx, url, req, &resp); err != nil {
		return "", err
	}
	if resp.Certificate == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "authority returned empty certificate")
	}
	return resp.Certificate, nil
}

func (c *HTTPClient) ReportReceipt(ctx context.Context, deviceID string, req SubmitReceiptRequest) ReportOutcome {
	url := fmt.Sprintf("%s/%s/SubmitReceipt", c.cfg.DeviceBaseURL, deviceID)
	var resp submitReceiptResponse
	err := c.post(ctx, url, req, &resp)
	switch {
	case err == nil:
		return ReportOutcome{Status: OutcomeAcknowledged, ServerSignature: resp.ReceiptServerSignature.Signature}
	case dErrors.HasCode(err, dErrors.CodeUnavailable):
		c.logger.WarnContext(ctx, "authority unreachable, receipt queued",
			"device_id", deviceID, "global_no", req.ReceiptGlobalNo)
		return ReportOutcome{Status: OutcomeUnreachable, Reason: err.Error()}
	default:
		c.logger.WarnContext(ctx, "authority rejected receipt report",
			"device_id", deviceID, "global_no", req.ReceiptGlobalNo, "error", err.Error())
		return ReportOutcome{Status: OutcomeRejected, Reason: err.Error()}
	}
}

// post encodes body, sends it, and decodes the 2xx response into out.
// Transport failures map to CodeUnavailable, non-2xx statuses to
// CodeBadRequest; callers branch on those two codes only.
func (c *HTTPClient) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode authority request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build authority request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DeviceModelName", c.cfg.DeviceModelName)
	req.Header.Set("DeviceModelVersion", c.cfg.DeviceModelVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authority unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return dErrors.Newf(dErrors.CodeBadRequest, "authority rejected request: %d %s", resp.StatusCode, string(detail))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode authority response")
		}
	}
	return nil
}
