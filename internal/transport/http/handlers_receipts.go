package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"lithipos/internal/fiscal"
	"lithipos/internal/ledger"
	"lithipos/internal/signing"
	"lithipos/internal/transport/http/shared"
	dErrors "lithipos/pkg/errors"
)

const qrImageSize = 256

type submitReceiptRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h *Handler) handleSubmitReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "deviceID")

	var req submitReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.fiscal.SubmitReceipt(ctx, deviceID, req.Amount, req.Currency)
	if err != nil {
		h.writeServiceError(w, r, "submit receipt failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, result)
}

// receiptView is the read-side JSON shape of a ledger receipt.
type receiptView struct {
	InvoiceNo       string          `json:"invoiceNo"`
	GlobalNo        int64           `json:"globalNo"`
	FiscalDayNo     int             `json:"fiscalDayNo"`
	Amount          decimal.Decimal `json:"amount"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Currency        string          `json:"currency"`
	PreviousHash    string          `json:"previousHash"`
	Hash            string          `json:"hash"`
	Signature       string          `json:"signature"`
	ReportStatus    string          `json:"reportStatus"`
	ServerSignature string          `json:"serverSignature,omitempty"`
	Timestamp       string          `json:"timestamp"`
}

func toReceiptView(receipt *ledger.Receipt) receiptView {
	return receiptView{
		InvoiceNo:       receipt.InvoiceNo,
		GlobalNo:        receipt.GlobalNo,
		FiscalDayNo:     receipt.FiscalDayNo,
		Amount:          receipt.TotalAmount,
		TaxAmount:       receipt.TaxAmount,
		Currency:        receipt.Currency,
		PreviousHash:    receipt.PreviousHash,
		Hash:            receipt.Hash,
		Signature:       receipt.Signature,
		ReportStatus:    string(receipt.ReportStatus),
		ServerSignature: receipt.ServerSignature,
		Timestamp:       receipt.CreatedAt.Format(signing.TimestampFormat),
	}
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	receipts, err := h.fiscal.ListReceipts(r.Context(), deviceID, limit)
	if err != nil {
		h.writeServiceError(w, r, "list receipts failed", err)
		return
	}

	views := make([]receiptView, 0, len(receipts))
	for _, receipt := range receipts {
		views = append(views, toReceiptView(receipt))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"receipts": views})
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.receiptFromPath(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toReceiptView(receipt))
}

// handleReceiptQR renders the receipt verification payload as a PNG QR code.
func (h *Handler) handleReceiptQR(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.receiptFromPath(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	payload := fiscal.QRPayload(
		receipt.DeviceID,
		receipt.CreatedAt.Format(signing.TimestampFormat),
		receipt.GlobalNo,
		receipt.Hash,
	)
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		h.writeServiceError(w, r, "qr render failed", dErrors.Wrap(err, dErrors.CodeInternal, "qr render failed"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) receiptFromPath(r *http.Request) (*ledger.Receipt, error) {
	deviceID := chi.URLParam(r, "deviceID")
	globalNo, err := strconv.ParseInt(chi.URLParam(r, "globalNo"), 10, 64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "globalNo must be an integer")
	}
	return h.fiscal.GetReceipt(r.Context(), deviceID, globalNo)
}
