// Package signing computes the canonical receipt hash and produces device
// signatures over it. Both operations are deterministic wire-format contracts:
// the authority recomputes the hash from the reported fields, so any change to
// the ordering, encoding, or rounding here breaks chain verification.
package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	dErrors "lithipos/pkg/errors"
)

// TimestampFormat is the receipt timestamp layout used inside the hash input
// and the QR payload.
const TimestampFormat = "20060102150405"

// KeySource loads a device's private key. Implemented by keys.Manager.
type KeySource interface {
	Load(deviceID string) (*ecdsa.PrivateKey, error)
}

// MinorUnits converts a currency amount to integer minor units (cents).
// Rounding is half away from zero; 10.005 becomes 1001, not 1000. The
// authority's verifier applies the same rule, so truncation is not an option.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ComputeHash builds the canonical receipt digest:
//
//	base64(SHA-256(deviceID ∥ fiscalDayNo ∥ globalNo ∥ timestamp ∥ minorUnits ∥ previousHash))
//
// over the UTF-8 bytes of the concatenation. Pure function: identical inputs
// always yield identical output.
func ComputeHash(deviceID string, fiscalDayNo int, globalNo int64, amount decimal.Decimal, previousHash, timestamp string) string {
	var b strings.Builder
	b.WriteString(deviceID)
	b.WriteString(strconv.Itoa(fiscalDayNo))
	b.WriteString(strconv.FormatInt(globalNo, 10))
	b.WriteString(timestamp)
	b.WriteString(strconv.FormatInt(MinorUnits(amount), 10))
	b.WriteString(previousHash)

	digest := sha256.Sum256([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// Signer signs receipt hashes with device private keys.
type Signer struct {
	keys KeySource
}

func NewSigner(keys KeySource) *Signer {
	return &Signer{keys: keys}
}

// Sign signs the UTF-8 bytes of hash with the device's key: ECDSA over
// SHA-256, ASN.1 encoded, base64. A missing key surfaces as CodeNotFound so
// callers can distinguish an unprovisioned device from a crypto failure.
func (s *Signer) Sign(deviceID, hash string) (string, error) {
	key, err := s.keys.Load(deviceID)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(hash))
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("sign receipt hash for device %s", deviceID))
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature over hash against a public key. Any party
// holding the device certificate can run the same check.
func Verify(pub *ecdsa.PublicKey, hash, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(hash))
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}
