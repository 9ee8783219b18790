// Package keys owns device keypairs: generation, persistence, loading, and
// certificate signing requests. Nothing else in the codebase touches private
// key material.
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	dErrors "lithipos/pkg/errors"
)

// Manager persists P-256 device keys as PEM files in a dedicated directory.
type Manager struct {
	dir string

	certPrefix       string
	certCountry      string
	certOrganization string
}

// Option configures a Manager.
type Option func(*Manager)

// WithCSRSubject overrides the CSR subject attributes mandated by the
// authority.
func WithCSRSubject(prefix, country, organization string) Option {
	return func(m *Manager) {
		m.certPrefix = prefix
		m.certCountry = country
		m.certOrganization = organization
	}
}

// NewManager creates a key manager rooted at dir. The directory is created
// with owner-only permissions on first use.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:              dir,
		certPrefix:       "ZIMRA",
		certCountry:      "ZW",
		certOrganization: "LithiPos",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) keyPath(deviceID string) string {
	return filepath.Join(m.dir, fmt.Sprintf("device_%s_private.pem", deviceID))
}

// Generate creates and persists a new keypair for the device. Generation is
// deliberately non-idempotent: an existing key means the device identity is
// already established, and silently reusing or replacing it would corrupt it.
func (m *Manager) Generate(deviceID string) (*ecdsa.PrivateKey, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create keys directory")
	}

	path := m.keyPath(deviceID)
	if _, err := os.Stat(path); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "key already exists for device %s", deviceID)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stat device key")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate device key")
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal device key")
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	// O_EXCL closes the race between the Stat above and the write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "key already exists for device %s", deviceID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write device key")
	}
	defer f.Close()
	if _, err := f.Write(block); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write device key")
	}
	return key, nil
}

// Load reads the device's private key. A missing key is a recoverable,
// reported condition (the device was never provisioned here), never a crash.
func (m *Manager) Load(deviceID string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(m.keyPath(deviceID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no key found for device %s", deviceID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read device key")
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, dErrors.Newf(dErrors.CodeInternal, "malformed key file for device %s", deviceID)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse device key")
	}
	return key, nil
}

// CommonName builds the authority-mandated CSR subject common name:
// <prefix>-<serial>-<deviceId zero-padded to 10 digits>.
func (m *Manager) CommonName(deviceID, serialNumber string) string {
	padded := deviceID
	for len(padded) < 10 {
		padded = "0" + padded
	}
	return fmt.Sprintf("%s-%s-%s", m.certPrefix, serialNumber, padded)
}

// BuildCSR constructs a PEM-encoded certificate signing request, self-signed
// with the device key using ECDSA over SHA-256.
func (m *Manager) BuildCSR(deviceID, serialNumber string, key *ecdsa.PrivateKey) ([]byte, error) {
	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   m.CommonName(deviceID, serialNumber),
			Country:      []string{m.certCountry},
			Organization: []string{m.certOrganization},
		},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create certificate request")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
