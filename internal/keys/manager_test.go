package keys

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lithipos/pkg/errors"
)

func TestGenerateAndLoadRoundtrip(t *testing.T) {
	m := NewManager(t.TempDir())

	key, err := m.Generate("384728861")
	require.NoError(t, err)
	require.NotNil(t, key)

	loaded, err := m.Load("384728861")
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))
}

func TestGenerateCollision(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Generate("384728861")
	require.NoError(t, err)

	_, err = m.Generate("384728861")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestLoadMissingKey(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Load("999999999")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestKeyFilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	m := NewManager(dir)

	_, err := m.Generate("384728861")
	require.NoError(t, err)

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	keyInfo, err := os.Stat(filepath.Join(dir, "device_384728861_private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())
}

func TestCommonNamePadsDeviceID(t *testing.T) {
	m := NewManager(t.TempDir())

	assert.Equal(t, "ZIMRA-SN-001-0384728861", m.CommonName("384728861", "SN-001"))
	assert.Equal(t, "ZIMRA-SN-001-1234567890", m.CommonName("1234567890", "SN-001"))
}

func TestBuildCSR(t *testing.T) {
	m := NewManager(t.TempDir(), WithCSRSubject("ZIMRA", "ZW", "Acme Retail"))

	key, err := m.Generate("384728861")
	require.NoError(t, err)

	csrPEM, err := m.BuildCSR("384728861", "SN-001", key)
	require.NoError(t, err)

	block, _ := pem.Decode(csrPEM)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE REQUEST", block.Type)

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "ZIMRA-SN-001-0384728861", csr.Subject.CommonName)
	assert.Equal(t, []string{"ZW"}, csr.Subject.Country)
	assert.Equal(t, []string{"Acme Retail"}, csr.Subject.Organization)
	assert.Equal(t, x509.ECDSAWithSHA256, csr.SignatureAlgorithm)
	assert.NoError(t, csr.CheckSignature())
}
