package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lithipos/pkg/errors"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"10.00", 1000},
		{"5.50", 550},
		{"0.01", 1},
		{"10.005", 1001},
		{"10.004", 1000},
		{"-2.505", -251},
		{"123456789.99", 12345678999},
	}
	for _, tt := range tests {
		amount := decimal.RequireFromString(tt.amount)
		assert.Equal(t, tt.want, MinorUnits(amount), "amount %s", tt.amount)
	}
}

func TestComputeHashConcatenationOrder(t *testing.T) {
	amount := decimal.RequireFromString("10.00")

	// The digest must cover exactly deviceID, day number, global number,
	// timestamp, minor units, previous hash, in that order.
	input := "384728861" + "1" + "1" + "20260115093000" + "1000" + "0"
	digest := sha256.Sum256([]byte(input))
	want := base64.StdEncoding.EncodeToString(digest[:])

	got := ComputeHash("384728861", 1, 1, amount, "0", "20260115093000")
	assert.Equal(t, want, got)
}

func TestComputeHashDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("42.99")
	a := ComputeHash("dev1", 3, 17, amount, "prevhash", "20260229120000")
	b := ComputeHash("dev1", 3, 17, amount, "prevhash", "20260229120000")
	assert.Equal(t, a, b)
}

func TestComputeHashSensitiveToEveryField(t *testing.T) {
	amount := decimal.RequireFromString("10.00")
	base := ComputeHash("dev1", 1, 1, amount, "0", "20260115093000")

	assert.NotEqual(t, base, ComputeHash("dev2", 1, 1, amount, "0", "20260115093000"))
	assert.NotEqual(t, base, ComputeHash("dev1", 2, 1, amount, "0", "20260115093000"))
	assert.NotEqual(t, base, ComputeHash("dev1", 1, 2, amount, "0", "20260115093000"))
	assert.NotEqual(t, base, ComputeHash("dev1", 1, 1, decimal.RequireFromString("10.01"), "0", "20260115093000"))
	assert.NotEqual(t, base, ComputeHash("dev1", 1, 1, amount, "x", "20260115093000"))
	assert.NotEqual(t, base, ComputeHash("dev1", 1, 1, amount, "0", "20260115093001"))
}

type staticKeySource struct {
	key *ecdsa.PrivateKey
	err error
}

func (s *staticKeySource) Load(string) (*ecdsa.PrivateKey, error) {
	return s.key, s.err
}

func TestSignAndVerify(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := NewSigner(&staticKeySource{key: key})

	hash := ComputeHash("dev1", 1, 1, decimal.RequireFromString("10.00"), "0", "20260115093000")
	sig, err := signer.Sign("dev1", hash)
	require.NoError(t, err)

	assert.True(t, Verify(&key.PublicKey, hash, sig))
	assert.False(t, Verify(&key.PublicKey, hash+"tampered", sig))
	assert.False(t, Verify(&key.PublicKey, hash, "not-base64!!!"))

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.False(t, Verify(&other.PublicKey, hash, sig))
}

func TestSignMissingKey(t *testing.T) {
	signer := NewSigner(&staticKeySource{err: dErrors.New(dErrors.CodeNotFound, "key not found")})

	_, err := signer.Sign("dev1", "somehash")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
