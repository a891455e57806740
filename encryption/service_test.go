package encryption

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSealAndDecryptRoundTrip(t *testing.T) {
	cs := NewCryptoService()

	publicPEM, privatePEM, err := cs.GenerateElectionKeys()
	require.NoError(t, err)
	require.Contains(t, publicPEM, "BEGIN PUBLIC KEY")
	require.Contains(t, string(privatePEM), "BEGIN RSA PRIVATE KEY")

	shards, err := SplitPrivateKey(privatePEM)
	require.NoError(t, err)
	priv, cleanup, err := ReassemblePrivateKey(shards.A, shards.B, shards.C)
	require.NoError(t, err)
	defer cleanup()

	for _, candidateID := range []string{"cand-1", "cand-2", "a-much-longer-candidate-identifier"} {
		ciphertext, err := cs.SealVote(candidateID, publicPEM)
		require.NoError(t, err)
		require.NotContains(t, ciphertext, candidateID)

		plaintext, err := cs.DecryptVote(ciphertext, priv)
		require.NoError(t, err)
		require.Equal(t, candidateID, plaintext)
	}
}

func TestSealIsNotDeterministic(t *testing.T) {
	cs := NewCryptoService()
	publicPEM, _, err := cs.GenerateElectionKeys()
	require.NoError(t, err)

	first, err := cs.SealVote("cand-1", publicPEM)
	require.NoError(t, err)
	second, err := cs.SealVote("cand-1", publicPEM)
	require.NoError(t, err)

	// PKCS#1 v1.5 padding is randomized, so identical plaintexts must not
	// produce identical ciphertexts.
	require.NotEqual(t, first, second)
}

func TestSealRejectsMalformedKey(t *testing.T) {
	cs := NewCryptoService()

	_, err := cs.SealVote("cand-1", "not a pem key")
	require.ErrorIs(t, err, ErrSealing)

	_, err = cs.SealVote("cand-1", "")
	require.ErrorIs(t, err, ErrSealing)
}

func TestSealRejectsOversizePlaintext(t *testing.T) {
	cs := NewCryptoService()
	publicPEM, _, err := cs.GenerateElectionKeys()
	require.NoError(t, err)

	// RSA-2048 with PKCS#1 v1.5 caps the plaintext at 245 bytes.
	_, err = cs.SealVote(strings.Repeat("x", 300), publicPEM)
	require.ErrorIs(t, err, ErrSealing)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	cs := NewCryptoService()

	publicPEM, _, err := cs.GenerateElectionKeys()
	require.NoError(t, err)
	_, otherPrivatePEM, err := cs.GenerateElectionKeys()
	require.NoError(t, err)

	otherShards, err := SplitPrivateKey(otherPrivatePEM)
	require.NoError(t, err)
	otherPriv, cleanup, err := ReassemblePrivateKey(otherShards.A, otherShards.B, otherShards.C)
	require.NoError(t, err)
	defer cleanup()

	ciphertext, err := cs.SealVote("cand-1", publicPEM)
	require.NoError(t, err)

	_, err = cs.DecryptVote(ciphertext, otherPriv)
	require.Error(t, err)
}

func TestReceiptHashIsDeterministic(t *testing.T) {
	cs := NewCryptoService()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	first := cs.ComputeReceiptHash("voter-1", "Y2lwaGVy", "pos-1", timestamp)
	second := cs.ComputeReceiptHash("voter-1", "Y2lwaGVy", "pos-1", timestamp)
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.Equal(t, strings.ToLower(first), first)

	// Any single differing input changes the hash.
	require.NotEqual(t, first, cs.ComputeReceiptHash("voter-2", "Y2lwaGVy", "pos-1", timestamp))
	require.NotEqual(t, first, cs.ComputeReceiptHash("voter-1", "b3RoZXI=", "pos-1", timestamp))
	require.NotEqual(t, first, cs.ComputeReceiptHash("voter-1", "Y2lwaGVy", "pos-2", timestamp))
}
