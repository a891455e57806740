package service

import (
	"context"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"

	"trueballot/encryption"
	"trueballot/models"
)

func TestCeremonyPersistsOnlyPublicKey(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.ceremony.RunCeremony(context.Background(), superCap)
	require.NoError(t, err)
	require.Contains(t, result.PublicKey, "BEGIN PUBLIC KEY")
	require.Len(t, result.Shards, 3)
	require.Equal(t, "A", result.Shards[0].Label)
	require.Equal(t, "B", result.Shards[1].Label)
	require.Equal(t, "C", result.Shards[2].Label)

	settings, err := env.store.GetSettings()
	require.NoError(t, err)
	require.Equal(t, result.PublicKey, settings.PublicKey)

	// No persisted record may carry private key material.
	for _, shard := range result.Shards {
		require.NotEmpty(t, shard.Payload)
		require.NotContains(t, settings.PublicKey, shard.Payload)
	}

	records, err := env.audit.List(0)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	require.Equal(t, ActionKeyCeremonyCompleted, last.Action)
	for _, shard := range result.Shards {
		for _, detail := range last.Details {
			require.NotContains(t, detail, shard.Payload)
		}
	}
}

func TestCeremonyShardsReassembleTheKey(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.ceremony.RunCeremony(context.Background(), superCap)
	require.NoError(t, err)

	ciphertext, err := env.crypto.SealVote("cand-1", result.PublicKey)
	require.NoError(t, err)

	priv, cleanup, err := reassembleFromResult(result)
	require.NoError(t, err)
	defer cleanup()

	plaintext, err := env.crypto.DecryptVote(ciphertext, priv)
	require.NoError(t, err)
	require.Equal(t, "cand-1", plaintext)
}

func TestCeremonyRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ceremony.RunCeremony(context.Background(), adminCap)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCeremonyOnlyRunsBeforeElectionStarts(t *testing.T) {
	env := newTestEnv(t)
	env.runCeremonyAndOpen(t)

	_, err := env.ceremony.RunCeremony(context.Background(), superCap)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, []models.ElectionState{models.StateNotStarted}, stateErr.Required)
}

func TestCeremonyCannotRunTwice(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ceremony.RunCeremony(context.Background(), superCap)
	require.NoError(t, err)

	// Still not_started, but a key already exists: a rerun would orphan
	// any ballots sealed later under the first key.
	_, err = env.ceremony.RunCeremony(context.Background(), superCap)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestCeremonyAbortsOnShardDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)

	ceremony, err := NewKeyCeremonyService(
		env.crypto, env.store, env.state, env.audit,
		&failingDeliverer{failLabel: "C"}, testCustodians())
	require.NoError(t, err)

	_, err = ceremony.RunCeremony(context.Background(), superCap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ceremony aborted")

	// No public key may be left behind when shards were not handed off.
	settings, err := env.store.GetSettings()
	require.NoError(t, err)
	require.Empty(t, settings.PublicKey)
}

func TestCeremonyRequiresExactlyThreeCustodians(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewKeyCeremonyService(
		env.crypto, env.store, env.state, env.audit,
		&failingDeliverer{}, testCustodians()[:2])
	require.Error(t, err)
}

func TestCeremonyPossibleAgainAfterReset(t *testing.T) {
	env := newTestEnv(t)
	env.runCeremonyAndOpen(t)

	require.NoError(t, env.reset.ResetElection(context.Background(), superCap))

	_, err := env.ceremony.RunCeremony(context.Background(), superCap)
	require.NoError(t, err)
}

func reassembleFromResult(result *CeremonyResult) (*rsa.PrivateKey, func(), error) {
	return encryption.ReassemblePrivateKey(
		result.Shards[0].Payload,
		result.Shards[1].Payload,
		result.Shards[2].Payload,
	)
}
