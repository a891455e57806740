package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trueballot/models"
	"trueballot/storage"
)

func TestResetPurgesBallotsReceiptsAndKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)
	env.runCeremonyAndOpen(t)

	ctx := context.Background()
	receipt, err := env.election.CastSealedVote(ctx, "voter-1", "pos-1", "cand-1")
	require.NoError(t, err)

	require.NoError(t, env.reset.ResetElection(ctx, superCap))

	current, err := env.state.Current()
	require.NoError(t, err)
	require.Equal(t, models.StateNotStarted, current)

	count, err := env.store.CountSealedBallots()
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = env.store.GetReceipt("voter-1", "pos-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.store.GetReceiptByHash(receipt.ReceiptHash)
	require.ErrorIs(t, err, storage.ErrNotFound)

	settings, err := env.store.GetSettings()
	require.NoError(t, err)
	require.Empty(t, settings.PublicKey)
}

func TestResetKeepsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	env.runCeremonyAndOpen(t)

	before, err := env.audit.List(0)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	require.NoError(t, env.reset.ResetElection(context.Background(), superCap))

	after, err := env.audit.List(0)
	require.NoError(t, err)
	require.Greater(t, len(after), len(before))

	last := after[len(after)-1]
	require.Equal(t, ActionElectionReset, last.Action)
}

func TestResetRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t)

	err := env.reset.ResetElection(context.Background(), adminCap)
	require.ErrorIs(t, err, ErrUnauthorized)
}
