package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trueballot/models"
	"trueballot/storage"
)

func TestCastSealedVoteStoresCiphertextOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)
	env.runCeremonyAndOpen(t)

	receipt, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-1")
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ReceiptHash)
	require.Equal(t, "voter-1", receipt.VoterID)

	ballot, err := env.store.GetSealedBallot("voter-1", "pos-1")
	require.NoError(t, err)
	require.NotEmpty(t, ballot.Ciphertext)
	require.NotContains(t, ballot.Ciphertext, "cand-1")
	require.Equal(t, ballot.Ciphertext, receipt.CiphertextRef)
}

func TestCastSealedVoteReceiptIsRecomputable(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)
	env.runCeremonyAndOpen(t)

	receipt, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-1")
	require.NoError(t, err)

	recomputed := env.crypto.ComputeReceiptHash(
		receipt.VoterID,
		receipt.CiphertextRef,
		receipt.PositionID,
		receipt.CreatedAt.Format(time.RFC3339),
	)
	require.Equal(t, receipt.ReceiptHash, recomputed)

	verified, err := env.election.VerifyReceipt(context.Background(), receipt.ReceiptHash)
	require.NoError(t, err)
	require.Equal(t, receipt.VoterID, verified.VoterID)
}

func TestCastSealedVoteRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)
	env.runCeremonyAndOpen(t)

	_, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-1")
	require.NoError(t, err)

	// Second attempt, even for a different candidate, must lose.
	_, err = env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-2")
	require.ErrorIs(t, err, storage.ErrDuplicateVote)

	ballot, err := env.store.GetSealedBallot("voter-1", "pos-1")
	require.NoError(t, err)
	require.NotNil(t, ballot)
	count, err := env.store.CountSealedBallots()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCastSealedVoteRequiresOpenElection(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)

	_, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, []models.ElectionState{models.StateOpen}, stateErr.Required)
	require.Equal(t, models.StateNotStarted, stateErr.Actual)
}

func TestCastSealedVoteRequiresPublicKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)

	// Open the election without ever running the ceremony.
	require.NoError(t, env.state.Transition(context.Background(), superCap, models.StateOpen))

	_, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-1")
	require.ErrorIs(t, err, ErrPublicKeyMissing)
}

func TestCastSealedVoteValidatesCandidate(t *testing.T) {
	env := newTestEnv(t)
	env.seedDirectory(t)
	env.runCeremonyAndOpen(t)

	_, err := env.election.CastSealedVote(context.Background(), "voter-1", "pos-1", "cand-99")
	require.ErrorIs(t, err, ErrCandidateNotFound)

	// A real candidate voted under the wrong position is rejected too.
	require.NoError(t, env.store.PutPosition(models.Position{ID: "pos-2", Title: "Secretary"}))
	_, err = env.election.CastSealedVote(context.Background(), "voter-1", "pos-2", "cand-1")
	require.ErrorIs(t, err, ErrCandidateNotFound)
}

func TestGetReceiptMissingPair(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.election.GetReceipt(context.Background(), "voter-1", "pos-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
