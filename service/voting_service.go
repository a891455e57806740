package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trueballot/encryption"
	"trueballot/log"
	"trueballot/models"
	"trueballot/storage"
)

// ElectionService seals voter choices under the election public key and
// issues the matching receipts. It is the only writer of sealed ballots.
type ElectionService struct {
	crypto  *encryption.CryptoService
	store   *storage.Store
	state   *StateMachine
	metrics *MetricsCollector
}

func NewElectionService(
	crypto *encryption.CryptoService,
	store *storage.Store,
	state *StateMachine,
	metrics *MetricsCollector,
) *ElectionService {
	return &ElectionService{
		crypto:  crypto,
		store:   store,
		state:   state,
		metrics: metrics,
	}
}

// CastSealedVote encrypts candidateID under the current election public key
// and stores the resulting sealed ballot and receipt. The plaintext choice
// never reaches durable storage or the log stream.
//
// At most one ballot may exist per (voter, position); the storage layer
// enforces uniqueness atomically, so a concurrent duplicate attempt loses
// with ErrDuplicateVote.
func (es *ElectionService) CastSealedVote(ctx context.Context, voterID, positionID, candidateID string) (*models.Receipt, error) {
	if voterID == "" || positionID == "" || candidateID == "" {
		return nil, errors.New("voter, position and candidate are all required")
	}
	if err := es.state.Require("vote casting", models.StateOpen); err != nil {
		return nil, err
	}

	start := time.Now()

	// The candidate must belong to the voted position. The directory holds
	// only public campaign data, so this lookup leaks nothing.
	candidate, err := es.store.GetCandidate(candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if candidate.PositionID != positionID {
		return nil, ErrCandidateNotFound
	}

	settings, err := es.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if settings.PublicKey == "" {
		return nil, ErrPublicKeyMissing
	}

	ciphertext, err := es.crypto.SealVote(candidateID, settings.PublicKey)
	if err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC()
	ballot := &models.SealedBallot{
		VoterID:    voterID,
		PositionID: positionID,
		Ciphertext: ciphertext,
		CreatedAt:  createdAt,
	}
	if err := es.store.CreateSealedBallot(ballot); err != nil {
		if errors.Is(err, storage.ErrDuplicateVote) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The receipt binds to the ciphertext, so it proves the ballot was
	// recorded without revealing the choice.
	timestamp := createdAt.Format(time.RFC3339)
	receipt := &models.Receipt{
		VoterID:       voterID,
		PositionID:    positionID,
		CiphertextRef: ciphertext,
		ReceiptHash:   es.crypto.ComputeReceiptHash(voterID, ciphertext, positionID, timestamp),
		CreatedAt:     createdAt,
	}
	if err := es.store.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("%w: failed to save receipt: %v", ErrPersistence, err)
	}

	es.metrics.RecordSeal(time.Since(start))
	log.Debugw("sealed ballot recorded", "position", positionID)
	return receipt, nil
}

// GetReceipt returns the stored receipt for a (voter, position) pair.
func (es *ElectionService) GetReceipt(ctx context.Context, voterID, positionID string) (*models.Receipt, error) {
	return es.store.GetReceipt(voterID, positionID)
}

// VerifyReceipt looks a receipt up by its hash and recomputes the hash from
// the stored fields, so a voter-presented hash can be checked publicly.
func (es *ElectionService) VerifyReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	receipt, err := es.store.GetReceiptByHash(hash)
	if err != nil {
		return nil, err
	}
	expected := es.crypto.ComputeReceiptHash(
		receipt.VoterID,
		receipt.CiphertextRef,
		receipt.PositionID,
		receipt.CreatedAt.Format(time.RFC3339),
	)
	if expected != receipt.ReceiptHash {
		return nil, fmt.Errorf("receipt hash does not match its stored fields")
	}
	return receipt, nil
}
