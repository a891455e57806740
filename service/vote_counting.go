package service

import (
	"context"
	"fmt"
	"time"

	"trueballot/encryption"
	"trueballot/log"
	"trueballot/models"
	"trueballot/storage"
)

// TallyService reconstructs the election private key from the three
// custodian shards and aggregates all sealed ballots into per-candidate
// counts, entirely in transient memory.
type TallyService struct {
	crypto  *encryption.CryptoService
	store   *storage.Store
	state   *StateMachine
	audit   *AuditService
	metrics *MetricsCollector
}

// BallotFailure describes one ballot that could not be counted. It carries
// no plaintext; a failed ballot has no recoverable choice by definition.
type BallotFailure struct {
	VoterID    string `json:"voter_id"`
	PositionID string `json:"position_id"`
	Reason     string `json:"reason"`
}

// TallyReport is the aggregate outcome of one tally run. Per-ballot
// outcomes are explicit: every ballot either incremented a counter or
// appears in Failures. A failure rate of 1.0 across a non-trivial ballot
// set almost always means wrong shards rather than corrupted data.
type TallyReport struct {
	Totals              map[string]int  `json:"totals"`       // "Name (Position)" -> count
	ByCandidate         map[string]int  `json:"by_candidate"` // candidate ID -> count
	TotalBallots        int             `json:"total_ballots"`
	Counted             int             `json:"counted"`
	Failed              int             `json:"failed"`
	FailureRate         float64         `json:"failure_rate"`
	Failures            []BallotFailure `json:"failures,omitempty"`
	WrongShardSuspected bool            `json:"wrong_shard_suspected"`
}

func NewTallyService(
	crypto *encryption.CryptoService,
	store *storage.Store,
	state *StateMachine,
	audit *AuditService,
	metrics *MetricsCollector,
) *TallyService {
	return &TallyService{
		crypto:  crypto,
		store:   store,
		state:   state,
		audit:   audit,
		metrics: metrics,
	}
}

// ReconstructAndTally combines the three shards back into the private key
// and decrypts every sealed ballot. A single unreadable ballot never aborts
// the run; it is recorded as an explicit failure and counting continues.
// Only the aggregate counts are persisted (as a results view); the decrypted
// voter-to-choice mapping exists in this call's memory and nowhere else.
func (ts *TallyService) ReconstructAndTally(ctx context.Context, cap Capability, shardA, shardB, shardC string) (*TallyReport, error) {
	if !cap.Allows(TierSuperAdmin) {
		ts.audit.Record(cap.Actor, ActionUnauthorizedAccess, "election_results", nil)
		return nil, ErrUnauthorized
	}
	if err := ts.state.Require("tally", models.StateClosed); err != nil {
		return nil, err
	}

	// The tally room alarm fires before any key material is touched.
	ts.audit.Record(cap.Actor, ActionTallyAccess, "election_results", map[string]string{
		"warning": "tally access with custodian shards",
	})

	privateKey, cleanup, err := encryption.ReassemblePrivateKey(shardA, shardB, shardC)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	candidates, err := ts.store.ListCandidates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	positions, err := ts.store.ListPositions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	directory := make(map[string]models.Candidate, len(candidates))
	for _, c := range candidates {
		directory[c.ID] = c
	}
	positionTitles := make(map[string]string, len(positions))
	for _, p := range positions {
		positionTitles[p.ID] = p.Title
	}

	ts.metrics.RecordTallyStart()
	report := &TallyReport{
		Totals:      make(map[string]int),
		ByCandidate: make(map[string]int),
	}

	err = ts.store.ForEachSealedBallot(func(ballot models.SealedBallot) error {
		report.TotalBallots++

		candidateID, err := ts.crypto.DecryptVote(ballot.Ciphertext, privateKey)
		if err != nil {
			report.Failures = append(report.Failures, BallotFailure{
				VoterID:    ballot.VoterID,
				PositionID: ballot.PositionID,
				Reason:     "decryption failed",
			})
			return nil
		}

		candidate, ok := directory[candidateID]
		if !ok || candidate.PositionID != ballot.PositionID {
			report.Failures = append(report.Failures, BallotFailure{
				VoterID:    ballot.VoterID,
				PositionID: ballot.PositionID,
				Reason:     "decrypted choice does not resolve to a candidate",
			})
			return nil
		}

		key := fmt.Sprintf("%s (%s)", candidate.Name, positionTitles[candidate.PositionID])
		report.Totals[key]++
		report.ByCandidate[candidate.ID]++
		report.Counted++
		return nil
	})
	ts.metrics.RecordTallyEnd()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if report.TotalBallots == 0 {
		return nil, ErrNoBallots
	}

	report.Failed = len(report.Failures)
	report.FailureRate = float64(report.Failed) / float64(report.TotalBallots)
	report.WrongShardSuspected = report.Failed == report.TotalBallots

	if report.WrongShardSuspected {
		log.Warnw("tally failed for every ballot; shards are likely wrong",
			"ballots", report.TotalBallots)
	}

	// Aggregate counts only. Never the per-voter mapping.
	view := &models.ResultsView{
		Totals:      report.Totals,
		TotalVotes:  report.Counted,
		Failed:      report.Failed,
		CompletedAt: time.Now().UTC(),
	}
	if err := ts.store.SaveResults(view); err != nil {
		log.Warnw("failed to persist results view", "error", err)
	}

	ts.audit.Record(cap.Actor, ActionTallyCompleted, "election_results", map[string]string{
		"ballots": fmt.Sprintf("%d", report.TotalBallots),
		"counted": fmt.Sprintf("%d", report.Counted),
		"failed":  fmt.Sprintf("%d", report.Failed),
	})

	return report, nil
}

// LatestResults returns the persisted results view from the last completed
// tally.
func (ts *TallyService) LatestResults() (*models.ResultsView, error) {
	return ts.store.GetResults()
}
