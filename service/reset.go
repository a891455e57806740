package service

import (
	"context"
	"strconv"

	"trueballot/log"
	"trueballot/storage"
)

// ResetService performs the full election reset: the only operation that
// destroys sealed ballots and receipts, and the only path back to
// not_started once a cycle has begun.
type ResetService struct {
	store *storage.Store
	state *StateMachine
	audit *AuditService
}

func NewResetService(store *storage.Store, state *StateMachine, audit *AuditService) *ResetService {
	return &ResetService{store: store, state: state, audit: audit}
}

// ResetElection purges sealed ballots, receipts, the results view and the
// election public key, then returns the state to not_started. Sub-steps run
// independently; failures are collected into a PartialFailureError so a
// partly wiped election is visible, not silent. The audit trail itself is
// never purged.
func (rs *ResetService) ResetElection(ctx context.Context, cap Capability) error {
	if !cap.Allows(TierSuperAdmin) {
		rs.audit.Record(cap.Actor, ActionUnauthorizedAccess, "election_reset", nil)
		return ErrUnauthorized
	}

	steps := map[string]func() error{
		"purge_ballots":    rs.store.PurgeBallots,
		"purge_receipts":   rs.store.PurgeReceipts,
		"purge_results":    rs.store.PurgeResults,
		"purge_public_key": rs.store.PurgePublicKey,
		"reset_state":      rs.state.resetToNotStarted,
	}

	failures := make(map[string]error)
	for _, name := range []string{"purge_ballots", "purge_receipts", "purge_results", "purge_public_key", "reset_state"} {
		if err := steps[name](); err != nil {
			failures[name] = err
			log.Warnw("election reset step failed", "step", name, "error", err)
		}
	}

	rs.audit.Record(cap.Actor, ActionElectionReset, "election", map[string]string{
		"failed_steps": strconv.Itoa(len(failures)),
	})

	if len(failures) > 0 {
		return &PartialFailureError{Operation: "election reset", Steps: failures}
	}
	log.Infow("election reset completed", "actor", cap.Actor)
	return nil
}
