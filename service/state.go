package service

import (
	"context"
	"fmt"
	"sync"

	"trueballot/log"
	"trueballot/models"
	"trueballot/storage"
)

// StateMachine holds the single process-wide election state and gates which
// operations each state permits. Transitions are administrator-triggered and
// one-directional within a cycle; only the full reset returns the state to
// not_started.
type StateMachine struct {
	store *storage.Store
	audit *AuditService
	mu    sync.RWMutex
}

func NewStateMachine(store *storage.Store, audit *AuditService) *StateMachine {
	return &StateMachine{store: store, audit: audit}
}

// Current returns the persisted election state.
func (sm *StateMachine) Current() (models.ElectionState, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	settings, err := sm.store.GetSettings()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return settings.Status, nil
}

// Require fails with an InvalidStateError naming the operation and the
// permitted states unless the current state is one of them.
func (sm *StateMachine) Require(operation string, permitted ...models.ElectionState) error {
	current, err := sm.Current()
	if err != nil {
		return err
	}
	for _, state := range permitted {
		if current == state {
			return nil
		}
	}
	return &InvalidStateError{Operation: operation, Required: permitted, Actual: current}
}

// Transition moves the election to next. Requires super admin; the lifecycle
// only moves forward (not_started -> open -> closed).
func (sm *StateMachine) Transition(ctx context.Context, cap Capability, next models.ElectionState) error {
	if !cap.Allows(TierSuperAdmin) {
		sm.audit.Record(cap.Actor, ActionUnauthorizedAccess, "election_state", map[string]string{
			"attempted": string(next),
		})
		return ErrUnauthorized
	}
	if !next.Valid() {
		return fmt.Errorf("unknown election state %q", next)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	settings, err := sm.store.GetSettings()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !settings.Status.CanTransitionTo(next) {
		return &InvalidStateError{
			Operation: "transition to " + string(next),
			Required:  precursorsOf(next),
			Actual:    settings.Status,
		}
	}

	if err := sm.store.SetStatus(next); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	sm.audit.Record(cap.Actor, ActionStateTransition, "election_settings", map[string]string{
		"from": string(settings.Status),
		"to":   string(next),
	})
	log.Infow("election state changed", "from", settings.Status, "to", next, "actor", cap.Actor)
	return nil
}

// resetToNotStarted is called by the full election reset only.
func (sm *StateMachine) resetToNotStarted() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.store.SetStatus(models.StateNotStarted)
}

func precursorsOf(next models.ElectionState) []models.ElectionState {
	switch next {
	case models.StateOpen:
		return []models.ElectionState{models.StateNotStarted}
	case models.StateClosed:
		return []models.ElectionState{models.StateOpen}
	}
	return nil
}
