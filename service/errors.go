package service

import (
	"errors"
	"fmt"
	"strings"

	"trueballot/models"
)

var (
	// ErrUnauthorized is returned when the caller's capability does not
	// meet the required tier.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoBallots distinguishes "nothing to count" from "everything
	// failed to decrypt".
	ErrNoBallots = errors.New("no sealed ballots found to tally")
	// ErrPersistence indicates a durable write failed.
	ErrPersistence = errors.New("persistence failed")
	// ErrPublicKeyMissing is returned when a ballot is sealed before the
	// key ceremony has run.
	ErrPublicKeyMissing = errors.New("election public key is missing; run the key ceremony first")
	// ErrCandidateNotFound is returned when a candidate identifier does
	// not resolve against the directory for the voted position.
	ErrCandidateNotFound = errors.New("candidate not found for this position")
)

// InvalidStateError is returned when an operation runs outside its permitted
// election state. It names the required state so administrators can see
// exactly what is expected.
type InvalidStateError struct {
	Operation string
	Required  []models.ElectionState
	Actual    models.ElectionState
}

func (e *InvalidStateError) Error() string {
	required := make([]string, len(e.Required))
	for i, s := range e.Required {
		required[i] = string(s)
	}
	return fmt.Sprintf("%s requires election state %s, current state is %s",
		e.Operation, strings.Join(required, " or "), e.Actual)
}

// PartialFailureError aggregates independent sub-step failures of a bulk
// administrative operation such as the full election reset.
type PartialFailureError struct {
	Operation string
	Steps     map[string]error
}

func (e *PartialFailureError) Error() string {
	failed := make([]string, 0, len(e.Steps))
	for step, err := range e.Steps {
		failed = append(failed, fmt.Sprintf("%s: %v", step, err))
	}
	return fmt.Sprintf("%s partially failed: %s", e.Operation, strings.Join(failed, "; "))
}
