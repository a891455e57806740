package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"trueballot/encryption"
	"trueballot/models"
	"trueballot/notify"
	"trueballot/storage"
)

var (
	superCap = Capability{Actor: "chair", Tier: TierSuperAdmin}
	adminCap = Capability{Actor: "clerk", Tier: TierAdmin}
)

type testEnv struct {
	store    *storage.Store
	crypto   *encryption.CryptoService
	audit    *AuditService
	state    *StateMachine
	metrics  *MetricsCollector
	election *ElectionService
	tally    *TallyService
	reset    *ResetService
	ceremony *KeyCeremonyService
}

type failingDeliverer struct {
	failLabel string
}

func (d *failingDeliverer) DeliverShard(_ context.Context, custodian models.Custodian, _ models.KeyShard) error {
	if custodian.Label == d.failLabel {
		return errors.New("mailbox unreachable")
	}
	return nil
}

func testCustodians() []models.Custodian {
	return []models.Custodian{
		{Label: "A", Name: "Custodian A", Email: "a@example.org"},
		{Label: "B", Name: "Custodian B", Email: "b@example.org"},
		{Label: "C", Name: "Custodian C", Email: "c@example.org"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	crypto := encryption.NewCryptoService()
	audit := NewAuditService(store)
	state := NewStateMachine(store, audit)
	metrics := NewMetricsCollector()

	ceremony, err := NewKeyCeremonyService(
		crypto, store, state, audit, notify.NewLogDeliverer(), testCustodians())
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		crypto:   crypto,
		audit:    audit,
		state:    state,
		metrics:  metrics,
		election: NewElectionService(crypto, store, state, metrics),
		tally:    NewTallyService(crypto, store, state, audit, metrics),
		reset:    NewResetService(store, state, audit),
		ceremony: ceremony,
	}
}

// seedDirectory registers one position with two candidates.
func (env *testEnv) seedDirectory(t *testing.T) {
	t.Helper()
	require.NoError(t, env.store.PutPosition(models.Position{ID: "pos-1", Title: "President"}))
	require.NoError(t, env.store.PutCandidate(models.Candidate{ID: "cand-1", Name: "Ada", PositionID: "pos-1"}))
	require.NoError(t, env.store.PutCandidate(models.Candidate{ID: "cand-2", Name: "Grace", PositionID: "pos-1"}))
}

// runCeremonyAndOpen runs the key ceremony and opens the election.
func (env *testEnv) runCeremonyAndOpen(t *testing.T) *CeremonyResult {
	t.Helper()
	result, err := env.ceremony.RunCeremony(context.Background(), superCap)
	require.NoError(t, err)
	require.NoError(t, env.state.Transition(context.Background(), superCap, models.StateOpen))
	return result
}
