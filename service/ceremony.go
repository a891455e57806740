package service

import (
	"context"
	"fmt"

	"trueballot/encryption"
	"trueballot/log"
	"trueballot/models"
	"trueballot/notify"
	"trueballot/storage"
)

// KeyCeremonyService generates the election keypair, splits the private half
// into three shards and distributes them to the custodians. Only the public
// half is ever persisted; private key material exists in memory for the
// duration of a single RunCeremony call and is wiped on every exit path.
type KeyCeremonyService struct {
	crypto     *encryption.CryptoService
	store      *storage.Store
	state      *StateMachine
	audit      *AuditService
	deliverer  notify.ShardDeliverer
	custodians []models.Custodian
}

// CeremonyResult is the one-time ceremony response delivered directly to the
// initiating super admin. The shards are not retained by the service after
// the call returns.
type CeremonyResult struct {
	PublicKey string            `json:"public_key"`
	Shards    []models.KeyShard `json:"shards"`
}

func NewKeyCeremonyService(
	crypto *encryption.CryptoService,
	store *storage.Store,
	state *StateMachine,
	audit *AuditService,
	deliverer notify.ShardDeliverer,
	custodians []models.Custodian,
) (*KeyCeremonyService, error) {
	if len(custodians) != 3 {
		return nil, fmt.Errorf("key ceremony requires exactly 3 custodians, got %d", len(custodians))
	}
	return &KeyCeremonyService{
		crypto:     crypto,
		store:      store,
		state:      state,
		audit:      audit,
		deliverer:  deliverer,
		custodians: custodians,
	}, nil
}

// RunCeremony executes the key ceremony. It may only run while the election
// has not started; re-running it mid-election would invalidate every ballot
// sealed under the previous key, so the full reset is the only path back.
//
// Ordering matters: the shards are produced and handed off before the public
// key is persisted, so an aborted ceremony never leaves a public key behind
// without its matching shards in custodian hands.
func (kcs *KeyCeremonyService) RunCeremony(ctx context.Context, cap Capability) (*CeremonyResult, error) {
	if !cap.Allows(TierSuperAdmin) {
		kcs.audit.Record(cap.Actor, ActionUnauthorizedAccess, "key_ceremony", nil)
		return nil, ErrUnauthorized
	}
	if err := kcs.state.Require("key ceremony", models.StateNotStarted); err != nil {
		return nil, err
	}

	settings, err := kcs.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if settings.PublicKey != "" {
		return nil, &InvalidStateError{
			Operation: "key ceremony (a key already exists; reset the election first)",
			Required:  []models.ElectionState{models.StateNotStarted},
			Actual:    settings.Status,
		}
	}

	publicPEM, privatePEM, err := kcs.crypto.GenerateElectionKeys()
	if err != nil {
		return nil, err
	}
	defer encryption.Wipe(privatePEM)

	split, err := encryption.SplitPrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	shards := []models.KeyShard{
		{Label: encryption.ShardLabelA, Payload: split.A, Fingerprint: encryption.ShardFingerprint(split.A)},
		{Label: encryption.ShardLabelB, Payload: split.B, Fingerprint: encryption.ShardFingerprint(split.B)},
		{Label: encryption.ShardLabelC, Payload: split.C, Fingerprint: encryption.ShardFingerprint(split.C)},
	}

	// All three deliveries must succeed before anything durable happens.
	for i, custodian := range kcs.custodians {
		if err := kcs.deliverer.DeliverShard(ctx, custodian, shards[i]); err != nil {
			return nil, fmt.Errorf("shard delivery to custodian %s failed, ceremony aborted: %w",
				custodian.Label, err)
		}
	}

	if err := kcs.store.SetPublicKey(publicPEM); err != nil {
		// Private material is still alive at this point, so the caller
		// can retry without losing the election to an unwritable store.
		return nil, fmt.Errorf("%w: failed to persist public key: %v", ErrPersistence, err)
	}

	fingerprints := map[string]string{}
	for _, shard := range shards {
		fingerprints["shard_"+shard.Label] = shard.Fingerprint
	}
	kcs.audit.Record(cap.Actor, ActionKeyCeremonyCompleted, "election_settings", fingerprints)
	log.Infow("key ceremony completed", "actor", cap.Actor, "custodians", len(kcs.custodians))

	return &CeremonyResult{PublicKey: publicPEM, Shards: shards}, nil
}
