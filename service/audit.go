package service

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"trueballot/log"
	"trueballot/models"
	"trueballot/storage"
)

// Audit actions recorded by the core.
const (
	ActionKeyCeremonyCompleted = "KEY_CEREMONY_COMPLETED"
	ActionTallyAccess          = "CRITICAL_TALLY_ACCESS"
	ActionTallyCompleted       = "TALLY_COMPLETED"
	ActionStateTransition      = "ELECTION_STATE_CHANGED"
	ActionElectionReset        = "ELECTION_RESET"
	ActionUnauthorizedAccess   = "UNAUTHORIZED_ACCESS_ATTEMPT"
)

// AuditService appends security-relevant events to the audit trail. Each
// record is keccak-chained to its predecessor so any later mutation of the
// trail is detectable.
type AuditService struct {
	store *storage.Store
	mu    sync.Mutex
}

func NewAuditService(store *storage.Store) *AuditService {
	return &AuditService{store: store}
}

// Record appends an audit record. It is fire-and-forget: a failed write is
// surfaced as a degraded-mode warning and never blocks the operation being
// audited.
func (as *AuditService) Record(actor, action, resource string, details map[string]string) {
	as.mu.Lock()
	defer as.mu.Unlock()

	prevHash, err := as.store.LastAuditHash()
	if err != nil {
		log.Warnw("audit trail degraded: cannot read chain head",
			"action", action, "error", err)
		prevHash = ""
	}

	record := &models.AuditRecord{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Details:   details,
		Timestamp: time.Now().UTC(),
		PrevHash:  prevHash,
	}
	record.Hash = chainHash(record)

	if err := as.store.AppendAudit(record); err != nil {
		log.Warnw("audit trail degraded: failed to append record",
			"action", action, "actor", actor, "error", err)
	}
}

// List returns up to limit records of the trail in append order.
func (as *AuditService) List(limit int) ([]models.AuditRecord, error) {
	return as.store.ListAudit(limit)
}

// VerifyChain walks the trail and recomputes every link. It returns the
// index of the first broken record, or -1 if the chain is intact.
func (as *AuditService) VerifyChain() (int, error) {
	records, err := as.store.ListAudit(0)
	if err != nil {
		return -1, err
	}
	prevHash := ""
	for i := range records {
		record := records[i]
		if record.PrevHash != prevHash || chainHash(&record) != record.Hash {
			return i, nil
		}
		prevHash = record.Hash
	}
	return -1, nil
}

func chainHash(record *models.AuditRecord) string {
	// JSON map encoding is key-sorted, so the details digest is stable.
	details, _ := json.Marshal(record.Details)
	sum := crypto.Keccak256(
		[]byte(record.PrevHash),
		[]byte(record.ID),
		[]byte(record.Actor),
		[]byte(record.Action),
		[]byte(record.Resource),
		details,
		[]byte(record.Timestamp.Format(time.RFC3339Nano)),
	)
	return hex.EncodeToString(sum)
}
