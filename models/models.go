package models

import "time"

// ElectionSettings is the single durable configuration row for the current
// election cycle. Only the public half of the election keypair is ever
// stored here.
type ElectionSettings struct {
	Status    ElectionState `json:"status"`
	PublicKey string        `json:"public_key,omitempty"`
}

// SealedBallot is a voter's choice after asymmetric encryption under the
// election public key. The plaintext candidate identifier never appears in
// durable storage; Ciphertext is the base64 encoding of the encrypted
// candidate identifier. At most one SealedBallot exists per
// (VoterID, PositionID) pair.
type SealedBallot struct {
	VoterID    string    `json:"voter_id"`
	PositionID string    `json:"position_id"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

// Receipt proves a specific sealed ballot was recorded without revealing its
// plaintext choice. ReceiptHash binds to the ciphertext, so it is publicly
// verifiable.
type Receipt struct {
	VoterID       string    `json:"voter_id"`
	PositionID    string    `json:"position_id"`
	CiphertextRef string    `json:"ciphertext_ref"`
	ReceiptHash   string    `json:"receipt_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// KeyShard is one third of the split election private key. Shards live only
// in transient memory during a ceremony or tally call and in the custodian's
// possession; they are never persisted.
type KeyShard struct {
	Label       string `json:"label"` // "A", "B" or "C"
	Payload     string `json:"payload"`
	Fingerprint string `json:"fingerprint"`
}

// Custodian is a trusted party holding exactly one key shard.
type Custodian struct {
	Label string `json:"label"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Position is an office being voted on.
type Position struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Candidate runs for exactly one position.
type Candidate struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PositionID string `json:"position_id"`
}

// AuditRecord is one entry of the append-only administrative audit trail.
// Records are hash-chained: Hash covers the record fields and the Hash of the
// previous record.
type AuditRecord struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
}

// ResultsView is the persisted aggregate outcome of a completed tally. It
// carries per-candidate counts only; the decrypted voter-to-choice mapping is
// never written anywhere.
type ResultsView struct {
	Totals      map[string]int `json:"totals"`
	TotalVotes  int            `json:"total_votes"`
	Failed      int            `json:"failed"`
	CompletedAt time.Time      `json:"completed_at"`
}
