// Package storage persists election records in a single bbolt database.
// Sealed ballots, receipts, the candidate directory and the audit trail each
// live in their own bucket; all writes are transactional.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"trueballot/models"
)

var (
	// ErrDuplicateVote is returned when a sealed ballot already exists for
	// a (voter, position) pair. The check and the insert happen in one
	// write transaction, so concurrent seal attempts cannot both win.
	ErrDuplicateVote = errors.New("a sealed ballot already exists for this voter and position")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

var (
	bucketSettings       = []byte("settings")
	bucketBallots        = []byte("sealed_ballots")
	bucketReceipts       = []byte("vote_receipts")
	bucketReceiptsByHash = []byte("vote_receipts_by_hash")
	bucketPositions      = []byte("positions")
	bucketCandidates     = []byte("candidates")
	bucketResults        = []byte("results")
	bucketAudit          = []byte("admin_audit_log")
)

var settingsKey = []byte("election")
var resultsKey = []byte("latest")

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketSettings, bucketBallots, bucketReceipts, bucketReceiptsByHash,
			bucketPositions, bucketCandidates, bucketResults, bucketAudit,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func pairKey(voterID, positionID string) []byte {
	return []byte(voterID + "|" + positionID)
}

// --- election settings ---

// GetSettings returns the current election settings. A fresh database
// reports state not_started with no public key.
func (s *Store) GetSettings() (models.ElectionSettings, error) {
	settings := models.ElectionSettings{Status: models.StateNotStarted}
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get(settingsKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &settings)
	})
	return settings, err
}

func (s *Store) saveSettings(update func(*models.ElectionSettings)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		settings := models.ElectionSettings{Status: models.StateNotStarted}
		if data := b.Get(settingsKey); data != nil {
			if err := json.Unmarshal(data, &settings); err != nil {
				return err
			}
		}
		update(&settings)
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return b.Put(settingsKey, data)
	})
}

func (s *Store) SetStatus(state models.ElectionState) error {
	return s.saveSettings(func(settings *models.ElectionSettings) {
		settings.Status = state
	})
}

func (s *Store) SetPublicKey(publicKeyPEM string) error {
	return s.saveSettings(func(settings *models.ElectionSettings) {
		settings.PublicKey = publicKeyPEM
	})
}

func (s *Store) clearPublicKey() error {
	return s.saveSettings(func(settings *models.ElectionSettings) {
		settings.PublicKey = ""
	})
}

// --- sealed ballots ---

// CreateSealedBallot inserts a sealed ballot if and only if no ballot exists
// for the same (voter, position) pair. Uniqueness is enforced inside the
// write transaction.
func (s *Store) CreateSealedBallot(ballot *models.SealedBallot) error {
	key := pairKey(ballot.VoterID, ballot.PositionID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBallots)
		if b.Get(key) != nil {
			return ErrDuplicateVote
		}
		data, err := json.Marshal(ballot)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *Store) GetSealedBallot(voterID, positionID string) (*models.SealedBallot, error) {
	var ballot models.SealedBallot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBallots).Get(pairKey(voterID, positionID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &ballot)
	})
	if err != nil {
		return nil, err
	}
	return &ballot, nil
}

// ForEachSealedBallot streams every sealed ballot through fn inside a single
// read transaction. Writers are not blocked.
func (s *Store) ForEachSealedBallot(fn func(models.SealedBallot) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBallots).ForEach(func(_, v []byte) error {
			var ballot models.SealedBallot
			if err := json.Unmarshal(v, &ballot); err != nil {
				return err
			}
			return fn(ballot)
		})
	})
}

func (s *Store) CountSealedBallots() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketBallots).Stats().KeyN
		return nil
	})
	return count, err
}

// --- receipts ---

func (s *Store) SaveReceipt(receipt *models.Receipt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(receipt)
		if err != nil {
			return err
		}
		key := pairKey(receipt.VoterID, receipt.PositionID)
		if err := tx.Bucket(bucketReceipts).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketReceiptsByHash).Put([]byte(receipt.ReceiptHash), key)
	})
}

func (s *Store) GetReceipt(voterID, positionID string) (*models.Receipt, error) {
	var receipt models.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReceipts).Get(pairKey(voterID, positionID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (s *Store) GetReceiptByHash(hash string) (*models.Receipt, error) {
	var receipt models.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketReceiptsByHash).Get([]byte(hash))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketReceipts).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// --- candidate directory ---

func (s *Store) PutPosition(position models.Position) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(position)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPositions).Put([]byte(position.ID), data)
	})
}

func (s *Store) ListPositions() ([]models.Position, error) {
	var positions []models.Position
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPositions).ForEach(func(_, v []byte) error {
			var position models.Position
			if err := json.Unmarshal(v, &position); err != nil {
				return err
			}
			positions = append(positions, position)
			return nil
		})
	})
	return positions, err
}

func (s *Store) PutCandidate(candidate models.Candidate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(candidate)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCandidates).Put([]byte(candidate.ID), data)
	})
}

func (s *Store) GetCandidate(id string) (*models.Candidate, error) {
	var candidate models.Candidate
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCandidates).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &candidate)
	})
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

func (s *Store) ListCandidates() ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCandidates).ForEach(func(_, v []byte) error {
			var candidate models.Candidate
			if err := json.Unmarshal(v, &candidate); err != nil {
				return err
			}
			candidates = append(candidates, candidate)
			return nil
		})
	})
	return candidates, err
}

// --- results view ---

func (s *Store) SaveResults(view *models.ResultsView) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(view)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketResults).Put(resultsKey, data)
	})
}

func (s *Store) GetResults() (*models.ResultsView, error) {
	var view models.ResultsView
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResults).Get(resultsKey)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &view)
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// --- audit trail ---

// AppendAudit appends a record to the audit trail. Records are keyed by a
// monotonic sequence number and are never updated or deleted.
func (s *Store) AppendAudit(record *models.AuditRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LastAuditHash returns the hash of the most recent audit record, or an
// empty string for an empty trail.
func (s *Store) LastAuditHash() (string, error) {
	hash := ""
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketAudit).Cursor().Last()
		if v == nil {
			return nil
		}
		var record models.AuditRecord
		if err := json.Unmarshal(v, &record); err != nil {
			return err
		}
		hash = record.Hash
		return nil
	})
	return hash, err
}

// ListAudit returns up to limit audit records in append order. limit <= 0
// returns the full trail.
func (s *Store) ListAudit(limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var record models.AuditRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	return records, err
}

// --- reset ---

// PurgeBallots drops every sealed ballot. Only the full election reset may
// call this.
func (s *Store) PurgeBallots() error {
	return s.recreateBucket(bucketBallots)
}

// PurgeReceipts drops every receipt and the hash index.
func (s *Store) PurgeReceipts() error {
	if err := s.recreateBucket(bucketReceipts); err != nil {
		return err
	}
	return s.recreateBucket(bucketReceiptsByHash)
}

// PurgeResults drops the persisted results view.
func (s *Store) PurgeResults() error {
	return s.recreateBucket(bucketResults)
}

// PurgePublicKey removes the election public key so a new ceremony can run.
func (s *Store) PurgePublicKey() error {
	return s.clearPublicKey()
}

func (s *Store) recreateBucket(name []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}
