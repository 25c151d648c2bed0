// Package checkpoint persists bulk-run checkpoints durably. Records are
// latest-wins, keyed by operation id, with a per-user pointer to the most
// recent checkpoint so an interrupted run can be resumed without knowing
// its operation id.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

const (
	currentSchemaVersion = 1

	bucketMeta        = "meta"
	bucketCheckpoints = "checkpoints"
	bucketLatest      = "latest" // user id → operation id

	keySchemaVersion = "schema_version"
)

// Store is a bbolt-backed checkpoint store.
type Store struct {
	db *bolt.DB
}

// Open creates (or reopens) the checkpoint store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 100 * time.Millisecond})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return fmt.Errorf("checkpoint: create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketCheckpoints)); err != nil {
			return fmt.Errorf("checkpoint: create checkpoints bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketLatest)); err != nil {
			return fmt.Errorf("checkpoint: create latest bucket: %w", err)
		}
		raw := meta.Get([]byte(keySchemaVersion))
		if raw == nil {
			return meta.Put([]byte(keySchemaVersion), []byte(strconv.Itoa(currentSchemaVersion)))
		}
		v, err := strconv.Atoi(string(raw))
		if err != nil || v != currentSchemaVersion {
			return fmt.Errorf("checkpoint: unknown schema version %q", raw)
		}
		return nil
	})
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores a checkpoint, replacing any prior snapshot for its operation
// id, and marks it the latest for its user.
func (s *Store) Put(cp *models.Checkpoint) error {
	if cp == nil || cp.OperationID == "" {
		return fmt.Errorf("checkpoint: put: empty operation id: %w", apperr.ErrValidation)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketCheckpoints)).Put([]byte(cp.OperationID), data); err != nil {
			return fmt.Errorf("checkpoint: put: %w", err)
		}
		if cp.UserID != "" {
			if err := tx.Bucket([]byte(bucketLatest)).Put([]byte(cp.UserID), []byte(cp.OperationID)); err != nil {
				return fmt.Errorf("checkpoint: put latest pointer: %w", err)
			}
		}
		return nil
	})
}

// Get returns the checkpoint for an operation id.
func (s *Store) Get(operationID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketCheckpoints)).Get([]byte(operationID))
		if raw == nil {
			return fmt.Errorf("checkpoint: operation %s: %w", operationID, apperr.ErrNotFound)
		}
		return json.Unmarshal(raw, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Latest returns the most recent checkpoint recorded for a user.
func (s *Store) Latest(userID string) (*models.Checkpoint, error) {
	var opID string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketLatest)).Get([]byte(userID))
		if raw == nil {
			return fmt.Errorf("checkpoint: user %s: %w", userID, apperr.ErrNotFound)
		}
		opID = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(opID)
}

// Delete removes a checkpoint and, when it is the user's latest, the
// pointer to it. Deleting an absent checkpoint succeeds.
func (s *Store) Delete(operationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket([]byte(bucketCheckpoints))
		raw := cb.Get([]byte(operationID))
		if raw == nil {
			return nil
		}
		var cp models.Checkpoint
		if err := json.Unmarshal(raw, &cp); err == nil && cp.UserID != "" {
			lb := tx.Bucket([]byte(bucketLatest))
			if string(lb.Get([]byte(cp.UserID))) == operationID {
				if err := lb.Delete([]byte(cp.UserID)); err != nil {
					return err
				}
			}
		}
		return cb.Delete([]byte(operationID))
	})
}

// IsNotFound reports whether err marks a missing checkpoint.
func IsNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }
