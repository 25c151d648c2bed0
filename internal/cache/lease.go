package cache

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/othala/internal/apperr"
)

const leaseFile = "lease.json"

// Lease is a run-scoped token marking a sync or bulk-index run in progress
// for one user. It replaces a bare in-progress boolean: a lease held past
// its expiry is stale and may be broken, so a crashed process cannot wedge
// future runs.
type Lease struct {
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease is past its expiry.
func (l *Lease) Expired() bool {
	return time.Now().After(l.ExpiresAt)
}

func (f *FS) leasePath(userID string) string {
	return filepath.Join(f.userDir(userID), leaseFile)
}

// AcquireLease takes the run lease for userID. It fails with
// apperr.ErrConflict while an unexpired lease is held; an expired lease is
// broken and replaced.
func (f *FS) AcquireLease(userID string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: acquire lease: non-positive ttl: %w", apperr.ErrValidation)
	}
	path := f.leasePath(userID)
	if current, err := readLease(path); err == nil {
		if !current.Expired() {
			return nil, fmt.Errorf("cache: user %s: run in progress until %s: %w",
				userID, current.ExpiresAt.Format(time.RFC3339), apperr.ErrConflict)
		}
		// Stale lease from a crashed run; break it.
		_ = os.Remove(path)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cache: lease token: %w", err)
	}
	now := time.Now().UTC()
	lease := &Lease{
		UserID:     userID,
		Token:      hex.EncodeToString(buf),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(lease)
	if err != nil {
		return nil, fmt.Errorf("cache: encode lease: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return nil, err
	}
	return lease, nil
}

// RenewLease extends the expiry of a held lease (heartbeat for long runs).
func (f *FS) RenewLease(lease *Lease, ttl time.Duration) error {
	path := f.leasePath(lease.UserID)
	current, err := readLease(path)
	if err != nil || current.Token != lease.Token {
		return fmt.Errorf("cache: renew lease: no longer held: %w", apperr.ErrConflict)
	}
	lease.ExpiresAt = time.Now().UTC().Add(ttl)
	data, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("cache: encode lease: %w", err)
	}
	return atomicWrite(path, data)
}

// ReleaseLease drops the lease if it is still held by the given token.
// Releasing an already-released or stolen lease is a no-op.
func (f *FS) ReleaseLease(lease *Lease) error {
	if lease == nil {
		return nil
	}
	path := f.leasePath(lease.UserID)
	current, err := readLease(path)
	if err != nil || current.Token != lease.Token {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: release lease: %w", errors.Join(apperr.ErrStorage, err))
	}
	return nil
}

func readLease(path string) (*Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
