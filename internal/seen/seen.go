package seen

import (
	"fmt"
	"time"
)

// Store is the persistence surface the tracker needs
type Store interface {
	GetSeen(compositeID string) (time.Time, bool, error)
	UpsertSeen(compositeID string, expiresAt time.Time) error
	PurgeExpiredSeen(now time.Time) (int64, error)
}

// Tracker gates new-deal emission on a TTL-bounded seen set. A record
// past its expiry counts as absent, so the periodic purge is a cleanup
// optimization rather than a correctness requirement.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker creates a tracker over the given store
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// IsNewDeal reports whether no live seen record exists for the key
func (t *Tracker) IsNewDeal(key string) (bool, error) {
	expiresAt, exists, err := t.store.GetSeen(key)
	if err != nil {
		return false, fmt.Errorf("failed to check seen record for %s: %w", key, err)
	}
	if !exists {
		return true, nil
	}
	return expiresAt.Before(t.now()), nil
}

// MarkAsSeen upserts the key with a fresh expiry of now + ttlDays
func (t *Tracker) MarkAsSeen(key string, ttlDays int) error {
	expiresAt := t.now().Add(time.Duration(ttlDays) * 24 * time.Hour)
	if err := t.store.UpsertSeen(key, expiresAt); err != nil {
		return fmt.Errorf("failed to mark %s as seen: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes records past their expiry
func (t *Tracker) PurgeExpired() (int64, error) {
	return t.store.PurgeExpiredSeen(t.now())
}
