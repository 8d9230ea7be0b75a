// ABOUTME: Pending-confirmation registry for tool-triggered escalations
// ABOUTME: TTL-swept on insert; resolution is at-most-once and owner-guarded
package chat

import (
	"fmt"
	"sync"
	"time"

	"ragdesk/internal/models"
)

// ConfirmationTTL is how long a pending confirmation stays resolvable.
const ConfirmationTTL = 5 * time.Minute

const confirmationPrefix = "confirm"

// NewConfirmationID builds a unique confirmation id from the fixed prefix,
// the requesting user and a timestamp.
func NewConfirmationID(userID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", confirmationPrefix, userID, now.UnixNano())
}

// ConfirmationStore is the process-wide registry of pending tool
// confirmations. Expired records are purged opportunistically before every
// insertion rather than by a background timer.
type ConfirmationStore struct {
	mu      sync.Mutex
	records map[string]models.PendingToolConfirmation
	ttl     time.Duration
	now     func() time.Time
}

// NewConfirmationStore creates a registry with the given TTL.
func NewConfirmationStore(ttl time.Duration) *ConfirmationStore {
	if ttl <= 0 {
		ttl = ConfirmationTTL
	}
	return &ConfirmationStore{
		records: make(map[string]models.PendingToolConfirmation),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put sweeps expired records and inserts the new one.
func (s *ConfirmationStore) Put(rec models.PendingToolConfirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = EvictExpired(s.now(), s.records, s.ttl)
	s.records[rec.ID] = rec
}

// Take resolves a pending record at most once. A missing or expired record
// yields models.ErrConfirmationExpired; a caller other than the originator
// yields models.ErrConfirmationForbidden and the record stays resolvable by
// its owner. On success the record is removed before it is returned.
func (s *ConfirmationStore) Take(id, resolvingUserID string) (models.PendingToolConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return models.PendingToolConfirmation{}, models.ErrConfirmationExpired
	}
	if s.now().Sub(rec.CreatedAt) > s.ttl {
		delete(s.records, id)
		return models.PendingToolConfirmation{}, models.ErrConfirmationExpired
	}
	if rec.UserID != resolvingUserID {
		return models.PendingToolConfirmation{}, models.ErrConfirmationForbidden
	}

	delete(s.records, id)
	return rec, nil
}

// Len reports the number of pending records.
func (s *ConfirmationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// EvictExpired returns the records still inside the TTL window at the given
// instant. Pure: the input map is not modified.
func EvictExpired(now time.Time, records map[string]models.PendingToolConfirmation, ttl time.Duration) map[string]models.PendingToolConfirmation {
	survivors := make(map[string]models.PendingToolConfirmation, len(records))
	for id, rec := range records {
		if now.Sub(rec.CreatedAt) <= ttl {
			survivors[id] = rec
		}
	}
	return survivors
}
