package handoff

import (
	"sync"
	"time"

	"github.com/paylane/concierge/engine/core"
)

// Record is one handoff request. Summary and Details are stored already
// masked; the raw message never enters the registry.
type Record struct {
	Token         string
	CorrelationID string
	UserID        string
	TicketID      string
	Category      string
	Priority      string
	Summary       string
	Details       string
	Source        string
	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ResolvedAt    time.Time
}

const retentionMultiplier = 10

// Registry holds handoff records with secondary lookups by correlation ID and
// user ID. Pending records expire after the confirm TTL; terminal records are
// retained for a bounded window and swept lazily on every mutating call.
type Registry struct {
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	records map[string]*Record
	byCorr  map[string]string
	byUser  map[string]string
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:       ttl,
		retention: ttl * retentionMultiplier,
		now:       time.Now,
		records:   make(map[string]*Record),
		byCorr:    make(map[string]string),
		byUser:    make(map[string]string),
	}
}

// Register creates a pending record with a fresh token. An earlier pending
// item for the same user or correlation is superseded.
func (r *Registry) Register(record Record) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	now := r.now()
	record.Token = core.NewToken()
	record.Status = StatusPending
	record.CreatedAt = now
	record.ExpiresAt = now.Add(r.ttl)

	stored := record
	r.records[stored.Token] = &stored
	if stored.CorrelationID != "" {
		r.byCorr[stored.CorrelationID] = stored.Token
	}
	if stored.UserID != "" {
		r.byUser[stored.UserID] = stored.Token
	}
	return &stored
}

// FetchPending returns a copy of the pending record matched by token first,
// then correlation ID, then user ID. A token that expired but is still within
// retention reports ErrHandoffExpired instead of not-found.
func (r *Registry) FetchPending(token, correlationID, userID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	record := r.lookupLocked(token, correlationID, userID)
	if record == nil {
		return Record{}, core.ErrHandoffNotFound
	}
	if record.Status == StatusExpired {
		return Record{}, core.ErrHandoffExpired
	}
	if record.Status != StatusPending {
		return Record{}, core.ErrHandoffNotFound
	}
	return *record, nil
}

// Resolve moves a pending record to next and unindexes it. The record must
// still be pending; a second resolve for the same token fails, which keeps
// confirmation single-use.
func (r *Registry) Resolve(token string, next Status) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	record, ok := r.records[token]
	if !ok {
		return Record{}, core.ErrHandoffNotFound
	}
	if record.Status != StatusPending {
		return Record{}, core.ErrHandoffNotFound
	}
	status, err := record.Status.Transition(next)
	if err != nil {
		return Record{}, err
	}
	record.Status = status
	record.ResolvedAt = r.now()
	r.unindexLocked(record)
	return *record, nil
}

// Complete records the delivery outcome of a confirmed record.
func (r *Registry) Complete(token string, next Status) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[token]
	if !ok {
		return Record{}, core.ErrHandoffNotFound
	}
	status, err := record.Status.Transition(next)
	if err != nil {
		return Record{}, err
	}
	record.Status = status
	record.ResolvedAt = r.now()
	return *record, nil
}

// Get returns a copy of any retained record.
func (r *Registry) Get(token string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// PendingCount reports how many records are still awaiting a reply.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.Status == StatusPending {
			count++
		}
	}
	return count
}

// sweep expires overdue pending records and drops terminal records past the
// retention window. Callers hold the lock.
func (r *Registry) sweep() {
	now := r.now()
	for token, record := range r.records {
		switch {
		case record.Status == StatusPending && now.After(record.ExpiresAt):
			record.Status = StatusExpired
			record.ResolvedAt = now
			r.unindexLocked(record)
		case record.Status.Terminal() && !record.ResolvedAt.IsZero() &&
			now.Sub(record.ResolvedAt) > r.retention:
			r.unindexLocked(record)
			delete(r.records, token)
		}
	}
}

func (r *Registry) lookupLocked(token, correlationID, userID string) *Record {
	if token != "" {
		if record, ok := r.records[token]; ok {
			return record
		}
	}
	if correlationID != "" {
		if stored, ok := r.byCorr[correlationID]; ok {
			return r.records[stored]
		}
	}
	if userID != "" {
		if stored, ok := r.byUser[userID]; ok {
			return r.records[stored]
		}
	}
	return nil
}

func (r *Registry) unindexLocked(record *Record) {
	if record.CorrelationID != "" && r.byCorr[record.CorrelationID] == record.Token {
		delete(r.byCorr, record.CorrelationID)
	}
	if record.UserID != "" && r.byUser[record.UserID] == record.Token {
		delete(r.byUser, record.UserID)
	}
}
