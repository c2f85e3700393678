package support

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	TicketStatusOpen = "open"

	ticketPrefix   = "TCK"
	redirectPrefix = "HUM"
)

// Ticket is the internal ticket record. UserID is stored raw for lookups;
// every externally visible field is masked at creation time.
type Ticket struct {
	ID          string
	Summary     string
	Description string
	UserID      string
	UserRef     string
	Status      string
	Priority    string
	Category    string
	Channel     string
	Escalation  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PublicView is the ticket shape exposed over HTTP. It never carries the raw
// user identifier.
type PublicView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority"`
	Category  string    `json:"category"`
	Summary   string    `json:"summary"`
	UserRef   string    `json:"user_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketStore is a concurrent in-memory ticket registry. Durable persistence
// is owned by an external system; this store backs a single replica.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
	order   []string
	seq     atomic.Int64
}

func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]*Ticket)}
}

// Create assigns an ID and timestamps, stores the ticket and returns a copy.
func (s *TicketStore) Create(ticket Ticket) Ticket {
	now := time.Now().UTC()
	prefix := ticketPrefix
	if ticket.Category == "redirect" {
		prefix = redirectPrefix
	}
	ticket.ID = s.nextID(prefix, now)
	ticket.Status = TicketStatusOpen
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if ticket.Channel == "" {
		ticket.Channel = "chat"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := ticket
	s.tickets[ticket.ID] = &stored
	s.order = append(s.order, ticket.ID)
	return ticket
}

// Get returns a copy of the ticket, or false when unknown.
func (s *TicketStore) Get(id string) (Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *ticket, true
}

// ListByUser returns the user's tickets in creation order.
func (s *TicketStore) ListByUser(userID string) []Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Ticket
	for _, id := range s.order {
		if ticket := s.tickets[id]; ticket.UserID == userID {
			out = append(out, *ticket)
		}
	}
	return out
}

func (s *TicketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

func (s *TicketStore) nextID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, now.Format("20060102"), s.seq.Add(1)%1000)
}

// View maps a ticket to its public shape.
func (t Ticket) View() PublicView {
	return PublicView{
		ID:        t.ID,
		Status:    t.Status,
		Priority:  t.Priority,
		Category:  t.Category,
		Summary:   t.Summary,
		UserRef:   t.UserRef,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
