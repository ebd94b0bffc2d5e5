package order

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Outcome is the detailed result of a change to an existing order. The
// public API collapses it to a boolean.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeForbidden
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not found"
	case OutcomeForbidden:
		return "email mismatch"
	case OutcomeCancelled:
		return "already cancelled"
	default:
		return "unknown"
	}
}

const (
	defaultExpectedCustomers = 100_000
	defaultFalsePositiveRate = 0.01
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for delivery times.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithEmailFilter sizes the bloom filter that short-circuits lookups of
// emails that never placed an order.
func WithEmailFilter(expected uint, fpRate float64) StoreOption {
	return func(s *Store) {
		s.emails = bloom.NewWithEstimates(expected, fpRate)
	}
}

// Store owns all orders of the process. It is safe for concurrent use.
//
// Orders are never removed: cancelled orders stay reachable through Get but
// are excluded from every listing.
type Store struct {
	now func() time.Time

	mu     sync.RWMutex
	orders map[int64]*Order
	seq    []int64 // insertion order
	nextID int64
	emails *bloom.BloomFilter
}

// NewStore returns an empty Store whose first order gets ID 1.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:    time.Now,
		orders: make(map[int64]*Order),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emails == nil {
		s.emails = bloom.NewWithEstimates(defaultExpectedCustomers, defaultFalsePositiveRate)
	}
	return s
}

// Place validates and stores a new order. A nil items slice counts as
// missing; an empty one is accepted.
func (s *Store) Place(name, email, address string, items []LineItem) (Order, error) {
	switch {
	case name == "":
		return Order{}, MissingField("name")
	case email == "":
		return Order{}, MissingField("email")
	case address == "":
		return Order{}, MissingField("address")
	case items == nil:
		return Order{}, MissingField("items")
	}
	if err := validateItems(items); err != nil {
		return Order{}, err
	}

	o := &Order{
		Name:    name,
		Email:   email,
		Address: address,
		Items:   append(make([]LineItem, 0, len(items)), items...),
		Status:  StatusPlaced,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = s.nextID
	s.nextID++
	o.DeliveryTime = s.now().Add(DeliveryWindow)
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	s.emails.AddString(email)

	return o.clone(), nil
}

// Get returns the order with the given ID, cancelled or not.
func (s *Store) Get(id int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

// ByEmail returns the active orders placed with exactly this email, oldest
// first.
func (s *Store) ByEmail(email string) []Order {
	out := []Order{}
	if email == "" {
		return out
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.emails.TestString(email) {
		return out
	}
	for _, id := range s.seq {
		o := s.orders[id]
		if o.Email == email && o.Status.Active() {
			out = append(out, o.clone())
		}
	}
	return out
}

// All returns every active order, oldest first.
func (s *Store) All() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0, len(s.seq))
	for _, id := range s.seq {
		if o := s.orders[id]; o.Status.Active() {
			out = append(out, o.clone())
		}
	}
	return out
}

// Cancel moves an owned, active order to StatusCancelled. It reports false
// when the order is missing, belongs to another email or is already
// cancelled.
func (s *Store) Cancel(email string, id int64) bool {
	_, res := s.cancel(email, id)
	return res == OutcomeOK
}

// ModifyAddress replaces the delivery address of an owned, active order.
// It fails under the same conditions as Cancel.
func (s *Store) ModifyAddress(email string, id int64, address string) bool {
	_, res := s.modifyAddress(email, id, address)
	return res == OutcomeOK
}

// cancel and modifyAddress return a copy of the order taken under the write
// lock, so the copy reflects exactly this change.
func (s *Store) cancel(email string, id int64) (Order, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, res := s.owned(email, id)
	if res != OutcomeOK {
		return Order{}, res
	}
	o.Status = StatusCancelled
	return o.clone(), OutcomeOK
}

func (s *Store) modifyAddress(email string, id int64, address string) (Order, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, res := s.owned(email, id)
	if res != OutcomeOK {
		return Order{}, res
	}
	o.Address = address
	return o.clone(), OutcomeOK
}

// owned looks up an order that email may change. The caller must hold the
// write lock.
func (s *Store) owned(email string, id int64) (*Order, Outcome) {
	o, ok := s.orders[id]
	switch {
	case !ok:
		return nil, OutcomeNotFound
	case o.Email != email:
		return nil, OutcomeForbidden
	case !o.Status.Active():
		return nil, OutcomeCancelled
	}
	return o, OutcomeOK
}

// Len returns the number of stored orders, cancelled ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Reset drops every order and restarts IDs at 1.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[int64]*Order)
	s.seq = nil
	s.nextID = 1
	s.emails.ClearAll()
}
