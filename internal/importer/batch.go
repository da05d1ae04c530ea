package importer

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBatchNotFound is returned when a batch id is missing, expired,
// already applied, or owned by a different user.
var ErrBatchNotFound = errors.New("import batch not found")

// Batch is the server-held result of one CSV upload, pending user
// confirmation. It is written once on upload, read on review, and
// consumed exactly once on apply.
type Batch struct {
	ID     string
	UserID int64
	Kind   Kind

	Rows       []Row
	Invalid    []InvalidRow
	Duplicates []int

	// ExistingSigs snapshots the caller's persisted records at upload
	// time; the replace action deletes through it.
	ExistingSigs SignatureIndex
}

// BatchStore holds pending import batches keyed by an opaque random
// identifier. Entries expire after a TTL and the store is capacity
// bounded with least-recently-used eviction, so abandoned uploads
// cannot accumulate.
type BatchStore struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type batchItem struct {
	key       string
	batch     *Batch
	expiresAt time.Time
}

func NewBatchStore(maxSize int, ttl time.Duration) *BatchStore {
	return &BatchStore{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Put stores a batch under a freshly generated id and returns that id.
func (s *BatchStore) Put(b *Batch) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	b.ID = id

	elem := s.lru.PushFront(&batchItem{
		key:       id,
		batch:     b,
		expiresAt: time.Now().Add(s.ttl),
	})
	s.items[id] = elem

	if s.lru.Len() > s.maxSize {
		if oldest := s.lru.Back(); oldest != nil {
			s.removeElement(oldest)
		}
	}
	return id
}

// Get returns the batch for review. Ownership is checked against the
// embedded user id, not mere possession of the key: batch ids may leak
// into logs, so a foreign user id yields ErrBatchNotFound.
func (s *BatchStore) Get(id string, userID int64) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	s.lru.MoveToFront(s.items[id])
	return item.batch, nil
}

// Take removes and returns the batch in one step, so two applies racing
// on the same id cannot both succeed: the loser sees ErrBatchNotFound.
func (s *BatchStore) Take(id string, userID int64) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	s.removeElement(s.items[id])
	return item.batch, nil
}

// lookup must be called with the mutex held.
func (s *BatchStore) lookup(id string, userID int64) (*batchItem, error) {
	elem, ok := s.items[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	item := elem.Value.(*batchItem)
	if time.Now().After(item.expiresAt) {
		s.removeElement(elem)
		return nil, ErrBatchNotFound
	}
	if item.batch.UserID != userID {
		return nil, ErrBatchNotFound
	}
	return item, nil
}

func (s *BatchStore) removeElement(elem *list.Element) {
	item := elem.Value.(*batchItem)
	delete(s.items, item.key)
	s.lru.Remove(elem)
}

// SweepExpired evicts all expired batches and reports how many were
// removed. Intended to run periodically from the server main.
func (s *BatchStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []*list.Element
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*batchItem).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		s.removeElement(elem)
	}
	return len(expired)
}

// Size returns the number of batches currently held.
func (s *BatchStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
