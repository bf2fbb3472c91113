package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// ErrNoRepository is returned by Persist and Rehydrate on a store created
// without WithPersistence.
var ErrNoRepository = errors.New("cart store has no snapshot repository")

// Store is the cart state. All methods are safe for concurrent use; each
// one holds a single lock over the whole item sequence.
//
// The mutating methods never fail. Unknown ids are ignored and quantities
// below 1 turn into removals.
type Store struct {
	mu       sync.Mutex
	items    []Item
	hydrated bool
	// rev counts changes to items. synced is set when the repository holds
	// exactly the items of the current rev.
	rev    uint64
	synced bool
	// stale marks a store recreated after eviction whose items must be
	// reloaded before use. staleHydrated is the hydrated flag to restore.
	stale         bool
	staleHydrated bool

	// repoMu orders repository access so that saves land in the order their
	// snapshots were taken.
	repoMu sync.Mutex
	repo   Repository
	key    string
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence attaches a snapshot repository. An empty key selects
// DefaultKey.
func WithPersistence(repo Repository, key string) Option {
	return func(s *Store) {
		s.repo = repo
		if key != "" {
			s.key = key
		}
	}
}

// New returns an empty store. It never loads a snapshot: call Rehydrate
// when the stored contents are wanted.
func New(opts ...Option) *Store {
	s := &Store{key: DefaultKey}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the snapshot key of the store.
func (s *Store) Key() string {
	return s.key
}

// AddItem increments the quantity of the item with p.ID, keeping every
// other field of the stored item, or appends p with quantity 1.
func (s *Store) AddItem(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changedLocked()
	if i := s.indexOf(p.ID); i >= 0 {
		s.items[i].Quantity++
		return
	}
	s.items = append(s.items, Item{Product: p.Clone(), Quantity: 1})
}

// RemoveItem deletes the item with the given product id, if any.
func (s *Store) RemoveItem(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(productID)
}

// UpdateQuantity sets the quantity of an existing item. A quantity below 1
// removes the item.
func (s *Store) UpdateQuantity(productID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		s.removeLocked(productID)
		return
	}
	if i := s.indexOf(productID); i >= 0 {
		s.changedLocked()
		s.items[i].Quantity = quantity
	}
}

// ClearCart empties the store.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changedLocked()
	s.items = nil
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneItems(s.items)
}

// Len returns the number of line items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Total recomputes the discounted sum of all line items.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Total(s.items)
}

// View is a consistent read of the store.
type View struct {
	Items    []Item
	Total    decimal.Decimal
	Hydrated bool
}

// View returns the items, their total and the hydrated flag from one read.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{Items: cloneItems(s.items), Total: Total(s.items), Hydrated: s.hydrated}
}

// Snapshot captures the current items.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{Version: SnapshotVersion, Items: cloneItems(s.items)}
}

// Restore replaces the items with the normalized contents of snap and marks
// the store hydrated.
func (s *Store) Restore(snap Snapshot) {
	items := normalize(snap.Items)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.changedLocked()
	s.items = items
	s.hydrated = true
}

// Hydrated reports whether a snapshot has been restored into the store.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hydrated
}

// Persist saves the current items to the snapshot repository. Concurrent
// calls are serialized, so the last snapshot taken is the one stored.
func (s *Store) Persist(ctx context.Context) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	s.repoMu.Lock()
	defer s.repoMu.Unlock()

	s.mu.Lock()
	snap := Snapshot{Version: SnapshotVersion, Items: cloneItems(s.items)}
	rev := s.rev
	s.mu.Unlock()

	if err := s.repo.Save(ctx, s.key, snap); err != nil {
		return errors.Wrapf(err, "save snapshot %q", s.key)
	}

	s.mu.Lock()
	s.synced = s.rev == rev
	s.mu.Unlock()
	return nil
}

// Rehydrate loads the stored snapshot into the store. A missing snapshot
// leaves the current items in place and is not an error.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	s.repoMu.Lock()
	defer s.repoMu.Unlock()

	snap, err := s.repo.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			s.mu.Lock()
			s.hydrated = true
			s.stale = false
			s.synced = len(s.items) == 0
			s.mu.Unlock()
			return nil
		}
		return errors.Wrapf(err, "load snapshot %q", s.key)
	}

	items := normalize(snap.Items)
	s.mu.Lock()
	s.changedLocked()
	s.items = items
	s.hydrated = true
	s.stale = false
	s.synced = true
	s.mu.Unlock()
	return nil
}

// markStale flags a store recreated after eviction. reload fills it from
// the repository and restores hydrated.
func (s *Store) markStale(hydrated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stale = true
	s.staleHydrated = hydrated
}

// reload loads the items of a stale store. It is a no-op otherwise.
func (s *Store) reload(ctx context.Context) error {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()

	s.mu.Lock()
	stale, hydrated := s.stale, s.staleHydrated
	s.mu.Unlock()
	if !stale || s.repo == nil {
		return nil
	}

	snap, err := s.repo.Load(ctx, s.key)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return errors.Wrapf(err, "reload snapshot %q", s.key)
	}
	items := normalize(snap.Items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.changedLocked()
	s.items = items
	s.hydrated = hydrated
	s.stale = false
	s.synced = true
	return nil
}

// eviction classifies the store for dropping from memory and reports the
// hydrated flag a reload should restore.
func (s *Store) eviction() (evictKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stale:
		return evictTombstone, s.staleHydrated
	case s.repo == nil:
		return evictDrop, false
	case s.rev == 0 && !s.hydrated:
		return evictDrop, false
	case s.synced:
		return evictTombstone, s.hydrated
	default:
		return evictKeep, false
	}
}

func (s *Store) changedLocked() {
	s.rev++
	s.synced = false
}

func (s *Store) indexOf(productID int64) int {
	return slices.IndexFunc(s.items, func(it Item) bool {
		return it.ID == productID
	})
}

func (s *Store) removeLocked(productID int64) {
	if i := s.indexOf(productID); i >= 0 {
		s.changedLocked()
		s.items = slices.Delete(s.items, i, i+1)
	}
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{Product: it.Clone(), Quantity: it.Quantity}
	}
	return out
}

// normalize drops items with quantity below 1 and any later duplicate of a
// product id, keeping the first occurrence.
func normalize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, Item{Product: it.Clone(), Quantity: it.Quantity})
	}
	return out
}
