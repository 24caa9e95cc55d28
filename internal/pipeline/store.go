package pipeline

import (
	"time"

	"github.com/quayside/reach/internal/domain"
)

// Clock returns the current time.
type Clock func() time.Time

// Store holds the authoritative-for-this-session mapping of pipeline item
// to stage, with per-stage ordering. It is not safe for concurrent use; it
// is meant to be driven from a single event loop with the Controller as its
// only writer.
type Store struct {
	items map[string]domain.PipelineItem
	order map[domain.Stage][]string
	clock Clock
	subs  []func()
}

// Snapshot is a cheap copy of store state used for rollback. It shares no
// mutable structure with the live store, so later live mutations cannot
// corrupt a restore.
type Snapshot struct {
	items map[string]domain.PipelineItem
	order map[domain.Stage][]string
}

// NewStore constructs a new value for this package.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		items: map[string]domain.PipelineItem{},
		order: map[domain.Stage][]string{},
		clock: clock,
	}
}

// Subscribe registers a callback invoked after every store mutation.
func (s *Store) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.subs = append(s.subs, fn)
}

// Load replaces store contents with server truth, preserving input order
// within each stage.
func (s *Store) Load(items []domain.PipelineItem) {
	s.items = make(map[string]domain.PipelineItem, len(items))
	s.order = map[domain.Stage][]string{}
	for _, item := range items {
		if _, ok := s.items[item.ID]; ok {
			continue
		}
		s.items[item.ID] = item
		s.order[item.Stage] = append(s.order[item.Stage], item.ID)
	}
	s.notify()
}

// Item returns one item by identity.
func (s *Store) Item(itemID string) (domain.PipelineItem, bool) {
	item, ok := s.items[itemID]
	return item, ok
}

// Len returns the number of items in the store.
func (s *Store) Len() int {
	return len(s.items)
}

// ItemsForStage returns the stage's items in order. It never fails; an
// unknown stage yields an empty slice.
func (s *Store) ItemsForStage(stage domain.Stage) []domain.PipelineItem {
	ids := s.order[stage]
	out := make([]domain.PipelineItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// ApplyMove mutates the item's stage in place and resets its stage-entry
// timestamp. It is the only sanctioned mutation path and is idempotent:
// applying the same (item, stage) pair twice leaves state unchanged and
// succeeds both times, so a retried ambiguous move is safe.
func (s *Store) ApplyMove(itemID string, stage domain.Stage) (domain.PipelineItem, error) {
	item, ok := s.items[itemID]
	if !ok {
		return domain.PipelineItem{}, domain.ErrItemNotFound
	}
	if item.Stage == stage {
		return item, nil
	}

	from := item.Stage
	if err := item.EnterStage(stage, s.clock()); err != nil {
		return domain.PipelineItem{}, err
	}
	s.items[itemID] = item
	s.order[from] = removeID(s.order[from], itemID)
	s.order[stage] = append(s.order[stage], itemID)
	s.notify()
	return item, nil
}

// SnapshotState captures current store state for a later Restore.
func (s *Store) SnapshotState() Snapshot {
	items := make(map[string]domain.PipelineItem, len(s.items))
	for id, item := range s.items {
		items[id] = item
	}
	order := make(map[domain.Stage][]string, len(s.order))
	for stage, ids := range s.order {
		order[stage] = append([]string(nil), ids...)
	}
	return Snapshot{items: items, order: order}
}

// Restore replaces store state with a previously captured snapshot.
func (s *Store) Restore(snap Snapshot) {
	items := make(map[string]domain.PipelineItem, len(snap.items))
	for id, item := range snap.items {
		items[id] = item
	}
	order := make(map[domain.Stage][]string, len(snap.order))
	for stage, ids := range snap.order {
		order[stage] = append([]string(nil), ids...)
	}
	s.items = items
	s.order = order
	s.notify()
}

// notify invokes subscribers after a mutation.
func (s *Store) notify() {
	for _, fn := range s.subs {
		fn()
	}
}

// removeID drops one id from an ordered id list.
func removeID(ids []string, itemID string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != itemID {
			out = append(out, id)
		}
	}
	return out
}
