package pipeline

import (
	"github.com/quayside/reach/internal/domain"
)

// Phase identifies one drag-controller state.
type Phase string

// Drag-controller phases. RollingBack is transient: Resolve passes through
// it synchronously while restoring the pre-move snapshot.
const (
	PhaseIdle        Phase = "idle"
	PhaseDragging    Phase = "dragging"
	PhaseAwaiting    Phase = "awaiting_confirmation"
	PhaseRollingBack Phase = "rolling_back"
)

// Session describes one in-progress drag: the item being moved, its
// originating stage, the stage currently hovered, and the monotonic token
// used to discard stale reconciliation results.
type Session struct {
	Token  uint64
	ItemID string
	Origin domain.Stage
	Hover  domain.Stage
}

// PendingMove describes one optimistically applied move awaiting server
// confirmation.
type PendingMove struct {
	Token  uint64
	ItemID string
	Origin domain.Stage
	Target domain.Stage
}

// Resolution classifies the outcome of one reconciliation.
type Resolution string

// Resolution values. Stale responses are silently dropped, never applied.
const (
	ResolutionConfirmed  Resolution = "confirmed"
	ResolutionRolledBack Resolution = "rolled_back"
	ResolutionStale      Resolution = "stale"
)

// Controller turns drag gestures into stage-transition intents, applies
// them optimistically to the store, and reconciles with the gateway
// response. Like the store it is single-writer: drive it from one event
// loop.
type Controller struct {
	store *Store

	phase    Phase
	session  Session
	lastTok  uint64
	snapshot Snapshot
	pending  *PendingMove
	retry    *PendingMove

	onTransition func(from, to Phase)
}

// NewController constructs a new value for this package.
func NewController(store *Store) *Controller {
	return &Controller{
		store: store,
		phase: PhaseIdle,
	}
}

// OnTransition registers a hook observing every phase transition.
func (c *Controller) OnTransition(fn func(from, to Phase)) {
	c.onTransition = fn
}

// Phase returns the controller's current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Session returns the current drag session. Meaningful only while the
// phase is Dragging or AwaitingConfirmation.
func (c *Controller) Session() Session {
	return c.session
}

// RetryableMove returns the last transiently failed move, if one is
// available to re-issue.
func (c *Controller) RetryableMove() (PendingMove, bool) {
	if c.retry == nil {
		return PendingMove{}, false
	}
	return *c.retry, true
}

// StartDrag begins a drag for one item. Starting while a previous move is
// awaiting confirmation supersedes it: the new session token makes the old
// reconciliation stale, so a slow first move's late response can never
// clobber this drag's result. Starting mid-drag is rejected.
func (c *Controller) StartDrag(itemID string) error {
	if c.phase == PhaseDragging {
		return ErrDragActive
	}
	item, ok := c.store.Item(itemID)
	if !ok {
		return domain.ErrItemNotFound
	}

	c.pending = nil
	c.snapshot = Snapshot{}
	c.lastTok++
	c.session = Session{
		Token:  c.lastTok,
		ItemID: itemID,
		Origin: item.Stage,
		Hover:  item.Stage,
	}
	c.transition(PhaseDragging)
	return nil
}

// Hover updates the drop-target highlight. It never mutates the store.
func (c *Controller) Hover(stage domain.Stage) error {
	if c.phase != PhaseDragging {
		return ErrNoDrag
	}
	c.session.Hover = stage
	return nil
}

// Drop consumes the drag session. A drop onto the originating stage is a
// no-op transition back to Idle: no store mutation, no pending move, and
// the caller must not issue a network call. Otherwise the move is applied
// optimistically, a rollback snapshot is captured, and the returned
// PendingMove must be submitted to the gateway and settled via Resolve.
func (c *Controller) Drop(stage domain.Stage) (PendingMove, bool, error) {
	if c.phase != PhaseDragging {
		return PendingMove{}, false, ErrNoDrag
	}
	if stage == c.session.Origin {
		c.transition(PhaseIdle)
		return PendingMove{}, false, nil
	}

	snap := c.store.SnapshotState()
	if _, err := c.store.ApplyMove(c.session.ItemID, stage); err != nil {
		c.transition(PhaseIdle)
		return PendingMove{}, false, err
	}

	c.snapshot = snap
	c.pending = &PendingMove{
		Token:  c.session.Token,
		ItemID: c.session.ItemID,
		Origin: c.session.Origin,
		Target: stage,
	}
	c.transition(PhaseAwaiting)
	return *c.pending, true, nil
}

// Cancel aborts a drag before drop. Nothing was mutated, so there is
// nothing to undo. Outside Dragging it is a no-op: an in-flight move keeps
// settling through Resolve (or goes stale via the token guard).
func (c *Controller) Cancel() {
	if c.phase != PhaseDragging {
		return
	}
	c.transition(PhaseIdle)
}

// Resolve settles the reconciliation for one submitted move. A token that
// does not match the currently pending move marks a superseded session;
// its result is discarded without touching the store. On failure the
// pre-move snapshot is restored and, when the failure is transient, the
// move is kept for retry.
func (c *Controller) Resolve(token uint64, err error) Resolution {
	if c.phase != PhaseAwaiting || c.pending == nil || c.pending.Token != token {
		return ResolutionStale
	}

	if err == nil {
		c.pending = nil
		c.snapshot = Snapshot{}
		c.retry = nil
		c.transition(PhaseIdle)
		return ResolutionConfirmed
	}

	c.transition(PhaseRollingBack)
	c.store.Restore(c.snapshot)
	if Retryable(err) {
		move := *c.pending
		c.retry = &move
	} else {
		c.retry = nil
	}
	c.pending = nil
	c.snapshot = Snapshot{}
	c.transition(PhaseIdle)
	return ResolutionRolledBack
}

// Retry re-issues the last transiently failed move. The optimistic apply
// repeats under a fresh token; idempotence of ApplyMove and of the remote
// MoveItem makes this safe even when the original attempt actually landed.
func (c *Controller) Retry() (PendingMove, bool, error) {
	if c.phase != PhaseIdle || c.retry == nil {
		return PendingMove{}, false, nil
	}
	move := *c.retry

	snap := c.store.SnapshotState()
	if _, err := c.store.ApplyMove(move.ItemID, move.Target); err != nil {
		c.retry = nil
		return PendingMove{}, false, err
	}

	c.lastTok++
	move.Token = c.lastTok
	c.session = Session{
		Token:  move.Token,
		ItemID: move.ItemID,
		Origin: move.Origin,
		Hover:  move.Target,
	}
	c.snapshot = snap
	c.pending = &move
	c.retry = nil
	c.transition(PhaseAwaiting)
	return move, true, nil
}

// transition moves the controller to a new phase and fires the hook.
func (c *Controller) transition(to Phase) {
	from := c.phase
	c.phase = to
	if c.onTransition != nil && from != to {
		c.onTransition(from, to)
	}
}
