package pipeline

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/quayside/reach/internal/domain"
)

func newDragFixture(t *testing.T) (*Store, *Controller) {
	t.Helper()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(fixedClock(now))
	store.Load([]domain.PipelineItem{
		testItem(t, "r1", domain.StageContacted, now),
		testItem(t, "r2", domain.StageNew, now),
	})
	return store, NewController(store)
}

func TestDropOntoOriginIsNoOp(t *testing.T) {
	store, ctrl := newDragFixture(t)
	before := store.SnapshotState()

	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if err := ctrl.Hover(domain.StageContacted); err != nil {
		t.Fatalf("hover: %v", err)
	}

	move, ok, err := ctrl.Drop(domain.StageContacted)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if ok {
		t.Fatalf("same-stage drop produced pending move %+v", move)
	}
	if ctrl.Phase() != PhaseIdle {
		t.Fatalf("phase = %q, want idle", ctrl.Phase())
	}
	if !reflect.DeepEqual(before, store.SnapshotState()) {
		t.Fatal("same-stage drop mutated store")
	}
}

func TestDropAppliesOptimistically(t *testing.T) {
	store, ctrl := newDragFixture(t)

	var phases []Phase
	ctrl.OnTransition(func(_, to Phase) { phases = append(phases, to) })

	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	move, ok, err := ctrl.Drop(domain.StageInterviewing)
	if err != nil || !ok {
		t.Fatalf("drop: ok=%t err=%v", ok, err)
	}
	if move.ItemID != "r1" || move.Origin != domain.StageContacted || move.Target != domain.StageInterviewing {
		t.Fatalf("unexpected pending move: %+v", move)
	}

	// Optimistic state is visible before the network responds.
	item, _ := store.Item("r1")
	if item.Stage != domain.StageInterviewing {
		t.Fatalf("stage = %q, want interviewing", item.Stage)
	}
	if ctrl.Phase() != PhaseAwaiting {
		t.Fatalf("phase = %q, want awaiting_confirmation", ctrl.Phase())
	}

	if res := ctrl.Resolve(move.Token, nil); res != ResolutionConfirmed {
		t.Fatalf("resolution = %q, want confirmed", res)
	}
	want := []Phase{PhaseDragging, PhaseAwaiting, PhaseIdle}
	if !reflect.DeepEqual(phases, want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
}

func TestResolveFailureRollsBack(t *testing.T) {
	store, ctrl := newDragFixture(t)
	before := store.SnapshotState()

	var phases []Phase
	ctrl.OnTransition(func(_, to Phase) { phases = append(phases, to) })

	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	move, ok, err := ctrl.Drop(domain.StageOffer)
	if err != nil || !ok {
		t.Fatalf("drop: ok=%t err=%v", ok, err)
	}

	failure := &GatewayError{Kind: FailureNotFound, Op: "move item", Err: errors.New("gone")}
	if res := ctrl.Resolve(move.Token, failure); res != ResolutionRolledBack {
		t.Fatalf("resolution = %q, want rolled_back", res)
	}

	// Rollback restores state bit-for-bit.
	if !reflect.DeepEqual(before, store.SnapshotState()) {
		t.Fatal("rollback did not restore pre-drag state")
	}
	want := []Phase{PhaseDragging, PhaseAwaiting, PhaseRollingBack, PhaseIdle}
	if !reflect.DeepEqual(phases, want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}

	// NotFound is non-retryable.
	if _, ok := ctrl.RetryableMove(); ok {
		t.Fatal("not-found failure must not be retryable")
	}
}

func TestTransientFailureKeepsRetry(t *testing.T) {
	store, ctrl := newDragFixture(t)

	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	move, _, err := ctrl.Drop(domain.StageResponded)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}

	failure := &GatewayError{Kind: FailureTransient, Op: "move item", Err: errors.New("timeout")}
	if res := ctrl.Resolve(move.Token, failure); res != ResolutionRolledBack {
		t.Fatalf("resolution = %q, want rolled_back", res)
	}
	if item, _ := store.Item("r1"); item.Stage != domain.StageContacted {
		t.Fatalf("stage after rollback = %q, want contacted", item.Stage)
	}

	retry, ok, err := ctrl.Retry()
	if err != nil || !ok {
		t.Fatalf("retry: ok=%t err=%v", ok, err)
	}
	if retry.Target != domain.StageResponded || retry.ItemID != "r1" {
		t.Fatalf("unexpected retry move: %+v", retry)
	}
	if retry.Token == move.Token {
		t.Fatal("retry must use a fresh token")
	}
	if item, _ := store.Item("r1"); item.Stage != domain.StageResponded {
		t.Fatalf("stage after retry apply = %q, want responded", item.Stage)
	}
	if res := ctrl.Resolve(retry.Token, nil); res != ResolutionConfirmed {
		t.Fatalf("retry resolution = %q, want confirmed", res)
	}
	if _, ok := ctrl.RetryableMove(); ok {
		t.Fatal("confirmed retry must clear the retryable move")
	}
}

func TestStaleSessionDiscarded(t *testing.T) {
	store, ctrl := newDragFixture(t)

	// Session 1: r1 -> responded, response delayed.
	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag 1: %v", err)
	}
	move1, _, err := ctrl.Drop(domain.StageResponded)
	if err != nil {
		t.Fatalf("drop 1: %v", err)
	}

	// Session 2 starts before session 1 settles and wins.
	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag 2: %v", err)
	}
	move2, _, err := ctrl.Drop(domain.StageInterviewing)
	if err != nil {
		t.Fatalf("drop 2: %v", err)
	}
	if res := ctrl.Resolve(move2.Token, nil); res != ResolutionConfirmed {
		t.Fatalf("resolution 2 = %q, want confirmed", res)
	}

	// Session 1's late response must be discarded, success or failure.
	if res := ctrl.Resolve(move1.Token, nil); res != ResolutionStale {
		t.Fatalf("stale success resolution = %q, want stale", res)
	}
	failure := &GatewayError{Kind: FailureTransient, Op: "move item"}
	if res := ctrl.Resolve(move1.Token, failure); res != ResolutionStale {
		t.Fatalf("stale failure resolution = %q, want stale", res)
	}

	if item, _ := store.Item("r1"); item.Stage != domain.StageInterviewing {
		t.Fatalf("final stage = %q, want interviewing", item.Stage)
	}
}

func TestStartDragGuards(t *testing.T) {
	_, ctrl := newDragFixture(t)

	if err := ctrl.StartDrag("missing"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if err := ctrl.StartDrag("r2"); !errors.Is(err, ErrDragActive) {
		t.Fatalf("expected ErrDragActive, got %v", err)
	}
	if err := ctrl.Hover(domain.StageOffer); err != nil {
		t.Fatalf("hover: %v", err)
	}
	if got := ctrl.Session().Hover; got != domain.StageOffer {
		t.Fatalf("hover stage = %q, want offer", got)
	}
}

func TestCancelLeavesStoreUntouched(t *testing.T) {
	store, ctrl := newDragFixture(t)
	before := store.SnapshotState()

	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	ctrl.Cancel()
	if ctrl.Phase() != PhaseIdle {
		t.Fatalf("phase = %q, want idle", ctrl.Phase())
	}
	if !reflect.DeepEqual(before, store.SnapshotState()) {
		t.Fatal("cancel mutated store")
	}

	// Cancel outside Dragging is a no-op: an in-flight move keeps settling.
	if err := ctrl.StartDrag("r1"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	move, _, err := ctrl.Drop(domain.StageOffer)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	ctrl.Cancel()
	if ctrl.Phase() != PhaseAwaiting {
		t.Fatalf("phase = %q, want awaiting_confirmation", ctrl.Phase())
	}
	if res := ctrl.Resolve(move.Token, nil); res != ResolutionConfirmed {
		t.Fatalf("resolution = %q, want confirmed", res)
	}
}

func TestHoverOutsideDragRejected(t *testing.T) {
	_, ctrl := newDragFixture(t)
	if err := ctrl.Hover(domain.StageOffer); !errors.Is(err, ErrNoDrag) {
		t.Fatalf("expected ErrNoDrag, got %v", err)
	}
	if _, _, err := ctrl.Drop(domain.StageOffer); !errors.Is(err, ErrNoDrag) {
		t.Fatalf("expected ErrNoDrag, got %v", err)
	}
}

func TestFailureKindClassification(t *testing.T) {
	transient := &GatewayError{Kind: FailureTransient, Op: "move item"}
	invalid := &GatewayError{Kind: FailureInvalidTransition, Op: "move item"}

	if !Retryable(transient) {
		t.Fatal("transient failure must be retryable")
	}
	if Retryable(invalid) {
		t.Fatal("invalid transition must not be retryable")
	}
	if kind := FailureKindOf(errors.New("plain")); kind != FailureTransient {
		t.Fatalf("unclassified error kind = %q, want transient", kind)
	}
}
