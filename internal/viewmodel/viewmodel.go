// Package viewmodel composes the pipeline store, drag controller, and
// timeline aggregator behind a closed set of commands dispatched through a
// single handler. It is render-framework agnostic: commands produce
// asynchronous effects, effects produce events, and events are applied
// back on the caller's event loop.
package viewmodel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quayside/reach/internal/domain"
	"github.com/quayside/reach/internal/pipeline"
	"github.com/quayside/reach/internal/timeline"
)

// Command is one user intent understood by the view model.
type Command interface{ isCommand() }

// StartDrag begins a drag gesture for one pipeline item.
type StartDrag struct{ ItemID string }

// Hover updates the drop-target highlight of an active drag.
type Hover struct{ Stage domain.Stage }

// Drop releases an active drag onto a stage.
type Drop struct{ Stage domain.Stage }

// CancelDrag aborts an active drag with no side effects.
type CancelDrag struct{}

// RetryMove re-issues the last transiently failed move.
type RetryMove struct{}

// RefreshPipeline reloads pipeline items from the gateway.
type RefreshPipeline struct{}

// RefreshActivities rebuilds the session activity log and stats from the
// gateway.
type RefreshActivities struct{}

// SetFilter changes the timeline's activity-type prefix filter.
type SetFilter struct{ Filter string }

// DismissBanner clears the failure banner.
type DismissBanner struct{}

func (StartDrag) isCommand()         {}
func (Hover) isCommand()             {}
func (Drop) isCommand()              {}
func (CancelDrag) isCommand()        {}
func (RetryMove) isCommand()         {}
func (RefreshPipeline) isCommand()   {}
func (RefreshActivities) isCommand() {}
func (SetFilter) isCommand()         {}
func (DismissBanner) isCommand()     {}

// Event is one asynchronous result applied back into the view model.
type Event interface{ isEvent() }

// PipelineLoaded carries the result of a pipeline refresh.
type PipelineLoaded struct {
	Items []domain.PipelineItem
	Err   error
}

// ActivitiesLoaded carries the result of an activity-log refresh.
type ActivitiesLoaded struct {
	Activities []domain.Activity
	Err        error
}

// CountsLoaded carries the server-side stats rollup.
type CountsLoaded struct {
	Counts domain.ActivityCounts
	Err    error
}

// MoveSettled carries the gateway's answer for one submitted move.
type MoveSettled struct {
	Token uint64
	Item  domain.PipelineItem
	Err   error
}

func (PipelineLoaded) isEvent()   {}
func (ActivitiesLoaded) isEvent() {}
func (CountsLoaded) isEvent()     {}
func (MoveSettled) isEvent()      {}

// Effect is one asynchronous operation produced by a dispatch. The caller
// runs it off the event loop and feeds the resulting event to Apply.
type Effect func(ctx context.Context) Event

// Banner is the user-facing failure surface. The store underneath is
// always consistent; the banner is messaging only.
type Banner struct {
	Kind      pipeline.FailureKind
	Message   string
	Retryable bool
}

// StageColumn is one rendered board column.
type StageColumn struct {
	Stage domain.Stage
	Items []domain.PipelineItem
}

// IDGenerator returns unique identifiers for synthesized activities.
type IDGenerator func() string

// Options configures a view model.
type Options struct {
	Clock         pipeline.Clock
	IDGen         IDGenerator
	Location      *time.Location
	TimelineLimit int
	DefaultFilter string
}

// ViewModel owns the session activity log and the two display modes
// derived from it and from the pipeline store.
type ViewModel struct {
	store   *pipeline.Store
	drag    *pipeline.Controller
	gateway pipeline.Gateway

	clock         pipeline.Clock
	idGen         IDGenerator
	loc           *time.Location
	timelineLimit int

	log          []domain.Activity
	serverCounts domain.ActivityCounts
	hasCounts    bool
	filter       string

	banner     *Banner
	feedNotice string
	loadNotice string

	// synthesized stage_changed echo per pending move token, retracted
	// from the log when the move rolls back
	synth map[uint64]string
}

// New constructs a new value for this package.
func New(gateway pipeline.Gateway, opts Options) *ViewModel {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := opts.IDGen
	if idGen == nil {
		idGen = uuid.NewString
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	limit := opts.TimelineLimit
	if limit <= 0 {
		limit = 100
	}
	filter := opts.DefaultFilter
	if filter == "" {
		filter = timeline.FilterAll
	}

	store := pipeline.NewStore(clock)
	return &ViewModel{
		store:         store,
		drag:          pipeline.NewController(store),
		gateway:       gateway,
		clock:         clock,
		idGen:         idGen,
		loc:           loc,
		timelineLimit: limit,
		filter:        filter,
		synth:         map[uint64]string{},
	}
}

// Store exposes the pipeline store for read access and subscriptions.
func (vm *ViewModel) Store() *pipeline.Store {
	return vm.store
}

// Phase returns the drag controller's phase.
func (vm *ViewModel) Phase() pipeline.Phase {
	return vm.drag.Phase()
}

// DragSession returns the active drag session.
func (vm *ViewModel) DragSession() pipeline.Session {
	return vm.drag.Session()
}

// CanRetry reports whether a transiently failed move is available to
// re-issue.
func (vm *ViewModel) CanRetry() bool {
	_, ok := vm.drag.RetryableMove()
	return ok
}

// Filter returns the active timeline filter.
func (vm *ViewModel) Filter() string {
	return vm.filter
}

// Banner returns the current failure banner, if any.
func (vm *ViewModel) Banner() (Banner, bool) {
	if vm.banner == nil {
		return Banner{}, false
	}
	return *vm.banner, true
}

// FeedNotice returns the fetch-error indicator shown over a kept-stale
// timeline, if any.
func (vm *ViewModel) FeedNotice() string {
	return vm.feedNotice
}

// LoadNotice returns the pipeline fetch-error indicator, if any.
func (vm *ViewModel) LoadNotice() string {
	return vm.loadNotice
}

// Board returns the kanban columns in funnel order.
func (vm *ViewModel) Board() []StageColumn {
	stages := domain.Stages()
	out := make([]StageColumn, 0, len(stages))
	for _, stage := range stages {
		out = append(out, StageColumn{
			Stage: stage,
			Items: vm.store.ItemsForStage(stage),
		})
	}
	return out
}

// Timeline derives the filtered, date-grouped feed from the session log.
func (vm *ViewModel) Timeline() []timeline.Group {
	return timeline.GroupByDay(timeline.Filter(vm.log, vm.filter), vm.loc)
}

// Activities returns the session activity log.
func (vm *ViewModel) Activities() []domain.Activity {
	return append([]domain.Activity(nil), vm.log...)
}

// Stats returns the local rollup over the unfiltered session log.
func (vm *ViewModel) Stats() domain.ActivityCounts {
	return timeline.CountsByCategory(vm.log)
}

// ServerCounts returns the all-time stats reported by the gateway.
func (vm *ViewModel) ServerCounts() (domain.ActivityCounts, bool) {
	return vm.serverCounts, vm.hasCounts
}

// Dispatch routes one command, mutating local state synchronously and
// returning any asynchronous effects. Gesture misuse (hover without a
// drag, a second concurrent drag) is absorbed: the closed command set is
// driven by UI affordances that prevent it, and the store stays untouched
// either way.
func (vm *ViewModel) Dispatch(cmd Command) []Effect {
	switch cmd := cmd.(type) {
	case StartDrag:
		_ = vm.drag.StartDrag(cmd.ItemID)
		return nil

	case Hover:
		_ = vm.drag.Hover(cmd.Stage)
		return nil

	case Drop:
		move, ok, err := vm.drag.Drop(cmd.Stage)
		if err != nil || !ok {
			return nil
		}
		return vm.submitMove(move)

	case CancelDrag:
		vm.drag.Cancel()
		return nil

	case RetryMove:
		move, ok, err := vm.drag.Retry()
		if err != nil || !ok {
			return nil
		}
		vm.banner = nil
		return vm.submitMove(move)

	case RefreshPipeline:
		return []Effect{func(ctx context.Context) Event {
			items, err := vm.gateway.ListPipelineItems(ctx)
			return PipelineLoaded{Items: items, Err: err}
		}}

	case RefreshActivities:
		// Fetched unfiltered so the stats rollup always sees the full
		// sequence; the prefix filter is applied at derivation time.
		limit := vm.timelineLimit
		return []Effect{
			func(ctx context.Context) Event {
				activities, err := vm.gateway.ListActivities(ctx, limit, "")
				return ActivitiesLoaded{Activities: activities, Err: err}
			},
			func(ctx context.Context) Event {
				counts, err := vm.gateway.ListActivityCounts(ctx)
				return CountsLoaded{Counts: counts, Err: err}
			},
		}

	case SetFilter:
		vm.filter = cmd.Filter
		if vm.filter == "" {
			vm.filter = timeline.FilterAll
		}
		return nil

	case DismissBanner:
		vm.banner = nil
		return nil

	default:
		return nil
	}
}

// Apply absorbs one asynchronous event. All gateway failures stop here:
// callers only ever observe a consistent store plus an optional banner.
func (vm *ViewModel) Apply(ev Event) {
	switch ev := ev.(type) {
	case PipelineLoaded:
		if ev.Err != nil {
			vm.loadNotice = "pipeline refresh failed: " + ev.Err.Error()
			return
		}
		vm.loadNotice = ""
		vm.store.Load(ev.Items)

	case ActivitiesLoaded:
		if ev.Err != nil {
			// Keep the previous timeline; show a fetch indicator instead
			// of a partial aggregation.
			vm.feedNotice = "activity refresh failed: " + ev.Err.Error()
			return
		}
		vm.feedNotice = ""
		vm.log = append([]domain.Activity(nil), ev.Activities...)
		vm.synth = map[uint64]string{}

	case CountsLoaded:
		if ev.Err != nil {
			return
		}
		vm.serverCounts = ev.Counts
		vm.hasCounts = true

	case MoveSettled:
		switch vm.drag.Resolve(ev.Token, ev.Err) {
		case pipeline.ResolutionConfirmed:
			delete(vm.synth, ev.Token)
		case pipeline.ResolutionRolledBack:
			vm.retractEcho(ev.Token)
			vm.banner = bannerFor(ev.Err)
		case pipeline.ResolutionStale:
			// Superseded session; silently dropped. The echo stays until
			// the next refresh rebuilds the log from server truth.
			delete(vm.synth, ev.Token)
		}
	}
}

// submitMove synthesizes the local stage_changed echo and returns the
// gateway effect for one pending move.
func (vm *ViewModel) submitMove(move pipeline.PendingMove) []Effect {
	if item, ok := vm.store.Item(move.ItemID); ok {
		echo, err := domain.NewStageChange(vm.idGen(), item, move.Origin, move.Target, vm.clock())
		if err == nil {
			vm.log = append([]domain.Activity{echo}, vm.log...)
			vm.synth[move.Token] = echo.ID
		}
	}

	position := len(vm.store.ItemsForStage(move.Target)) - 1
	if position < 0 {
		position = 0
	}
	return []Effect{func(ctx context.Context) Event {
		item, err := vm.gateway.MoveItem(ctx, move.ItemID, move.Target, position)
		return MoveSettled{Token: move.Token, Item: item, Err: err}
	}}
}

// retractEcho removes the synthesized stage_changed entry for one rolled
// back move.
func (vm *ViewModel) retractEcho(token uint64) {
	id, ok := vm.synth[token]
	if !ok {
		return
	}
	delete(vm.synth, token)
	out := vm.log[:0]
	for _, activity := range vm.log {
		if activity.ID != id {
			out = append(out, activity)
		}
	}
	vm.log = out
}

// bannerFor maps one gateway failure onto user-facing messaging. The
// distinction is messaging only; rollback behavior is identical.
func bannerFor(err error) *Banner {
	kind := pipeline.FailureKindOf(err)
	banner := &Banner{Kind: kind, Retryable: kind == pipeline.FailureTransient}
	switch kind {
	case pipeline.FailureNotFound:
		banner.Message = "that contact is no longer available"
	case pipeline.FailureInvalidTransition:
		banner.Message = "the server rejected that move"
	default:
		banner.Message = "move failed due to a network problem; retry is safe"
	}
	return banner
}
