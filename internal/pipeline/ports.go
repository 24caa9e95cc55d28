package pipeline

import (
	"context"

	"github.com/quayside/reach/internal/domain"
)

// Gateway is the remote system of record for pipeline state and activities.
//
// MoveItem must be idempotent server-side: issuing the same (item, stage)
// move twice settles to the same state, which is what makes a client-side
// retry after an ambiguous failure safe. Implementations report failures
// through GatewayError so callers can distinguish retryable from
// non-retryable outcomes.
type Gateway interface {
	ListPipelineItems(ctx context.Context) ([]domain.PipelineItem, error)
	MoveItem(ctx context.Context, itemID string, stage domain.Stage, position int) (domain.PipelineItem, error)
	ListActivities(ctx context.Context, limit int, typeFilter string) ([]domain.Activity, error)
	ListActivityCounts(ctx context.Context) (domain.ActivityCounts, error)
}
