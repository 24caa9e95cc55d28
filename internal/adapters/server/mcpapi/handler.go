// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/quayside/reach/internal/adapters/server/common"
	"github.com/quayside/reach/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter over the pipeline service.
func NewHandler(cfg Config, service common.PipelineService) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerPipelineTools(mcpSrv, service)
	registerActivityTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "reach"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// stageNames returns the funnel stage values for tool enums.
func stageNames() []string {
	stages := domain.Stages()
	out := make([]string, 0, len(stages))
	for _, stage := range stages {
		out = append(out, string(stage))
	}
	return out
}

// registerPipelineTools registers the `reach.list_pipeline_items` and
// `reach.move_item` tools.
func registerPipelineTools(srv *mcpserver.MCPServer, service common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"reach.list_pipeline_items",
			mcp.WithDescription("List every pipeline item ordered by stage and board position."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := service.ListPipelineItems(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.PipelineItemsEnvelope{
				Items: common.ItemsFromDomain(items),
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_pipeline_items result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"reach.move_item",
			mcp.WithDescription("Move one pipeline item to a funnel stage. Moving to the current stage is a no-op."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Pipeline item identifier")),
			mcp.WithString("stage", mcp.Required(), mcp.Description("Target stage"), mcp.Enum(stageNames()...)),
			mcp.WithNumber("position", mcp.Description("Board position inside the target stage (defaults to the tail)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stageRaw, err := req.RequireString("stage")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stage, err := domain.ParseStage(stageRaw)
			if err != nil {
				return toolResultFromError(err), nil
			}
			position := req.GetInt("position", -1)

			item, err := service.MoveItem(ctx, itemID, stage, position)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.ItemFromDomain(item))
			if err != nil {
				return nil, fmt.Errorf("encode move_item result: %w", err)
			}
			return result, nil
		},
	)
}

// registerActivityTools registers the `reach.list_activities` and
// `reach.activity_counts` tools.
func registerActivityTools(srv *mcpserver.MCPServer, service common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"reach.list_activities",
			mcp.WithDescription("List the newest activities, optionally filtered by a type prefix."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of activities to return")),
			mcp.WithString("type", mcp.Description("Activity type prefix, e.g. \"message\"")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			activities, err := service.ListActivities(ctx, req.GetInt("limit", 0), req.GetString("type", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.ActivitiesEnvelope{
				Activities: common.ActivitiesFromDomain(activities),
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_activities result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"reach.activity_counts",
			mcp.WithDescription("Return the all-time activity stats rollup."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			counts, err := service.ActivityCounts(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.CountsFromDomain(counts))
			if err != nil {
				return nil, fmt.Errorf("encode activity_counts result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, domain.ErrItemNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrInvalidStage):
		return mcp.NewToolResultError("invalid_transition: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
