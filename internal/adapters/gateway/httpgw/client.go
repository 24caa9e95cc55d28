// Package httpgw implements the remote pipeline gateway over the REST API.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quayside/reach/internal/adapters/server/common"
	"github.com/quayside/reach/internal/domain"
	"github.com/quayside/reach/internal/pipeline"
)

// defaultTimeout bounds each gateway request when no timeout is configured.
const defaultTimeout = 10 * time.Second

// maxResponseBodyBytes limits decoded response payload size.
const maxResponseBodyBytes int64 = 4 << 20

// Config holds client construction options.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8587". The
	// versioned API prefix is appended by the client.
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

// Client is the pipeline gateway backed by the HTTP API. Every failure is
// returned as a *pipeline.GatewayError so callers can classify it without
// inspecting transport details.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ pipeline.Gateway = (*Client)(nil)

// New constructs one HTTP gateway client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("httpgw: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("httpgw: parse base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base + "/api/v1",
		http:    httpClient,
	}, nil
}

// ListPipelineItems fetches every pipeline item.
func (c *Client) ListPipelineItems(ctx context.Context) ([]domain.PipelineItem, error) {
	const op = "list pipeline items"

	var envelope common.PipelineItemsEnvelope
	if err := c.do(ctx, op, http.MethodGet, "/pipeline", nil, &envelope); err != nil {
		return nil, err
	}
	items := make([]domain.PipelineItem, 0, len(envelope.Items))
	for _, wire := range envelope.Items {
		item, err := wire.ToDomain()
		if err != nil {
			return nil, transientError(op, fmt.Errorf("decode item %q: %w", wire.ID, err))
		}
		items = append(items, item)
	}
	return items, nil
}

// MoveItem submits one stage move and returns the server's updated item.
func (c *Client) MoveItem(ctx context.Context, itemID string, stage domain.Stage, position int) (domain.PipelineItem, error) {
	const op = "move item"

	body := common.MoveItemRequest{Stage: string(stage), Position: position}
	var wire common.PipelineItem
	path := "/pipeline/items/" + url.PathEscape(itemID) + "/move"
	if err := c.do(ctx, op, http.MethodPost, path, body, &wire); err != nil {
		return domain.PipelineItem{}, err
	}
	item, err := wire.ToDomain()
	if err != nil {
		return domain.PipelineItem{}, transientError(op, fmt.Errorf("decode item %q: %w", wire.ID, err))
	}
	return item, nil
}

// ListActivities fetches the newest activities, optionally filtered by a
// type prefix.
func (c *Client) ListActivities(ctx context.Context, limit int, typeFilter string) ([]domain.Activity, error) {
	const op = "list activities"

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if typeFilter != "" {
		query.Set("type", typeFilter)
	}
	path := "/activities"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var envelope common.ActivitiesEnvelope
	if err := c.do(ctx, op, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	activities := make([]domain.Activity, 0, len(envelope.Activities))
	for _, wire := range envelope.Activities {
		activity, err := wire.ToDomain()
		if err != nil {
			return nil, transientError(op, fmt.Errorf("decode activity %q: %w", wire.ID, err))
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

// ListActivityCounts fetches the all-time stats rollup.
func (c *Client) ListActivityCounts(ctx context.Context) (domain.ActivityCounts, error) {
	const op = "list activity counts"

	var wire common.ActivityCounts
	if err := c.do(ctx, op, http.MethodGet, "/activities/counts", nil, &wire); err != nil {
		return domain.ActivityCounts{}, err
	}
	return wire.ToDomain(), nil
}

// do issues one request and decodes the success payload into out. Non-2xx
// responses and transport failures are mapped onto gateway failure kinds.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return transientError(op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return transientError(op, fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transientError(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return transientError(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return transientError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError classifies one non-2xx response. 404 means the resource is
// gone, other 4xx mean the server rejected the request, and everything else
// is treated as transient so a retry stays safe.
func statusError(op string, statusCode int, payload []byte) error {
	kind := pipeline.FailureTransient
	switch {
	case statusCode == http.StatusNotFound:
		kind = pipeline.FailureNotFound
	case statusCode >= 400 && statusCode < 500:
		kind = pipeline.FailureInvalidTransition
	}
	return &pipeline.GatewayError{
		Kind: kind,
		Op:   op,
		Err:  fmt.Errorf("status %d: %s", statusCode, serverMessage(payload)),
	}
}

// serverMessage extracts the structured error message from one failure
// payload, falling back to a trimmed raw body.
func serverMessage(payload []byte) string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return "no response body"
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:120]
	}
	return trimmed
}

func transientError(op string, err error) error {
	return &pipeline.GatewayError{Kind: pipeline.FailureTransient, Op: op, Err: err}
}
