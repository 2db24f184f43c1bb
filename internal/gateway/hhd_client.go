package gateway

import (
	"context"
	"net/http"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// HHDClient talks to the upstream work task and work order endpoints.
type HHDClient struct {
	client *Client
}

// NewHHDClient constructs an HHDClient.
func NewHHDClient(client *Client) *HHDClient {
	return &HHDClient{client: client}
}

// FetchWorkTask returns the task assigned to the auditor.
func (c *HHDClient) FetchWorkTask(ctx context.Context, auditorID string) (*models.WorkTask, error) {
	ctx = withUser(ctx, auditorID)
	var task models.WorkTask
	if err := c.client.do(ctx, request{
		method:     http.MethodGet,
		path:       "/audit/work-task",
		idempotent: true,
	}, &task); err != nil {
		return nil, err
	}
	if task.AuditorID == "" {
		task.AuditorID = auditorID
	}
	return &task, nil
}

// StartTask marks the task as started.
func (c *HHDClient) StartTask(ctx context.Context, workTaskID string) error {
	return c.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/audit/work-task/start",
		body:   map[string]string{"work_task_id": workTaskID},
	}, nil)
}

// ScanBox returns the master data for a box on the rack's work order.
func (c *HHDClient) ScanBox(ctx context.Context, workTaskID, rackID, boxCode string) (*models.BoxDetails, error) {
	var payload struct {
		BoxDetails *models.BoxDetails `json:"boxDetails"`
	}
	if err := c.client.do(ctx, request{
		method:     http.MethodPost,
		path:       "/audit/work-order/box/scan",
		body:       map[string]string{"workTaskId": workTaskID, "workOrderId": rackID, "boxCode": boxCode},
		idempotent: true,
	}, &payload); err != nil {
		return nil, err
	}
	if payload.BoxDetails == nil {
		return nil, notFound("box " + boxCode)
	}
	return payload.BoxDetails, nil
}

// ConfirmBox submits a box audit.
func (c *HHDClient) ConfirmBox(ctx context.Context, confirmation models.BoxConfirmation) error {
	return c.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/audit/work-order/box/confirm",
		body:   confirmation,
	}, nil)
}

// CompleteRack submits the rack's work order.
func (c *HHDClient) CompleteRack(ctx context.Context, workTaskID, rackID string) error {
	return c.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/audit/work-order/submit",
		body:   map[string]string{"workTaskId": workTaskID, "workOrderId": rackID},
	}, nil)
}

func withUser(ctx context.Context, userID string) context.Context {
	actor, _ := models.ActorFromContext(ctx)
	if actor.UserID == "" {
		actor.UserID = userID
	}
	return models.ContextWithActor(ctx, actor)
}
