package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// FlagClient talks to the upstream flag endpoints.
type FlagClient struct {
	client *Client
}

// NewFlagClient constructs a FlagClient.
func NewFlagClient(client *Client) *FlagClient {
	return &FlagClient{client: client}
}

type flagsPayload struct {
	Flags []models.Flag `json:"flags"`
}

// FetchFlags lists flags. The filter is re-applied locally since the upstream only
// understands part of it.
func (c *FlagClient) FetchFlags(ctx context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	var payload flagsPayload
	err := c.client.do(ctx, request{
		method:     http.MethodGet,
		path:       "/audit/flags",
		query:      flagQuery(filter),
		idempotent: true,
	}, &payload)
	if err != nil {
		return models.FlagPage{}, err
	}

	flags := make([]models.Flag, 0, len(payload.Flags))
	for _, flag := range payload.Flags {
		if filter.Matches(flag) {
			flags = append(flags, flag)
		}
	}
	return models.FlagPage{Flags: flags}, nil
}

// RejectFlag posts a rejection.
func (c *FlagClient) RejectFlag(ctx context.Context, cmd models.RejectionCommand) error {
	return c.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/audit/flags/reject",
		body:   map[string]interface{}{"flagId": cmd.FlagID, "reason": cmd.Reason},
	}, nil)
}

// ResolveFlag posts a resolution. The payload fields are flattened next to flagId.
func (c *FlagClient) ResolveFlag(ctx context.Context, cmd models.ResolutionCommand) error {
	body, err := flattenResolution(cmd)
	if err != nil {
		return err
	}
	return c.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/audit/flags/resolve",
		body:   body,
	}, nil)
}

// CheckRecoveryGon asks how many units of an excess flag match a pending goods outward note.
func (c *FlagClient) CheckRecoveryGon(ctx context.Context, flagID int64) (int, error) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	err := c.client.do(ctx, request{
		method:     http.MethodPost,
		path:       "/audit/recovery-gon",
		body:       map[string]interface{}{"flag_id": flagID},
		idempotent: true,
	}, &payload)
	if err != nil {
		return 0, err
	}
	if payload.Quantity < 0 {
		return 0, nil
	}
	return payload.Quantity, nil
}

func flagQuery(filter models.FlagFilter) url.Values {
	q := url.Values{}
	if filter.Type != "" && string(filter.Type) != models.FlagTypeAll {
		q.Set("type", string(filter.Type))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Identifier != "" {
		q.Set("crateId", filter.Identifier)
	}
	start, end := filter.TimeStart, filter.TimeEnd
	if filter.Date != "" {
		if day, err := time.Parse(models.DateLayout, filter.Date); err == nil {
			dayStart := day.Unix()
			dayEnd := day.Add(24*time.Hour).Unix() - 1
			if start == nil || *start < dayStart {
				start = &dayStart
			}
			if end == nil || *end > dayEnd {
				end = &dayEnd
			}
		}
	}
	if start != nil {
		q.Set("timeStart", strconv.FormatInt(*start, 10))
	}
	if end != nil {
		q.Set("timeEnd", strconv.FormatInt(*end, 10))
	}
	return q
}

func flattenResolution(cmd models.ResolutionCommand) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	if cmd.Payload != nil {
		raw, err := json.Marshal(cmd.Payload)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode resolution")
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode resolution")
		}
	}
	body["flagId"] = cmd.FlagID
	return body, nil
}
