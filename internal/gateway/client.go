package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/pkg/config"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
	"github.com/noah-isme/wms-audit-api/pkg/middleware/requestid"
)

const (
	headerUserID      = "user_id"
	headerWarehouseID = "warehouse_id"
	maxErrorBody      = 512
)

// Client is the shared HTTP transport to the upstream WMS.
type Client struct {
	baseURL         string
	userID          string
	warehouseID     string
	retryMaxElapsed time.Duration
	httpClient      *http.Client
	logger          *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a Client from upstream configuration.
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsHost
	}
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		userID:          cfg.UserID,
		warehouseID:     cfg.WarehouseID,
		retryMaxElapsed: cfg.RetryMaxElapsed,
		httpClient:      &http.Client{Timeout: timeout, Transport: transport},
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope covers both upstream response shapes: {status,message,data} and {success,message,...}.
type envelope struct {
	Status  string          `json:"status"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// idempotent requests are retried on transient failures.
	idempotent bool
}

// do performs the request and decodes the envelope payload into dest (which may be nil).
func (c *Client) do(ctx context.Context, req request, dest interface{}) error {
	var payload []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode upstream request")
		}
		payload = encoded
	}

	var raw []byte
	op := func() error {
		body, err := c.roundTrip(ctx, req, payload)
		if err != nil {
			if req.idempotent && isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		raw = body
		return nil
	}

	var err error
	if req.idempotent {
		err = backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx))
	} else {
		err = op()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
	}
	if err != nil {
		c.logger.Warn("upstream request failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err),
		)
		return err
	}

	return decodeEnvelope(raw, dest)
}

func (c *Client) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = c.retryMaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 5 * time.Second
	}
	return bo
}

func (c *Client) roundTrip(ctx context.Context, req request, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build upstream request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	userID, warehouseID := c.userID, c.warehouseID
	if actor, ok := models.ActorFromContext(ctx); ok {
		if actor.UserID != "" {
			userID = actor.UserID
		}
		if actor.WarehouseID != "" {
			warehouseID = actor.WarehouseID
		}
	}
	httpReq.Header.Set(headerUserID, userID)
	httpReq.Header.Set(headerWarehouseID, warehouseID)
	if reqID := requestid.FromContext(ctx); reqID != "" {
		httpReq.Header.Set(requestid.Header, reqID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "upstream request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to read upstream response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeEnvelope(raw []byte, dest interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "invalid upstream response")
	}
	if strings.EqualFold(env.Status, "error") || (env.Success != nil && !*env.Success) {
		message := env.Message
		if message == "" {
			message = "upstream rejected the request"
		}
		return appErrors.Clone(appErrors.ErrConflict, message)
	}
	if dest == nil {
		return nil
	}
	data := raw
	if len(env.Data) > 0 && string(env.Data) != "null" {
		data = env.Data
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "invalid upstream payload")
	}
	return nil
}

func statusError(status int, body []byte) *appErrors.Error {
	message := strings.TrimSpace(string(body))
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		message = env.Message
	}
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody]
	}
	cause := fmt.Errorf("upstream status %d: %s", status, message)

	switch {
	case status == http.StatusNotFound:
		return appErrors.Wrap(cause, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "resource not found upstream")
	case status == http.StatusConflict:
		return appErrors.Wrap(cause, appErrors.ErrIllegalState.Code, appErrors.ErrIllegalState.Status, orDefault(message, appErrors.ErrIllegalState.Message))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return appErrors.Wrap(cause, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, orDefault(message, appErrors.ErrValidation.Message))
	default:
		return appErrors.Wrap(cause, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
}

// isTransient reports whether a retry may succeed: transport failures, 5xx and 429 answers.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return appErrors.IsCode(err, appErrors.ErrUpstream.Code)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func notFound(what string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
}
