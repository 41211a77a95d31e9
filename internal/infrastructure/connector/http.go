package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum accepted response body (10MB)
const maxResponseSize = 10 * 1024 * 1024

// defaultTimeout applies when a backend does not configure one
const defaultTimeout = 30 * time.Second

// CallObserver receives the outcome of every remote call
type CallObserver interface {
	ObserveCall(ctx context.Context, backendID string, entityType channel.EntityType, op string, d time.Duration, err error)
}

// HTTPConfig configures a REST backend client
type HTTPConfig struct {
	BackendID     string
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// HTTPClient talks JSON to one REST backend. Calls are rate limited per
// backend and share one traced transport.
type HTTPClient struct {
	backendID  string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   CallObserver
}

// NewHTTPClient creates a client. A zero RatePerSecond disables limiting.
func NewHTTPClient(cfg HTTPConfig, observer CallObserver) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: backend %s has no base url", channel.ErrBackendNotConfigured, cfg.BackendID)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: backend %s base url: %v", channel.ErrBackendNotConfigured, cfg.BackendID, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &HTTPClient{
		backendID: cfg.BackendID,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  limiter,
		observer: observer,
	}, nil
}

// Adapter returns the adapter of one entity type
func (c *HTTPClient) Adapter(entityType channel.EntityType) *HTTPAdapter {
	return &HTTPAdapter{client: c, entityType: entityType}
}

// HTTPAdapter implements channel.Adapter over the REST resource of one
// entity type: GET/POST {base}/{entity}, GET/PUT/DELETE {base}/{entity}/{id}
// and POST {base}/{entity}/batch. Filtering happens client side.
type HTTPAdapter struct {
	client     *HTTPClient
	entityType channel.EntityType
}

type listResponse struct {
	Records []channel.Record `json:"records"`
}

type createResponse struct {
	ID json.RawMessage `json:"id"`
}

type batchRequest struct {
	Items []channel.Record `json:"items"`
}

// Search returns the ids of matching records
func (a *HTTPAdapter) Search(ctx context.Context, domain channel.Domain) ([]string, error) {
	records, err := a.SearchRead(ctx, domain)
	if err != nil {
		return nil, err
	}
	return channel.IDs(records), nil
}

// SearchRead lists the resource and filters the result
func (a *HTTPAdapter) SearchRead(ctx context.Context, domain channel.Domain) ([]channel.Record, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	var resp listResponse
	if _, err := a.call(ctx, "search_read", http.MethodGet, a.path(), nil, &resp); err != nil {
		return nil, err
	}
	return domain.Filter(resp.Records)
}

// Read fetches one record
func (a *HTTPAdapter) Read(ctx context.Context, id string) (channel.Record, error) {
	var record channel.Record
	status, err := a.call(ctx, "read", http.MethodGet, a.path(id), nil, &record)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: external id %q: %v", channel.ErrNotFound, id, err)
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = channel.Record{}
	}
	if record.ID() == "" {
		record["id"] = id
	}
	return record, nil
}

// Create posts a new record and returns its remote id
func (a *HTTPAdapter) Create(ctx context.Context, values channel.Record) (string, error) {
	var resp createResponse
	if _, err := a.call(ctx, "create", http.MethodPost, a.path(), values, &resp); err != nil {
		return "", err
	}
	id := decodeID(resp.ID)
	if id == "" {
		return "", channel.NewChannelError("create response carries no id", string(resp.ID), nil)
	}
	return id, nil
}

// Write replaces the fields given in values
func (a *HTTPAdapter) Write(ctx context.Context, id string, values channel.Record) (bool, error) {
	status, err := a.call(ctx, "write", http.MethodPut, a.path(id), values, nil)
	if status == http.StatusNotFound {
		return false, fmt.Errorf("%w: external id %q: %v", channel.ErrNotFound, id, err)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a record. An already missing record reports false.
func (a *HTTPAdapter) Delete(ctx context.Context, id string) (bool, error) {
	status, err := a.call(ctx, "delete", http.MethodDelete, a.path(id), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WriteMany posts records to the batch endpoint in one call
func (a *HTTPAdapter) WriteMany(ctx context.Context, records []channel.Record) error {
	_, err := a.call(ctx, "write_many", http.MethodPost, a.path("batch"), batchRequest{Items: records}, nil)
	return err
}

func (a *HTTPAdapter) path(parts ...string) string {
	p := a.client.baseURL + "/" + url.PathEscape(string(a.entityType))
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// call performs one request and decodes the response into out. The HTTP
// status is returned alongside the error so callers can map 404.
func (a *HTTPAdapter) call(ctx context.Context, op, method, endpoint string, body, out any) (status int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "channel."+op,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("backend.id", a.client.backendID),
		telemetry.WithAttribute("entity.type", string(a.entityType)),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
		span.End()
		if a.client.observer != nil {
			a.client.observer.ObserveCall(ctx, a.client.backendID, a.entityType, op, time.Since(start), err)
		}
	}()

	if err := a.client.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode request: %v", channel.ErrInvalidInput, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", channel.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.client.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.client.apiKey)
	}

	resp, err := a.client.httpClient.Do(req)
	if err != nil {
		return 0, channel.NewChannelError(fmt.Sprintf("%s %s", method, endpoint), "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, channel.NewChannelError("read response body", "", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, statusError(resp.StatusCode, raw)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			ce := channel.NewChannelError("decode response", string(raw), err)
			ce.StatusCode = resp.StatusCode
			ce.Permanent = true
			return resp.StatusCode, ce
		}
	}
	return resp.StatusCode, nil
}

// statusError converts an error response. Client errors are permanent except
// timeouts and throttling.
func statusError(status int, raw []byte) *channel.ChannelError {
	ce := channel.NewChannelError(http.StatusText(status), string(raw), nil)
	ce.StatusCode = status
	ce.Permanent = status < http.StatusInternalServerError &&
		status != http.StatusRequestTimeout &&
		status != http.StatusTooManyRequests
	return ce
}

// decodeID accepts string and numeric ids
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var (
	_ channel.Adapter    = (*HTTPAdapter)(nil)
	_ channel.BulkWriter = (*HTTPAdapter)(nil)
)
