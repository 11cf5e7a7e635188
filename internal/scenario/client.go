package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrRemote is returned when the server answers with a non-2xx status.
var ErrRemote = errors.New("remote run failed")

// RemoteError is the server's error body.
type RemoteError struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  []waterfall.FieldError `json:"fields,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// RemoteSummary is the part of a server response the CLI reports on.
type RemoteSummary struct {
	RunID          string          `json:"runId"`
	Mode           types.ModeKind  `json:"mode"`
	Granularity    string          `json:"granularity"`
	Fingerprint    string          `json:"fingerprint"`
	ProjectSummary RemoteProject   `json:"projectSummary"`
	Partners       []RemotePartner `json:"partnerSummaries"`
	Periods        []any           `json:"periodDistributions"`
	Notices        []model.Notice  `json:"notices"`
}

// RemoteProject mirrors the project summary numbers.
type RemoteProject struct {
	TotalContributed float64  `json:"totalContributed"`
	TotalDistributed float64  `json:"totalDistributed"`
	IRR              *float64 `json:"irr"`
	EquityMultiple   float64  `json:"equityMultiple"`
}

// RemotePartner mirrors one partner summary.
type RemotePartner struct {
	PartnerType      types.PartnerType `json:"partnerType"`
	TotalContributed float64           `json:"totalContributed"`
	TotalDistributed float64           `json:"totalDistributed"`
	IRR              *float64          `json:"irr"`
	EquityMultiple   float64           `json:"equityMultiple"`
}

// Client submits scenarios to a running waterfall server.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.Get().Named("scenario-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitHealthy polls /healthz with exponential backoff until it answers 200,
// ctx ends or retries are exhausted.
func (c *Client) WaitHealthy(ctx context.Context, retries uint64) error {
	check := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug(ctx, "health check failed", logger.Error(err))
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health status %d", resp.StatusCode)
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(check, b); err != nil {
		return fmt.Errorf("server at %s not healthy: %w", c.baseURL, err)
	}
	return nil
}

type napkinBody struct {
	ProjectID     string                      `json:"projectId,omitempty"`
	Napkin        waterfall.NapkinInput       `json:"napkin"`
	Periods       []model.PeriodCashFlow      `json:"periods"`
	Contributions []model.PartnerContribution `json:"contributions"`
	PeakEquity    decimal.Decimal             `json:"peakEquity"`
}

type napkinReply struct {
	Result RemoteSummary `json:"result"`
}

// Submit runs sc on the server. Napkin scenarios go to /waterfall/napkin,
// everything else to /waterfall/run.
func (c *Client) Submit(ctx context.Context, sc Scenario) (*RemoteSummary, error) {
	query := ""
	if sc.Granularity != "" {
		query = "?granularity=" + string(sc.Granularity)
	}
	start := time.Now()
	defer func() {
		c.log.Debug(ctx, "scenario submitted", logger.String("scenario", sc.Name), logger.Duration("took", time.Since(start)))
	}()

	if sc.Napkin != nil {
		body := napkinBody{
			ProjectID:     sc.Input.ProjectID,
			Napkin:        *sc.Napkin,
			Periods:       sc.Input.Periods,
			Contributions: sc.Input.Contributions,
			PeakEquity:    sc.Input.PeakEquity,
		}
		var reply napkinReply
		if err := c.post(ctx, "/waterfall/napkin"+query, body, &reply); err != nil {
			return nil, err
		}
		return &reply.Result, nil
	}
	var out RemoteSummary
	if err := c.post(ctx, "/waterfall/run"+query, sc.Input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RemoteError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, rerr)
		return rerr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
