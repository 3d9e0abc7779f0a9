// Package client is a small HTTP client for the fleetops API. The CLI and the
// terminal dashboard both talk to the server through it.
package client

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

	"fleetops/internal/config"
	"fleetops/internal/corridor"
	"fleetops/internal/model"
)

// APIError is a non-2xx response. Problem bodies are decoded when present.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	msg := e.Title
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("%d %s", e.Status, msg)
}

type Client struct {
	BaseURL  string
	Token    string
	Operator string
	Role     string
	HTTP     *http.Client
}

// New builds a client from the client config section.
func New(cfg config.ClientConfig) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Token:   cfg.Token,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
}

// WebsocketURL returns the event websocket endpoint on the same host.
func (c *Client) WebsocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/events/ws"
	return u.String(), nil
}

// Header returns the auth headers sent with every request.
func (c *Client) Header() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	if c.Operator != "" {
		h.Set("X-Operator", c.Operator)
	}
	if c.Role != "" {
		h.Set("X-Role", c.Role)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header = c.Header()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var p struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); json.Unmarshal(b, &p) == nil {
			apiErr.Title, apiErr.Detail = p.Title, p.Detail
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Fleet returns the latest record of every train.
func (c *Client) Fleet(ctx context.Context) ([]model.TrainRecord, error) {
	var out []model.TrainRecord
	return out, c.do(ctx, http.MethodGet, "/api/trains", nil, nil, &out)
}

// FullTrains returns one snapshot filtered by query and status. Empty
// arguments are omitted.
func (c *Client) FullTrains(ctx context.Context, date, query, status string) ([]model.TrainRecord, error) {
	q := url.Values{}
	for k, v := range map[string]string{"date": date, "q": query, "status": status} {
		if v != "" {
			q.Set(k, v)
		}
	}
	var out []model.TrainRecord
	return out, c.do(ctx, http.MethodGet, "/api/full_trains", q, nil, &out)
}

func (c *Client) Dates(ctx context.Context) ([]string, error) {
	var out []string
	return out, c.do(ctx, http.MethodGet, "/api/dates", nil, nil, &out)
}

// Optimize plans the current (or latest) date.
func (c *Client) Optimize(ctx context.Context, w *model.Weights, req *model.Requirements) (model.OptimizeResult, error) {
	var out model.OptimizeResult
	err := c.do(ctx, http.MethodPost, "/api/optimize", nil, model.OptimizeRequest{Weights: w, Requirements: req}, &out)
	return out, err
}

func (c *Client) OptimizeDate(ctx context.Context, date string, w *model.Weights, req *model.Requirements) (model.OptimizeResult, error) {
	var out model.OptimizeResult
	err := c.do(ctx, http.MethodPost, "/api/optimize_date", nil, model.OptimizeRequest{Date: date, Weights: w, Requirements: req}, &out)
	return out, err
}

// OptimizeBatch returns the per-date outcome of a batch run.
func (c *Client) OptimizeBatch(ctx context.Context, dates []string, w *model.Weights, req *model.Requirements) (map[string]model.BatchItem, error) {
	out := map[string]model.BatchItem{}
	err := c.do(ctx, http.MethodPost, "/api/optimize_batch", nil, model.OptimizeRequest{Dates: dates, Weights: w, Requirements: req}, &out)
	return out, err
}

func (c *Client) Conflicts(ctx context.Context) ([]model.ConflictReport, error) {
	var out []model.ConflictReport
	return out, c.do(ctx, http.MethodGet, "/api/conflicts", nil, nil, &out)
}

func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	var out model.Stats
	return out, c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &out)
}

// Performance returns fleet KPIs for date, or for the latest date when empty.
func (c *Client) Performance(ctx context.Context, date string) (model.Performance, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var out model.Performance
	return out, c.do(ctx, http.MethodGet, "/api/performance", q, nil, &out)
}

func (c *Client) Audit(ctx context.Context, optType string, limit int) ([]model.AuditEntry, error) {
	q := url.Values{}
	if optType != "" {
		q.Set("type", optType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.AuditEntry
	return out, c.do(ctx, http.MethodGet, "/api/audit", q, nil, &out)
}

// LatestDraft returns the newest draft plan.
func (c *Client) LatestDraft(ctx context.Context) (model.Draft, error) {
	var out model.Draft
	return out, c.do(ctx, http.MethodGet, "/api/drafts/latest", nil, nil, &out)
}

func (c *Client) Drafts(ctx context.Context, status string) ([]model.Draft, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var out []model.Draft
	return out, c.do(ctx, http.MethodGet, "/api/drafts", q, nil, &out)
}

// Decide approves or rejects a pending draft.
func (c *Client) Decide(ctx context.Context, id string, approve bool, note string) (model.Draft, error) {
	action := "reject"
	if approve {
		action = "approve"
	}
	var out model.Draft
	body := map[string]string{"note": note}
	return out, c.do(ctx, http.MethodPost, "/api/drafts/"+url.PathEscape(id)+"/"+action, nil, body, &out)
}

func (c *Client) Timeline(ctx context.Context) (corridor.Timeline, error) {
	var out corridor.Timeline
	return out, c.do(ctx, http.MethodGet, "/api/route/timeline", nil, nil, &out)
}
