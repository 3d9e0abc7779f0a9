package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetops/internal/api"
	"fleetops/internal/config"
	"fleetops/internal/model"
)

// newClient runs a full API server seeded with generated data.
func newClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Seed.Generate = true
	s, err := api.NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	c := New(config.ClientConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	c.Operator, c.Role = "ops", "planner"
	return c
}

func TestReadEndpoints(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	dates, err := c.Dates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 7)

	fleet, err := c.Fleet(ctx)
	require.NoError(t, err)
	require.Len(t, fleet, 25)

	recs, err := c.FullTrains(ctx, dates[0], "KMRL-T0", "")
	require.NoError(t, err)
	require.Len(t, recs, 9)

	_, err = c.FullTrains(ctx, "", "", "parked")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)

	perf, err := c.Performance(ctx, dates[0])
	require.NoError(t, err)
	require.Equal(t, 25, perf.TotalTrains)

	tl, err := c.Timeline(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tl.Stops)
}

func TestOptimizeAndDecide(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	res, err := c.OptimizeDate(ctx, "2025-09-18", nil, &model.Requirements{Service: 10, Standby: 3})
	require.NoError(t, err)
	require.Equal(t, "2025-09-18", res.Date)
	require.NotEmpty(t, res.DraftID)
	require.Len(t, res.Plan, 25)

	d, err := c.LatestDraft(ctx)
	require.NoError(t, err)
	require.Equal(t, res.DraftID, d.ID)

	d, err = c.Decide(ctx, d.ID, false, "short on standby")
	require.NoError(t, err)
	require.Equal(t, model.DraftRejected, d.Status)
	require.Equal(t, "ops", d.DecidedBy)

	_, err = c.Decide(ctx, d.ID, true, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)

	rejected, err := c.Drafts(ctx, model.DraftRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)

	_, err = c.Optimize(ctx, &model.Weights{Punctuality: 50, Branding: 90}, nil)
	require.NoError(t, err)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalOptimizations)

	entries, err := c.Audit(ctx, model.OptDateSpecific, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = c.Conflicts(ctx)
	require.NoError(t, err)
}

func TestOptimizeBatch(t *testing.T) {
	c := newClient(t)
	out, err := c.OptimizeBatch(context.Background(), []string{"2025-09-18", "2025-09-19", "2024-01-01"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Empty(t, out["2025-09-19"].Error)
	require.NotNil(t, out["2025-09-19"].OptimizeResult)
	require.NotEmpty(t, out["2024-01-01"].Error)
}

func TestRoleEnforced(t *testing.T) {
	c := newClient(t)
	c.Role = "viewer"
	_, err := c.Optimize(context.Background(), nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Contains(t, apiErr.Error(), "Forbidden")
}

func TestWebsocketURL(t *testing.T) {
	c := New(config.ClientConfig{BaseURL: "https://fleet.example/ops/"})
	u, err := c.WebsocketURL()
	require.NoError(t, err)
	require.Equal(t, "wss://fleet.example/ops/api/events/ws", u)

	c.Token = "abc"
	require.Equal(t, "Bearer abc", c.Header().Get("Authorization"))
}
