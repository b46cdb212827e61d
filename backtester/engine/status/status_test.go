package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/engine"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	t.Parallel()
	s := New()
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	s.Publish(engine.Snapshot{
		Equity:    1010,
		Positions: []portfolio.PositionSnapshot{{Symbol: "SOL/USDC", Quantity: 2, Mark: 105}},
	})
	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got engine.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 1010.0, got.Equity)

	resp, err = http.Get(srv.URL + "/positions/SOL/USDC")
	require.NoError(t, err)
	var pos portfolio.PositionSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pos))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 2.0, pos.Quantity)

	resp, err = http.Get(srv.URL + "/positions/JUP/USDC")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestStart(t *testing.T) {
	t.Parallel()
	s := New()
	assert.ErrorIs(t, s.Start(context.Background(), ""), common.ErrConfiguration)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, addr))
	assert.ErrorIs(t, s.Start(ctx, addr), errAlreadyStarted)
	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}
