package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBar(t *testing.T) {
	t.Parallel()
	b, err := ParseBar([]byte(`{"type":"bar","timestamp":1704067200000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}`), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDC", b.Symbol)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), b.Timestamp)
	assert.Equal(t, 1.5, b.Close)

	b, err = ParseBar([]byte(`{"symbol":"JUP/USDC","timestamp":"2024-01-01T01:00:00Z","open":1,"high":1,"low":1,"close":1,"volume":0}`), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, "JUP/USDC", b.Symbol)

	_, err = ParseBar([]byte(`{"type":"heartbeat"}`), "")
	assert.ErrorIs(t, err, errNotBarMessage)
	_, err = ParseBar([]byte(`{"timestamp":1,"open":1}`), "")
	assert.ErrorIs(t, err, errMissingField)
	assert.ErrorIs(t, err, common.ErrData)
	_, err = ParseBar([]byte(`{"open":1}`), "")
	assert.ErrorIs(t, err, errMissingField)
	_, err = ParseBar([]byte(`{"timestamp":true}`), "")
	assert.ErrorIs(t, err, common.ErrData)
}

func TestWebsocketStream(t *testing.T) {
	t.Parallel()
	_, err := NewWebsocket("", "SOL/USDC", kline.OneMin)
	assert.ErrorIs(t, err, errEmptyURL)

	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscription, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscription
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		for _, msg := range []string{
			`{"type":"heartbeat"}`,
			`{"timestamp":1704067200000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}`,
			`not json`,
			`{"timestamp":1704067260000,"open":1.5,"high":2,"low":1,"close":1.8,"volume":4}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	ws, err := NewWebsocket("ws"+strings.TrimPrefix(srv.URL, "http"), "SOL/USDC", kline.OneMin)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := ws.Stream(ctx)
	require.NoError(t, err)
	_, err = ws.Stream(ctx)
	assert.ErrorIs(t, err, errAlreadyStarted)

	sub := <-subscribed
	assert.Equal(t, subscription{Type: "subscribe", Symbol: "SOL/USDC", Interval: "1m"}, sub)

	var got []kline.Bar
	for len(got) < 2 {
		select {
		case b := <-ch:
			got = append(got, b)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for bars")
		}
	}
	assert.Equal(t, 1.8, got[1].Close)
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebsocketDialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	ws, err := NewWebsocket("ws"+strings.TrimPrefix(srv.URL, "http"), "SOL/USDC", kline.OneMin)
	require.NoError(t, err)
	_, err = ws.Stream(context.Background())
	assert.ErrorIs(t, err, common.ErrData)
}

func TestReplay(t *testing.T) {
	t.Parallel()
	_, err := NewReplay(nil, 0)
	assert.ErrorIs(t, err, errNilProvider)
	p := data.NewMemory(kline.Bar{Symbol: "A/B", Close: 1}, kline.Bar{Symbol: "A/B", Close: 2})
	r, err := NewReplay(p, 0)
	require.NoError(t, err)
	ch, err := r.Stream(context.Background())
	require.NoError(t, err)
	var closes []float64
	for b := range ch {
		closes = append(closes, b.Close)
	}
	assert.Equal(t, []float64{1, 2}, closes)
}

func TestChannel(t *testing.T) {
	t.Parallel()
	_, err := NewChannel(nil).Stream(context.Background())
	assert.ErrorIs(t, err, common.ErrNilArguments)
	in := make(chan kline.Bar, 1)
	in <- kline.Bar{Close: 3}
	close(in)
	ch, err := NewChannel(in).Stream(context.Background())
	require.NoError(t, err)
	b := <-ch
	assert.Equal(t, 3.0, b.Close)
}
