package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gorilla/websocket"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/log"
)

// NewWebsocket returns a websocket source for symbol
func NewWebsocket(url, symbol string, interval kline.Interval) (*Websocket, error) {
	if url == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyURL)
	}
	return &Websocket{
		URL:        url,
		Symbol:     symbol,
		Interval:   interval,
		MinBackoff: defaultMinBackoff,
		MaxBackoff: defaultMaxBackoff,
	}, nil
}

// Stream dials the feed and subscribes. The first dial must succeed, later
// disconnects are retried with capped exponential backoff
func (w *Websocket) Stream(ctx context.Context) (<-chan kline.Bar, error) {
	if w.started {
		return nil, errAlreadyStarted
	}
	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}
	w.started = true
	out := make(chan kline.Bar, barBuffer)
	go w.run(ctx, conn, out)
	return out, nil
}

func (w *Websocket) connect(ctx context.Context) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, w.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w dialing %s: %w", common.ErrData, w.URL, err)
	}
	if err := conn.WriteJSON(subscription{Type: "subscribe", Symbol: w.Symbol, Interval: w.Interval.String()}); err != nil {
		return nil, common.AppendError(fmt.Errorf("%w subscribing: %w", common.ErrData, err), conn.Close())
	}
	log.Infof(log.DataMgr, "subscribed to %s %s bars at %s", w.Symbol, w.Interval, w.URL)
	return conn, nil
}

func (w *Websocket) run(ctx context.Context, conn *websocket.Conn, out chan<- kline.Bar) {
	defer close(out)
	backoff := w.MinBackoff
	for {
		stop := context.AfterFunc(ctx, func() {
			_ = conn.Close()
		})
		err := w.readLoop(ctx, conn, out)
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warnf(log.DataMgr, "market data connection lost: %v, reconnecting in %v", err, backoff)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, w.MaxBackoff)
			conn, err = w.connect(ctx)
			if err == nil {
				backoff = w.MinBackoff
				break
			}
			log.Errorf(log.DataMgr, "reconnect failed: %v", err)
		}
	}
}

func (w *Websocket) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- kline.Bar) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		b, err := ParseBar(msg, w.Symbol)
		if err != nil {
			if !errors.Is(err, errNotBarMessage) {
				log.Warnf(log.DataMgr, "%v", err)
			}
			continue
		}
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseBar decodes a bar message. Messages with a type other than "bar" are
// ignored. The timestamp is epoch milliseconds or an RFC3339 string
func ParseBar(msg []byte, defaultSymbol string) (kline.Bar, error) {
	if typ, err := jsonparser.GetString(msg, "type"); err == nil && typ != "bar" {
		return kline.Bar{}, errNotBarMessage
	}
	b := kline.Bar{Symbol: defaultSymbol}
	if s, err := jsonparser.GetString(msg, "symbol"); err == nil && s != "" {
		b.Symbol = s
	}
	raw, typ, _, err := jsonparser.Get(msg, "timestamp")
	if err != nil {
		return kline.Bar{}, fmt.Errorf("%w %w timestamp", common.ErrData, errMissingField)
	}
	if typ == jsonparser.Number || typ == jsonparser.String {
		b.Timestamp, err = data.ParseTimestamp(string(raw))
	} else {
		err = fmt.Errorf("unexpected timestamp type %v", typ)
	}
	if err != nil {
		return kline.Bar{}, fmt.Errorf("%w %w", common.ErrData, err)
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
		{"volume", &b.Volume},
	} {
		*f.dst, err = jsonparser.GetFloat(msg, f.key)
		if err != nil {
			return kline.Bar{}, fmt.Errorf("%w %w %s: %w", common.ErrData, errMissingField, f.key, err)
		}
	}
	return b, nil
}

// NewChannel wraps ch
func NewChannel(ch <-chan kline.Bar) *Channel {
	return &Channel{C: ch}
}

// Stream returns the wrapped channel
func (c *Channel) Stream(context.Context) (<-chan kline.Bar, error) {
	if c.C == nil {
		return nil, common.ErrNilArguments
	}
	return c.C, nil
}

// NewReplay returns a source replaying p
func NewReplay(p data.Provider, pace time.Duration) (*Replay, error) {
	if p == nil {
		return nil, errNilProvider
	}
	return &Replay{Provider: p, Pace: pace}, nil
}

// Stream reads the provider in a goroutine. Bad rows are logged and skipped
func (r *Replay) Stream(ctx context.Context) (<-chan kline.Bar, error) {
	if r.Provider == nil {
		return nil, errNilProvider
	}
	out := make(chan kline.Bar)
	go func() {
		defer close(out)
		for {
			b, err := r.Provider.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				log.Warnf(log.DataMgr, "replay: %v", err)
				if !errors.Is(err, common.ErrData) {
					return
				}
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
			if r.Pace > 0 {
				select {
				case <-time.After(r.Pace):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
