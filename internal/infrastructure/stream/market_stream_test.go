package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func btceur(t *testing.T) domain.Pair {
	t.Helper()
	pair, err := domain.ParsePair("BTC/EUR")
	require.NoError(t, err)
	return pair
}

func TestBitstampDecodeTrade(t *testing.T) {
	venue := NewBitstamp(btceur(t))
	frame := `{"event":"trade","channel":"live_trades_btceur","data":{"id":1,"amount":0.5,"price":27123.4,"price_str":"27123.40","type":0,"microtimestamp":"1700000000123456"}}`

	event, ok, err := venue.Decode([]byte(frame))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, event.Price.Equal(decimal.RequireFromString("27123.4")))
	assert.Equal(t, "live_trades_btceur", event.Symbol)
	assert.Equal(t, int64(1700000000123456), event.Time.UnixMicro())
}

func TestBitstampDecodeIgnoresControlFrames(t *testing.T) {
	venue := NewBitstamp(btceur(t))

	for _, frame := range []string{
		`{"event":"bts:subscription_succeeded","channel":"live_trades_btceur","data":{}}`,
		`{"event":"bts:heartbeat","channel":"","data":{"status":"success"}}`,
		`{"event":"trade","channel":"live_trades_btcusd","data":{"price":1}}`,
	} {
		_, ok, err := venue.Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.False(t, ok, frame)
	}

	_, _, err := venue.Decode([]byte(`{"event":"bts:request_reconnect","channel":"","data":""}`))
	assert.ErrorIs(t, err, ErrReconnectRequested)

	_, _, err = venue.Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestBybitDecodePrefersMarkPrice(t *testing.T) {
	pair, err := domain.ParsePair("BTCUSDT")
	require.NoError(t, err)
	venue := NewBybit(pair, false)

	event, ok, err := venue.Decode([]byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"100.5","markPrice":"100.7"},"cs":24987956059,"ts":1673272861686}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, event.Price.Equal(decimal.RequireFromString("100.7")))

	event, ok, err = venue.Decode([]byte(`{"topic":"tickers.BTCUSDT","type":"delta","data":{"symbol":"BTCUSDT","lastPrice":"99"},"cs":24987956060,"ts":1673272861786}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, event.Price.Equal(decimal.NewFromInt(99)))

	// delta without a price change
	_, ok, err = venue.Decode([]byte(`{"topic":"tickers.BTCUSDT","type":"delta","data":{"symbol":"BTCUSDT","volume24h":"1.5"},"ts":1673272861886}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = venue.Decode([]byte(`{"op":"pong","success":true}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

// fakeBitstamp accepts one subscription and replays trades in order.
func fakeBitstamp(t *testing.T, prices ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req bitstampRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Event != "bts:subscribe" || req.Data.Channel != "live_trades_btceur" {
			return
		}

		for _, price := range prices {
			frame := `{"event":"trade","channel":"live_trades_btceur","data":{"price_str":"` + price + `"}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// hold the connection open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestMarketStreamDeliversTicksInOrder(t *testing.T) {
	server := fakeBitstamp(t, "100", "101.5", "99")
	defer server.Close()

	venue := NewBitstamp(btceur(t))
	venue.url = "ws" + strings.TrimPrefix(server.URL, "http")

	ms := NewMarketStream(venue, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := ms.Subscribe(ctx)
	require.NoError(t, err)

	var got []string
	for len(got) < 3 {
		select {
		case event := <-ticks:
			got = append(got, event.Price.String())
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %v", got)
		}
	}
	assert.Equal(t, []string{"100", "101.5", "99"}, got)

	require.NoError(t, ms.Close())
	select {
	case _, ok := <-ticks:
		for ok {
			_, ok = <-ticks
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close")
	}
}
