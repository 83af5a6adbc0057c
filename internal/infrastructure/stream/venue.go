package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	BitstampURL = "wss://ws.bitstamp.net"

	// Public Linear Stream (USDT Perpetual)
	BybitMainnetLinearURL = "wss://stream.bybit.com/v5/public/linear"
	BybitTestnetLinearURL = "wss://stream-testnet.bybit.com/v5/public/linear"
)

// Venue describes how to talk to one exchange's public stream.
type Venue interface {
	Name() string
	URL() string
	SubscribeMessages() []any
	// Heartbeat returns nil when the venue needs no application-level ping.
	Heartbeat() any
	// Decode returns ok=false for frames that are not ticks.
	Decode(message []byte) (domain.PriceUpdateEvent, bool, error)
}

// --- Bitstamp ---

type Bitstamp struct {
	url     string
	channel string
}

// NewBitstamp subscribes to live trades, e.g. live_trades_btceur.
func NewBitstamp(pair domain.Pair) *Bitstamp {
	return &Bitstamp{url: BitstampURL, channel: "live_trades_" + pair.Bitstamp()}
}

func (b *Bitstamp) Name() string { return "bitstamp" }
func (b *Bitstamp) URL() string  { return b.url }

func (b *Bitstamp) SubscribeMessages() []any {
	return []any{bitstampRequest{Event: "bts:subscribe", Data: bitstampChannel{Channel: b.channel}}}
}

func (b *Bitstamp) Heartbeat() any {
	return bitstampRequest{Event: "bts:heartbeat"}
}

func (b *Bitstamp) Decode(message []byte) (domain.PriceUpdateEvent, bool, error) {
	var event BitstampEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return domain.PriceUpdateEvent{}, false, fmt.Errorf("decode bitstamp frame: %w", err)
	}

	switch event.Event {
	case "trade":
	case "bts:request_reconnect":
		return domain.PriceUpdateEvent{}, false, ErrReconnectRequested
	default:
		return domain.PriceUpdateEvent{}, false, nil
	}
	if event.Channel != b.channel {
		return domain.PriceUpdateEvent{}, false, nil
	}

	var trade BitstampTrade
	if err := json.Unmarshal(event.Data, &trade); err != nil {
		return domain.PriceUpdateEvent{}, false, fmt.Errorf("decode bitstamp trade: %w", err)
	}

	price := trade.PriceStr
	if price.IsZero() {
		price = trade.Price
	}
	if price.IsZero() {
		return domain.PriceUpdateEvent{}, false, nil
	}

	ts := time.Now()
	if trade.MicroTimestamp != "" {
		if micros, err := decimal.NewFromString(trade.MicroTimestamp); err == nil {
			ts = time.UnixMicro(micros.IntPart())
		}
	}

	return domain.PriceUpdateEvent{
		Symbol: b.channel,
		Price:  price,
		Time:   ts,
		Source: "bitstamp-ws",
	}, true, nil
}

// --- Bybit ---

type Bybit struct {
	url    string
	symbol string
}

func NewBybit(pair domain.Pair, isTestnet bool) *Bybit {
	url := BybitMainnetLinearURL
	if isTestnet {
		url = BybitTestnetLinearURL
	}
	return &Bybit{url: url, symbol: pair.Bybit()}
}

func (b *Bybit) Name() string { return "bybit" }
func (b *Bybit) URL() string  { return b.url }

func (b *Bybit) SubscribeMessages() []any {
	return []any{map[string]any{
		"op":   "subscribe",
		"args": []string{"tickers." + b.symbol},
	}}
}

func (b *Bybit) Heartbeat() any {
	return map[string]string{"op": "ping"}
}

func (b *Bybit) Decode(message []byte) (domain.PriceUpdateEvent, bool, error) {
	var event BybitTickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return domain.PriceUpdateEvent{}, false, fmt.Errorf("decode bybit frame: %w", err)
	}

	// ping/subscribe acknowledgements
	if event.Op != "" || event.Topic == "" {
		return domain.PriceUpdateEvent{}, false, nil
	}

	data := event.Data
	if data.Symbol != "" && data.Symbol != b.symbol {
		return domain.PriceUpdateEvent{}, false, nil
	}

	// MarkPrice first, LastPrice as a fallback
	price := data.MarkPrice
	if price.IsZero() {
		price = data.LastPrice
	}
	// Delta frames without a price field carry nothing for us.
	if price.IsZero() {
		return domain.PriceUpdateEvent{}, false, nil
	}

	return domain.PriceUpdateEvent{
		Symbol: b.symbol,
		Price:  price,
		Time:   time.Now(),
		Source: "bybit-linear-ws",
	}, true, nil
}
