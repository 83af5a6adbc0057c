package stream

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type bitstampRequest struct {
	Event string          `json:"event"`
	Data  bitstampChannel `json:"data"`
}

type bitstampChannel struct {
	Channel string `json:"channel,omitempty"`
}

// BitstampEvent is the envelope of every frame on ws.bitstamp.net.
type BitstampEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// BitstampTrade is the data of a "trade" event on live_trades_<pair>.
type BitstampTrade struct {
	ID             int64           `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Price          decimal.Decimal `json:"price"`
	PriceStr       decimal.Decimal `json:"price_str"`
	Type           int             `json:"type"`
	MicroTimestamp string          `json:"microtimestamp"`
}

// BybitTickerEvent matches the v5 Linear Stream ticker message. Data is an
// object for both snapshot and delta frames.
type BybitTickerEvent struct {
	Op    string      `json:"op"`
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Data  BybitTicker `json:"data"`
}

type BybitTicker struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	MarkPrice decimal.Decimal `json:"markPrice"`
}
