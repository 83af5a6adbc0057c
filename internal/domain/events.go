package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceUpdateEvent is one tick: a single observed trade (or ticker) price.
type PriceUpdateEvent struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
	Source string
}
