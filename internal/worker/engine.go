package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/shopspring/decimal"
)

// ThresholdSource is the read side of the threshold store.
type ThresholdSource interface {
	Snapshot() map[string][]domain.Threshold
}

// MatchDispatcher must not block: it only schedules delivery.
type MatchDispatcher interface {
	Dispatch(m domain.Match)
}

// Engine evaluates every tick against all thresholds and hands the crossing
// set to the dispatcher.
type Engine struct {
	source     ThresholdSource
	dispatcher MatchDispatcher
	logger     *slog.Logger

	// tickMu serializes evaluation so each tick sees the previous tick's price.
	tickMu sync.Mutex

	priceMu  sync.RWMutex
	price    decimal.Decimal
	hasPrice bool
	tickedAt time.Time
}

func NewEngine(source ThresholdSource, dispatcher MatchDispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger.With("component", "match_engine"),
	}
}

// Run consumes the feed in arrival order until ctx is done or the feed closes.
func (e *Engine) Run(ctx context.Context, feed domain.PriceFeed) error {
	e.logger.Info("Starting match engine")

	ticks, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to price feed: %w", err)
	}

	for {
		select {
		case event, ok := <-ticks:
			if !ok {
				e.logger.Warn("Price feed closed")
				return nil
			}
			e.OnTick(event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnTick processes one price update and returns the matches it dispatched.
// The first tick ever only records the price.
func (e *Engine) OnTick(event domain.PriceUpdateEvent) []domain.Match {
	matches := e.evaluate(event)
	for _, m := range matches {
		e.dispatcher.Dispatch(m)
	}
	return matches
}

func (e *Engine) evaluate(event domain.PriceUpdateEvent) []domain.Match {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	oldPrice, ok := e.swapPrice(event.Price, event.Time)
	if !ok {
		e.logger.Info("First tick observed, nothing to compare against",
			slog.String("price", event.Price.String()),
			slog.String("symbol", event.Symbol))
		return nil
	}
	newPrice := event.Price

	snapshot := e.source.Snapshot()
	subscribers := make([]string, 0, len(snapshot))
	for email := range snapshot {
		subscribers = append(subscribers, email)
	}
	sort.Strings(subscribers)

	var matches []domain.Match
	seen := make(map[string]struct{})
	for _, email := range subscribers {
		for _, t := range snapshot[email] {
			if !t.CrossedBy(oldPrice, newPrice) {
				continue
			}
			key := email + "|" + string(t.Orientation) + "|" + t.Price.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			matches = append(matches, domain.Match{
				Subscriber: email,
				Threshold:  t,
				OldPrice:   oldPrice,
				NewPrice:   newPrice,
				Symbol:     event.Symbol,
				Time:       event.Time,
			})
		}
	}

	if len(matches) > 0 {
		e.logger.Info("Thresholds crossed",
			slog.String("old_price", oldPrice.String()),
			slog.String("new_price", newPrice.String()),
			slog.Int("matches", len(matches)))
	}
	return matches
}

// swapPrice stores the new price and returns the one it replaced.
func (e *Engine) swapPrice(price decimal.Decimal, at time.Time) (decimal.Decimal, bool) {
	e.priceMu.Lock()
	defer e.priceMu.Unlock()

	old, had := e.price, e.hasPrice
	e.price = price
	e.hasPrice = true
	e.tickedAt = at
	return old, had
}

// CurrentPrice returns the last observed price, if any tick arrived yet.
func (e *Engine) CurrentPrice() (decimal.Decimal, time.Time, bool) {
	e.priceMu.RLock()
	defer e.priceMu.RUnlock()
	return e.price, e.tickedAt, e.hasPrice
}
