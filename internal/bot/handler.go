package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cntech/bitalert/internal/worker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// API is the subset of *tgbotapi.BotAPI the handler drives.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type StoreStats interface {
	Count() (subscribers, thresholds int)
}

type PriceSource interface {
	CurrentPrice() (decimal.Decimal, time.Time, bool)
}

type DispatchStats interface {
	Stats() worker.DispatchStats
}

// Handler answers admin commands. Messages from anyone else are ignored.
type Handler struct {
	bot      API
	store    StoreStats
	prices   PriceSource
	dispatch DispatchStats
	symbol   string

	adminID int64
	logger  *slog.Logger
}

func NewHandler(
	bot API,
	store StoreStats,
	prices PriceSource,
	dispatch DispatchStats,
	symbol string,
	adminID int64,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		bot:      bot,
		store:    store,
		prices:   prices,
		dispatch: dispatch,
		symbol:   symbol,
		adminID:  adminID,
		logger:   logger.With("component", "telegram_bot"),
	}
}

func (h *Handler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)
	defer h.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				h.handleMessage(update.Message)
			}
		}
	}
}

func (h *Handler) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID != h.adminID || !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start", "help":
		h.send(msg.Chat.ID, "Commands:\n/status - subscribers, thresholds, deliveries\n/price - last observed price")
	case "status":
		h.send(msg.Chat.ID, h.statusText())
	case "price":
		h.send(msg.Chat.ID, h.priceText())
	default:
		h.send(msg.Chat.ID, "Unknown command. Try /help")
	}
}

func (h *Handler) statusText() string {
	subs, thresholds := h.store.Count()
	stats := h.dispatch.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "*Bit Alert status*\n")
	fmt.Fprintf(&b, "Subscribers: %d\n", subs)
	fmt.Fprintf(&b, "Thresholds: %d\n", thresholds)
	fmt.Fprintf(&b, "Notifications: %d sent, %d failed\n", stats.Delivered, stats.Failed)
	b.WriteString(h.priceText())
	return b.String()
}

func (h *Handler) priceText() string {
	price, at, ok := h.prices.CurrentPrice()
	if !ok {
		return fmt.Sprintf("%s: no ticks yet", h.symbol)
	}
	return fmt.Sprintf("%s: `%s` (%s ago)", h.symbol, price.String(), time.Since(at).Truncate(time.Second))
}

func (h *Handler) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("Failed to send reply", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}
