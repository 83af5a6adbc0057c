package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Subscriptions is the part of the subscription service the API drives.
type Subscriptions interface {
	Register(ctx context.Context, email string) error
	Activate(ctx context.Context, code string) (string, error)
	Unregister(ctx context.Context, email, secret string) error
	AddThreshold(ctx context.Context, email, secret string, t domain.Threshold) error
	RemoveThreshold(ctx context.Context, email, secret string, t domain.Threshold) error
	ReplaceThresholds(ctx context.Context, email, secret string, set []domain.Threshold) error
	ListThresholds(email, secret string) ([]domain.Threshold, error)
}

// PriceSource reports the last observed tick.
type PriceSource interface {
	CurrentPrice() (decimal.Decimal, time.Time, bool)
}

type Handler struct {
	subs   Subscriptions
	prices PriceSource
	logger *slog.Logger
}

func NewHandler(subs Subscriptions, prices PriceSource, logger *slog.Logger) *Handler {
	return &Handler{subs: subs, prices: prices, logger: logger.With("component", "api")}
}

func (h *Handler) Register(c *gin.Context) {
	if err := h.subs.Register(c.Request.Context(), c.Param("emailAddress")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Activate(c *gin.Context) {
	secret, err := h.subs.Activate(c.Request.Context(), c.Param("activationCode"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/user/"+secret)
}

func (h *Handler) AddThreshold(c *gin.Context) {
	h.editThreshold(c, h.subs.AddThreshold)
}

func (h *Handler) RemoveThreshold(c *gin.Context) {
	h.editThreshold(c, h.subs.RemoveThreshold)
}

func (h *Handler) editThreshold(c *gin.Context, op func(context.Context, string, string, domain.Threshold) error) {
	t, err := domain.NewThreshold(c.Param("orientation"), c.Param("amount"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := op(c.Request.Context(), c.Param("emailAddress"), c.Param("secret"), t); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ReplaceThresholds(c *gin.Context) {
	var set []domain.Threshold
	if err := c.ShouldBindJSON(&set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.ReplaceThresholds(c.Request.Context(), c.Param("emailAddress"), c.Param("secret"), set); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ListThresholds(c *gin.Context) {
	list, err := h.subs.ListThresholds(c.Param("emailAddress"), c.Param("secret"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []domain.Threshold{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) Unregister(c *gin.Context) {
	if err := h.subs.Unregister(c.Request.Context(), c.Param("emailAddress"), c.Param("secret")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Price(c *gin.Context) {
	price, at, ok := h.prices.CurrentPrice()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price.String(), "time": at.UTC()})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidThreshold), errors.Is(err, domain.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSubscriberNotFound), errors.Is(err, domain.ErrActivationNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
