package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// --- Enums & Constants ---

type Orientation string

const (
	OrientationUp   Orientation = "up"
	OrientationDown Orientation = "down"
	OrientationAny  Orientation = "any"
)

// ParseOrientation accepts the tokens used by the HTTP API, case-insensitive.
func ParseOrientation(token string) (Orientation, error) {
	switch Orientation(strings.ToLower(strings.TrimSpace(token))) {
	case OrientationUp:
		return OrientationUp, nil
	case OrientationDown:
		return OrientationDown, nil
	case OrientationAny:
		return OrientationAny, nil
	}
	return "", fmt.Errorf("%w: unknown orientation %q", ErrInvalidThreshold, token)
}

func (o Orientation) Valid() bool {
	return o == OrientationUp || o == OrientationDown || o == OrientationAny
}

// Title is used in notification subjects ("Up", "Down", "Any").
func (o Orientation) Title() string {
	if o == "" {
		return ""
	}
	return strings.ToUpper(string(o[:1])) + string(o[1:])
}

// --- Entities ---

// Threshold is a trigger level owned by a subscriber. Thresholds are never
// mutated in place: an update is a remove followed by an add.
type Threshold struct {
	Orientation Orientation     `json:"orientation"`
	Price       decimal.Decimal `json:"price"`
}

// NewThreshold validates raw request values and builds a Threshold.
func NewThreshold(orientation, amount string) (Threshold, error) {
	o, err := ParseOrientation(orientation)
	if err != nil {
		return Threshold{}, err
	}
	price, err := ParsePrice(amount)
	if err != nil {
		return Threshold{}, err
	}
	return Threshold{Orientation: o, Price: price}, nil
}

// ParsePrice rejects anything that is not a finite number.
func ParsePrice(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", ErrInvalidThreshold)
	}
	price, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q is not a number", ErrInvalidThreshold, amount)
	}
	return price, nil
}

// Validate is the single place malformed thresholds are rejected.
func (t Threshold) Validate() error {
	if !t.Orientation.Valid() {
		return fmt.Errorf("%w: unknown orientation %q", ErrInvalidThreshold, t.Orientation)
	}
	return nil
}

// Equal compares orientation and numeric price (1.50 equals 1.5).
func (t Threshold) Equal(other Threshold) bool {
	return t.Orientation == other.Orientation && t.Price.Equal(other.Price)
}

func (t Threshold) String() string {
	return fmt.Sprintf("%s %s", t.Orientation, t.Price.String())
}

// MarshalJSON writes the price as a JSON number, the shape the web client reads.
func (t Threshold) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Orientation Orientation `json:"orientation"`
		Price       json.Number `json:"price"`
	}{
		Orientation: t.Orientation,
		Price:       json.Number(t.Price.String()),
	})
}

// UnmarshalJSON accepts the original wire shape {"orientation","amount"}
// as well as {"orientation","price"}, with price as number or string.
func (t *Threshold) UnmarshalJSON(data []byte) error {
	var raw struct {
		Orientation string          `json:"orientation"`
		Price       json.RawMessage `json:"price"`
		Amount      json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, err)
	}

	value := raw.Price
	if len(value) == 0 {
		value = raw.Amount
	}
	if len(value) == 0 || string(value) == "null" {
		return fmt.Errorf("%w: missing price", ErrInvalidThreshold)
	}

	parsed, err := NewThreshold(raw.Orientation, strings.Trim(string(value), `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Subscriber is keyed by an externally validated email address.
type Subscriber struct {
	Email      string
	Secret     string
	Thresholds []Threshold
	CreatedAt  time.Time
}

// Match is one (subscriber, threshold) pair crossed by a single tick.
// It only lives for the duration of that tick's dispatch.
type Match struct {
	Subscriber string
	Threshold  Threshold
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	Symbol     string
	Time       time.Time
}
