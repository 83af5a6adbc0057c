package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThreshold(t *testing.T) {
	th, err := NewThreshold("UP", "100.50")
	require.NoError(t, err)
	assert.Equal(t, OrientationUp, th.Orientation)
	assert.True(t, th.Price.Equal(decimal.RequireFromString("100.5")))

	for _, tc := range []struct{ orientation, amount string }{
		{"sideways", "100"},
		{"up", "abc"},
		{"up", ""},
		{"down", "NaN"},
		{"any", "Infinity"},
	} {
		_, err := NewThreshold(tc.orientation, tc.amount)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "%s/%s", tc.orientation, tc.amount)
	}
}

func TestThresholdEqualIgnoresScale(t *testing.T) {
	a := Threshold{Orientation: OrientationDown, Price: decimal.RequireFromString("100")}
	b := Threshold{Orientation: OrientationDown, Price: decimal.RequireFromString("100.00")}
	c := Threshold{Orientation: OrientationUp, Price: decimal.RequireFromString("100")}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestThresholdJSON(t *testing.T) {
	var list []Threshold
	body := `[{"orientation":"up","price":100},{"orientation":"down","amount":"95.5"},{"orientation":"any","price":"7"}]`
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 3)
	assert.Equal(t, OrientationDown, list[1].Orientation)
	assert.Equal(t, "95.5", list[1].Price.String())

	out, err := json.Marshal(list[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"orientation":"up","price":100}`, string(out))

	var bad Threshold
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"orientation":"up"}`), &bad), ErrInvalidThreshold)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"orientation":"left","price":1}`), &bad), ErrInvalidThreshold)
}

func TestParsePair(t *testing.T) {
	for input, want := range map[string]Pair{
		"btceur":  {Base: "BTC", Quote: "EUR"},
		"BTCUSDT": {Base: "BTC", Quote: "USDT"},
		"eth-usd": {Base: "ETH", Quote: "USD"},
		"ETH/BTC": {Base: "ETH", Quote: "BTC"},
	} {
		got, err := ParsePair(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParsePair("EUR")
	assert.Error(t, err)

	p := Pair{Base: "BTC", Quote: "EUR"}
	assert.Equal(t, "btceur", p.Bitstamp())
	assert.Equal(t, "BTCEUR", p.Bybit())
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, 20)
	assert.NotEqual(t, a, b)
}
