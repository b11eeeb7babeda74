package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloat(t *testing.T) {
	assert.Equal(t, Cents(200), FromFloat(2.00))
	assert.Equal(t, Cents(1999), FromFloat(19.99))
	assert.Equal(t, Cents(30), FromFloat(0.1+0.2))
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, Cents(1000), LineTotal(5, 200, 0))
	assert.Equal(t, Cents(900), LineTotal(5, 200, 10))
	assert.Equal(t, Cents(0), LineTotal(3, 500, 100))
}

func TestParseAndString(t *testing.T) {
	c, err := Parse("10.00")
	require.NoError(t, err)
	assert.Equal(t, Cents(1000), c)
	assert.Equal(t, "10.00", c.String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.InDelta(t, 12.34, Cents(1234).Float64(), 1e-9)

	_, err = Parse("ten")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Cents `json:"total"`
	}{Total: 1000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":10.00}`, string(b))

	var v struct {
		Total Cents `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"total":"2.50"}`), &v))
	assert.Equal(t, Cents(250), v.Total)
}
