package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payment struct {
	CardNo int64  `json:"cardNo"`
	Status string `json:"status"`
}

func TestJSONCodec(t *testing.T) {
	c := &JSONCodec{}
	data, err := c.Encode(payment{CardNo: 4111, Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cardNo":4111,"status":"ok"}`, string(data))

	var p payment
	require.NoError(t, c.Decode(data, &p))
	assert.Equal(t, int64(4111), p.CardNo)
}

func TestTextCodec(t *testing.T) {
	c := &TextCodec{}
	data, err := c.Encode("Bill Amount is 42")
	require.NoError(t, err)

	var s string
	require.NoError(t, c.Decode(data, &s))
	assert.Equal(t, "Bill Amount is 42", s)

	_, err = c.Encode(42)
	assert.Error(t, err)
	assert.Error(t, c.Decode(data, new(int)))
}

func TestForContentType(t *testing.T) {
	assert.IsType(t, &JSONCodec{}, ForContentType("application/json; charset=utf-8"))
	assert.IsType(t, &JSONCodec{}, ForContentType("application/problem+json"))
	assert.IsType(t, &TextCodec{}, ForContentType("text/plain"))
	assert.IsType(t, &TextCodec{}, ForContentType(""))
}
