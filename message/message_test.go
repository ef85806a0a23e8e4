package message

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathSubstitution(t *testing.T) {
	d := &CallDescriptor{
		Dependency:   "billing",
		Method:       http.MethodGet,
		PathTemplate: "/billing-api/payment/{cardNo}",
		PathParams:   map[string]string{"cardNo": "4111 1111"},
	}
	require.NoError(t, d.Validate())

	path, err := d.Path()
	require.NoError(t, err)
	assert.Equal(t, "/billing-api/payment/4111%201111", path)
}

func TestValidateRejectsMalformed(t *testing.T) {
	cases := map[string]*CallDescriptor{
		"nil":           nil,
		"no dependency": {Method: "GET", PathTemplate: "/x"},
		"bad method":    {Dependency: "b", Method: "FETCH", PathTemplate: "/x"},
		"lower method":  {Dependency: "b", Method: "get", PathTemplate: "/x"},
		"relative path": {Dependency: "b", Method: "GET", PathTemplate: "x"},
		"negative":      {Dependency: "b", Method: "GET", PathTemplate: "/x", Timeout: -1},
		"missing param": {Dependency: "b", Method: "GET", PathTemplate: "/p/{id}"},
		"unused param":  {Dependency: "b", Method: "GET", PathTemplate: "/p", PathParams: map[string]string{"id": "1"}},
		"empty param":   {Dependency: "b", Method: "GET", PathTemplate: "/p/{id}", PathParams: map[string]string{"id": ""}},
		"stray brace":   {Dependency: "b", Method: "GET", PathTemplate: "/p/{id"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, d.Validate(), ErrMalformedDescriptor)
		})
	}
}

func TestBreakerKeyString(t *testing.T) {
	assert.Equal(t, "shopping->billing", BreakerKey{Caller: "shopping", Dependency: "billing"}.String())
}

func TestResult(t *testing.T) {
	r := Result{Kind: Degraded, Response: NewTextResponse(http.StatusServiceUnavailable, "down")}
	assert.False(t, r.OK())
	assert.Equal(t, "down", r.Response.Text())
	assert.Equal(t, "degraded", r.Kind.String())
	assert.Equal(t, "text/plain; charset=utf-8", r.Response.Header.Get("Content-Type"))
}

func TestResponseDecode(t *testing.T) {
	r := &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"amount":42}`),
	}
	var out struct {
		Amount int `json:"amount"`
	}
	require.NoError(t, r.Decode(&out))
	assert.Equal(t, 42, out.Amount)

	var s string
	require.NoError(t, NewTextResponse(http.StatusOK, "paid").Decode(&s))
	assert.Equal(t, "paid", s)
}
