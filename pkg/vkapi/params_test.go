package vkapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchParams struct {
	Query  string `url:"q"`
	Count  int    `url:"count"`
	Offset int    `url:"offset,omitempty"`
}

func TestToValues(t *testing.T) {
	cases := []struct {
		name     string
		params   Params
		expected string
	}{
		{"nil", nil, ""},
		{"key values", P("user_ids", 1, "fields", []string{"sex", "city"}, "flag", true), "user_ids=1&fields=sex%2Ccity&flag=1"},
		{"query string", QueryString("?b=2&a=1"), "a=1&b=2"},
		{"raw map", RawMap{"peer_id": int64(5), "message": "hi"}, "message=hi&peer_id=5"},
		{"json object", JSONObject(`{"peer_id":5,"keyboard":{"buttons":[]}}`), "peer_id=5&keyboard=%7B%22buttons%22%3A%5B%5D%7D"},
		{"struct", Struct{V: searchParams{Query: "go", Count: 10}}, "count=10&q=go"},
		{"values", NewValues().Set("z", "1").Set("a", "2"), "z=1&a=2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := ToValues(tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, values.Encode())
		})
	}
}

func TestToValues_Errors(t *testing.T) {
	_, err := ToValues(P("a", 1, "b"))
	assert.ErrorIs(t, err, ErrOddKeyValues)
	_, err = ToValues(P(1, "a"))
	assert.ErrorIs(t, err, ErrInvalidParamKey)
	_, err = ToValues(JSONObject(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidJSONParams)
}

func TestToValues_ClonesValues(t *testing.T) {
	original := NewValues().Set("a", "1")
	converted, err := ToValues(original)
	require.NoError(t, err)
	converted.Set("b", "2")
	assert.Equal(t, 1, original.Len())
}

func TestValues_SetKeepsPosition(t *testing.T) {
	values := NewValues().Set("a", "1").Set("b", "2").Set("a", "3")
	assert.Equal(t, []string{"a", "b"}, values.Keys())
	assert.Equal(t, "a=3&b=2", values.Encode())

	values.Delete("a")
	assert.Equal(t, "b=2", values.Encode())
}

func TestValues_Merge(t *testing.T) {
	base := NewValues().Set("a", "1").Set("b", "2")
	base.Merge(NewValues().Set("b", "x").Set("c", "3"))
	assert.Equal(t, "a=1&b=x&c=3", base.Encode())
}

func TestValues_MarshalJSON(t *testing.T) {
	values := NewValues().Set("peer_id", "5").Set("message", `say "hi"`)
	data, err := json.Marshal(values)
	require.NoError(t, err)
	assert.Equal(t, `{"peer_id":"5","message":"say \"hi\""}`, string(data))
}
