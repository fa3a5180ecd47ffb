package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ZeroIsNull(t *testing.T) {
	t.Parallel()

	var v Value
	assert.True(t, v.IsNull())
	assert.True(t, v.IsEmpty())
	assert.True(t, v.IsZero())
	assert.Equal(t, KindNull, v.Kind())
}

func TestValue_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, String("").IsEmpty())
	assert.False(t, String(" ").IsEmpty())
	assert.False(t, Number(0).IsEmpty())
	assert.False(t, Bool(false).IsEmpty())
}

func TestValue_NumberRejectsNaN(t *testing.T) {
	t.Parallel()

	assert.True(t, Number(math.NaN()).IsNull())
	assert.True(t, Number(math.Inf(1)).IsNull())
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", Null(), Null(), true},
		{"numbers", Number(500000), Number(500000), true},
		{"different numbers", Number(1), Number(2), false},
		{"number vs string", Number(3), String("3"), false},
		{"strings", String("Pinellas"), String("Pinellas"), true},
		{"bools", Bool(true), Bool(true), true},
		{"bool vs null", Bool(false), Null(), false},
		{
			"objects ignore member order",
			FromAny(map[string]any{"a": 1, "b": "x"}),
			FromAny(map[string]any{"b": "x", "a": 1.0}),
			true,
		},
		{
			"objects differ",
			FromAny(map[string]any{"a": 1}),
			FromAny(map[string]any{"a": 2}),
			false,
		},
		{
			"objects differ in size",
			FromAny(map[string]any{"a": 1}),
			FromAny(map[string]any{"a": 1, "b": 1}),
			false,
		},
		{"lists", List(Number(1), String("a")), List(Number(1), String("a")), true},
		{"list order matters", List(Number(1), Number(2)), List(Number(2), Number(1)), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.a.Equal(tc.b))
			assert.Equal(t, tc.want, tc.b.Equal(tc.a))
		})
	}
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindNumber, FromAny(3).Kind())
	assert.Equal(t, KindNumber, FromAny(int64(3)).Kind())
	assert.Equal(t, KindNumber, FromAny(json.Number("4.5")).Kind())
	assert.Equal(t, KindString, FromAny("x").Kind())
	assert.Equal(t, KindBool, FromAny(true).Kind())
	assert.Equal(t, KindNull, FromAny(nil).Kind())
	assert.Equal(t, KindList, FromAny([]any{1, "a"}).Kind())
	assert.Equal(t, KindObject, FromAny(map[any]any{"k": 1}).Kind())

	type school struct {
		Name   string `json:"name"`
		Rating int    `json:"rating"`
	}
	v := FromAny(school{Name: "Lakewood", Rating: 8})
	require.Equal(t, KindObject, v.Kind())
	rating, ok := v.Field("rating")
	require.True(t, ok)
	n, _ := rating.AsNumber()
	assert.Equal(t, 8.0, n)

	var nilPtr *school
	assert.True(t, FromAny(nilPtr).IsNull())
	assert.True(t, FromAny(func() {}).IsNull())
}

func TestValue_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	values := []Value{
		Null(),
		Number(525000),
		Number(2.5),
		String("AE"),
		Bool(false),
		FromAny(map[string]any{"value": 3, "nested": []any{"a", true, nil}}),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var got Value
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, v.Equal(got), "round trip of %s", string(data))
	}
}

func TestValue_MarshalSortsKeys(t *testing.T) {
	t.Parallel()

	v := FromAny(map[string]any{"z": 1, "a": 2})
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, string(data))
}

func TestValue_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "500000", Number(500000).String())
	assert.Equal(t, "2.5", Number(2.5).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "abc", String("abc").String())
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, `[1,"a"]`, List(Number(1), String("a")).String())
}

func TestValue_Interface(t *testing.T) {
	t.Parallel()

	v := FromAny(map[string]any{"a": []any{1.0, "b"}})
	assert.Equal(t, map[string]any{"a": []any{1.0, "b"}}, v.Interface())
}
