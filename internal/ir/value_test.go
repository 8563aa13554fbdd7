package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectAccessors(t *testing.T) {
	obj := Object{
		"name":    String("council"),
		"index":   Int(3),
		"inFavor": Bool(true),
		"payload": Object{"kind": String("addEntry")},
	}

	s, ok := obj.Str("name")
	assert.True(t, ok)
	assert.Equal(t, "council", s)

	n, ok := obj.IntValue("index")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	b, ok := obj.BoolValue("inFavor")
	assert.True(t, ok)
	assert.True(t, b)

	nested, ok := obj.Obj("payload")
	require.True(t, ok)
	assert.Equal(t, String("addEntry"), nested["kind"])

	_, ok = obj.Str("index")
	assert.False(t, ok, "wrong kind is not coerced")
	_, ok = obj.IntValue("missing")
	assert.False(t, ok)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{"inner": Object{"v": Int(1)}, "list": List{Int(1)}}
	cp := orig.Clone()

	cp["inner"].(Object)["v"] = Int(2)
	cp["list"].(List)[0] = Int(9)

	assert.Equal(t, Int(1), orig["inner"].(Object)["v"])
	assert.Equal(t, Int(1), orig["list"].(List)[0])
	assert.Nil(t, Object(nil).Clone())
}

func TestSortedKeysUTF16Order(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "\uE000": Int(3), "\U00010000": Int(4), "B": Int(5)}
	assert.Equal(t, []string{"B", "a", "b", "\U00010000", "\uE000"}, obj.SortedKeys())
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{
		"z": List{String("x"), Int(-1), Bool(false)},
		"a": Object{"deep": Int(7)},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"deep":7},"z":["x",-1,false]}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestUnmarshalValueRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `3.14`},
		{"exponent", `1e10`},
		{"nested float", `{"a": {"b": [1.5]}}`},
		{"null", `null`},
		{"null in object", `{"a": null}`},
		{"garbage", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalValue([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestObjectUnmarshalRequiresObject(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`[1,2]`), &obj)
	assert.Error(t, err)
}

func TestFromGoAndToGo(t *testing.T) {
	in := map[string]any{
		"name":  "seat",
		"count": 2,
		"big":   uint64(5),
		"flags": []any{true, "x"},
	}

	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, Object{
		"name":  String("seat"),
		"count": Int(2),
		"big":   Int(5),
		"flags": List{Bool(true), String("x")},
	}, v)

	back := ToGo(v).(map[string]any)
	assert.Equal(t, "seat", back["name"])
	assert.Equal(t, int64(2), back["count"])
	assert.Equal(t, []any{true, "x"}, back["flags"])

	_, err = FromGo(uint64(1) << 63)
	assert.Error(t, err)
}
