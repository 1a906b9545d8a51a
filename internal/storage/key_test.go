package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValidate(t *testing.T) {
	assert.NoError(t, Key{}.Validate())
	assert.NoError(t, Key{"a", 1, int64(-2), uint16(3), true}.Validate())

	err := Key{"a", ""}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKey))
	assert.Contains(t, err.Error(), "component 1")
}

func TestKeyEqualAndPrefix(t *testing.T) {
	k := Key{"users", 7, "name"}

	assert.True(t, k.Equal(Key{"users", int64(7), "name"}))
	assert.False(t, k.Equal(Key{"users", "7", "name"}))
	assert.False(t, k.Equal(Key{"users", 7}))

	assert.True(t, k.HasPrefix(Key{}))
	assert.True(t, k.HasPrefix(Key{"users", uint8(7)}))
	assert.True(t, k.HasPrefix(k))
	assert.False(t, k.HasPrefix(Key{"user"}))
	assert.False(t, Key{"users"}.HasPrefix(k))
}

func TestKeyAppendDoesNotAlias(t *testing.T) {
	base := make(Key, 1, 4)
	base[0] = "a"
	x := base.Append("x")
	y := base.Append("y")
	assert.Equal(t, Key{"a", "x"}, x)
	assert.Equal(t, Key{"a", "y"}, y)
}

func TestKeyRebase(t *testing.T) {
	k := Key{"src", "a", 1}
	assert.Equal(t, Key{"dst", 2, "a", 1}, k.Rebase(Key{"src"}, Key{"dst", 2}))
	assert.Equal(t, Key{"a", 1}, k.Rebase(Key{"src"}, Key{}))
}

func TestKeyFirst(t *testing.T) {
	_, ok := Key{}.First()
	assert.False(t, ok)

	for _, tt := range []struct {
		key  Key
		want string
	}{
		{Key{"users", 1}, "users"},
		{Key{7}, "7"},
		{Key{-7}, "-7"},
		{Key{true}, "true"},
	} {
		got, ok := tt.key.First()
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "users/0000000000000007", Key{"users", 7}.String())
	assert.Equal(t, "", Key{}.String())
	assert.Equal(t, "[a 1.5]", Key{"a", 1.5}.String())
}

func TestKeyUnmarshalJSON(t *testing.T) {
	var k Key
	require.NoError(t, json.Unmarshal([]byte(`["users", 7, true]`), &k))
	assert.Equal(t, Key{"users", 7, true}, k)

	err := json.Unmarshal([]byte(`["a", 1.5]`), &k)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	err = json.Unmarshal([]byte(`["a", ""]`), &k)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &k))
}

func TestStorageErrorIs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewErrorWithCause(ErrReadOnly.Code, "cannot write here", cause)

	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.False(t, errors.Is(err, ErrInvalidKey))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "cannot write here: disk on fire", err.Error())
	assert.Equal(t, ErrClosed.Message, ErrClosed.Error())
}

func TestApplyOptions(t *testing.T) {
	lo := ApplyListOptions()
	assert.Equal(t, ListOptions{PageSize: DefaultPageSize}, lo)

	lo = ApplyListOptions(Reverse(), PageSize(-1))
	assert.True(t, lo.Reverse)
	assert.Equal(t, DefaultPageSize, lo.PageSize)

	assert.Equal(t, 10, ApplyListOptions(PageSize(10)).PageSize)
	assert.Zero(t, ApplySetOptions().ExpireIn)
}

func TestJSONCodec(t *testing.T) {
	c := CodecOrDefault[map[string]int](nil)
	data, err := c.Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	v, err := c.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, v)

	_, err = c.Unmarshal([]byte("{"))
	assert.True(t, errors.Is(err, ErrSerialization))

	_, err = JSONCodec[any]{}.Marshal(func() {})
	assert.True(t, errors.Is(err, ErrSerialization))
}
