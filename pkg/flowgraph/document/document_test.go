package document

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	d := New()

	require.NoError(t, d.Put("order.id", 42))
	require.NoError(t, d.Put("order/customer/name", "ada"))
	require.NoError(t, d.Put("total", 9.5))

	id, ok := d.GetInt("order.id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	name, ok := d.GetString("order.customer.name")
	assert.True(t, ok)
	assert.Equal(t, "ada", name)

	total, ok := d.GetFloat("total")
	assert.True(t, ok)
	assert.Equal(t, 9.5, total)

	v, ok := d.Get("order")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"id":       int64(42),
		"customer": map[string]any{"name": "ada"},
	}, v)
}

func TestKeysPreserveInsertionOrder(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("zeta", 1))
	require.NoError(t, d.Put("alpha", 2))
	require.NoError(t, d.Put("mid", 3))
	require.NoError(t, d.Put("zeta", 4))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, d.Keys(""))
	assert.Equal(t, 3, d.Len())
}

func TestLists(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("items", []string{"a", "b"}))
	require.NoError(t, d.Put("items.2", "c"))
	require.NoError(t, d.Put("items.0", "z"))

	v, ok := d.Get("items")
	require.True(t, ok)
	assert.Equal(t, []any{"z", "b", "c"}, v)

	err := d.Put("items.9", "x")
	assert.ErrorIs(t, err, ErrPathConflict)

	assert.True(t, d.Delete("items.1"))
	v, _ = d.Get("items")
	assert.Equal(t, []any{"z", "c"}, v)
}

func TestPutThroughScalarConflicts(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("a", "scalar"))

	err := d.Put("a.b", 1)
	assert.ErrorIs(t, err, ErrPathConflict)

	err = d.Put("", "not a map")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDeleteAndHas(t *testing.T) {
	d := FromMap(map[string]any{"a": map[string]any{"b": 1, "c": 2}})

	assert.True(t, d.Has("a.b"))
	assert.True(t, d.Delete("a.b"))
	assert.False(t, d.Has("a.b"))
	assert.False(t, d.Delete("a.b"))
	assert.False(t, d.Delete(""))
	assert.Equal(t, []string{"c"}, d.Keys("a"))
}

func TestCopyIsDeep(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("src.x", 1))
	require.NoError(t, d.Copy("src", "dst"))
	require.NoError(t, d.Put("src.x", 2))

	x, _ := d.GetInt("dst.x")
	assert.Equal(t, int64(1), x)

	assert.ErrorIs(t, d.Copy("missing", "dst"), ErrInvalidPath)
}

func TestCloneIsIndependent(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("a.b", "x"))

	c := d.Clone()
	require.NoError(t, c.Put("a.b", "y"))

	s, _ := d.GetString("a.b")
	assert.Equal(t, "x", s)
}

func TestNumericConversions(t *testing.T) {
	d := FromMap(map[string]any{"s": "12", "f": 3.0, "h": 2.5, "b": true})

	i, ok := d.GetInt("s")
	assert.True(t, ok)
	assert.Equal(t, int64(12), i)

	i, ok = d.GetInt("f")
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)

	_, ok = d.GetInt("h")
	assert.False(t, ok)

	b, ok := d.GetBool("b")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = d.GetString("b")
	assert.False(t, ok)
}

func TestUnsignedOverflowKeepsSign(t *testing.T) {
	d := New()
	require.NoError(t, d.Put("small", uint64(7)))
	require.NoError(t, d.Put("big", uint64(math.MaxUint64)))

	i, ok := d.GetInt("small")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	f, ok := d.GetFloat("big")
	require.True(t, ok)
	assert.Equal(t, float64(math.MaxUint64), f)
	assert.Positive(t, f)
}

func TestJSONRoundTripKeepsOrder(t *testing.T) {
	input := `{"z":1,"a":{"y":[1,2.5,"x"],"b":null},"m":true}`

	d, err := ParseJSON([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, d.Keys(""))

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Equal(t, input, string(out))

	z, _ := d.GetInt("z")
	assert.Equal(t, int64(1), z)
}

func TestParseJSONRejectsNonObject(t *testing.T) {
	_, err := ParseJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidPath)

	d, err := ParseJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
}

func TestConcurrentWrites(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Put("shared", i)
			_, _ = d.Get("shared")
		}(i)
	}
	wg.Wait()

	assert.True(t, d.Has("shared"))
}
