package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/docdb/common"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath("c.d")
	require.NoError(t, err)
	assert.Equal(t, FieldPath{"c", "d"}, p)
	assert.Equal(t, "c.d", p.String())

	for _, bad := range []string{"", "$a", "a..b", ".a", "a."} {
		_, err := ParsePath(bad)
		assert.True(t, common.IsCode(err, common.InvalidExpressionError), bad)
	}
}

func TestFieldPath_Prefix(t *testing.T) {
	assert.True(t, MustParsePath("a").IsPrefixOf(MustParsePath("a.b")))
	assert.True(t, MustParsePath("a.b").IsPrefixOf(MustParsePath("a.b")))
	assert.False(t, MustParsePath("ab").IsPrefixOf(MustParsePath("a.b")))
	assert.False(t, MustParsePath("a.b").IsPrefixOf(MustParsePath("a")))
}

func TestIsPositional(t *testing.T) {
	assert.True(t, IsPositional("0"))
	assert.True(t, IsPositional("12"))
	assert.False(t, IsPositional("01"))
	assert.False(t, IsPositional("a1"))
	assert.False(t, IsPositional(""))

	n, ok := Positional("12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	_, ok = Positional("99999999999999999999")
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	doc := MustParseDocument(`{"a": 1, "c": {"d": 1}, "e": ["elem1"], "arr": [{"x": 1}, 5, {"x": [2, 3]}, {"y": 0}]}`)
	tests := []struct {
		path string
		want string
	}{
		{"a", `1`},
		{"c.d", `1`},
		{"c.z", `undefined`},
		{"a.b", `undefined`},
		{"e", `["elem1"]`},
		// Numeric components are field names for expressions.
		{"e.0", `[]`},
		{"arr.x", `[1,[2,3]]`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Lookup(doc, MustParsePath(tt.path)).String())
		})
	}
}

func TestResolveQueryPath(t *testing.T) {
	doc := MustParseDocument(`{"a": [1, 2], "e": ["elem1"], "o": [{"k": 1}, {"k": [4]}], "s": 3}`)
	render := func(vals []Value) []string {
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = v.String()
		}
		return out
	}

	assert.Equal(t, []string{`[1,2]`, `1`, `2`}, render(ResolveQueryPath(doc, MustParsePath("a"))))
	assert.Equal(t, []string{`"elem1"`}, render(ResolveQueryPath(doc, MustParsePath("e.0"))))
	assert.Equal(t, []string{`1`, `[4]`, `4`}, render(ResolveQueryPath(doc, MustParsePath("o.k"))))
	assert.Equal(t, []string{`undefined`}, render(ResolveQueryPath(doc, MustParsePath("s.t"))))
	assert.Equal(t, []string{`undefined`}, render(ResolveQueryPath(doc, MustParsePath("nope"))))
}

func TestRecordStore(t *testing.T) {
	store := NewRecordStore()
	original := MustParseDocument(`{"a": 1}`)
	rid1 := store.Insert(original)
	rid2 := store.Insert(MustParseDocument(`{"a": 2}`))
	assert.Less(t, int64(rid1), int64(rid2))
	assert.Equal(t, 2, store.Len())

	// The store keeps its own copy.
	original.Set("a", NewInt(100))
	got, ok := store.Get(rid1)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, got.String())

	snap := store.Snapshot()
	store.Insert(MustParseDocument(`{"a": 3}`))
	_, ok = store.Delete(rid1)
	require.True(t, ok)

	var seen []string
	it := snap.Iterator()
	for it.Next() {
		seen = append(seen, it.Document().String())
	}
	it.Close()
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, seen, "snapshot is unaffected by later writes")
	assert.Equal(t, 2, store.Len())

	_, ok = store.Get(rid1)
	assert.False(t, ok)
}
