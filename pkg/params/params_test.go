package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseBag(t *testing.T, doc string) Bag {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &n))
	b, err := BagFromNode(&n)
	require.NoError(t, err)
	return b
}

func TestFromNodeScalars(t *testing.T) {
	b := parseBag(t, `
flag: true
count: 42
mode: 0644
name: web
version: 22.04
nothing: ~
`)

	flag, err := b.GetBool("flag")
	require.NoError(t, err)
	assert.True(t, flag)

	count, err := b.GetInt("count")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	mode, err := b.GetText("mode")
	require.NoError(t, err)
	assert.Equal(t, "644", mode)

	name, err := b.GetString("name")
	require.NoError(t, err)
	assert.Equal(t, "web", name)

	version, err := b.GetString("version")
	require.NoError(t, err)
	assert.Equal(t, "22.04", version)

	assert.False(t, b.Has("nothing"))
}

func TestPrefixedIntegersKeepTheirSpelling(t *testing.T) {
	b := parseBag(t, `
octal: 0o644
hex: 0x1A4
`)

	n, err := b.GetInt("octal")
	require.NoError(t, err)
	assert.Equal(t, int64(0o644), n)

	text, err := b.GetText("octal")
	require.NoError(t, err)
	assert.Equal(t, "0o644", text)

	text, err = b.GetText("hex")
	require.NoError(t, err)
	assert.Equal(t, "0x1A4", text)
}

func TestGetStringListAcceptsSingleString(t *testing.T) {
	b := parseBag(t, `
one: curl
many: [curl, git]
empty: []
bad: {a: 1}
`)

	one, err := b.GetStringList("one")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, one)

	many, err := b.GetStringList("many")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl", "git"}, many)

	empty, err := b.GetStringList("empty")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = b.GetStringList("bad")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = b.GetStringList("absent")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestTypedExtractionErrors(t *testing.T) {
	b := Bag{
		"name":  String("x"),
		"count": Int(3),
	}

	_, err := b.GetBool("name")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = b.GetString("count")
	assert.ErrorIs(t, err, ErrWrongType)

	text, err := b.GetText("count")
	require.NoError(t, err)
	assert.Equal(t, "3", text)

	def, err := b.GetBoolOr("missing", true)
	require.NoError(t, err)
	assert.True(t, def)

	_, err = b.GetBoolOr("name", true)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestGetMapList(t *testing.T) {
	b := parseBag(t, `
single: {match: a, replace: b}
list:
  - {match: a}
  - {match: c}
mixed: [{match: a}, 3]
`)

	single, err := b.GetMapList("single")
	require.NoError(t, err)
	require.Len(t, single, 1)
	m, err := single[0].GetString("replace")
	require.NoError(t, err)
	assert.Equal(t, "b", m)

	list, err := b.GetMapList("list")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = b.GetMapList("mixed")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestValueStringIsDeterministic(t *testing.T) {
	v := Map(map[string]Value{
		"b": Int(2),
		"a": Array(String("x"), Bool(false)),
	})
	assert.Equal(t, `{a: ["x", false], b: 2}`, v.String())
	assert.Equal(t, []string{"a", "b"}, v.Keys())
}

func TestDuplicateKeysRejected(t *testing.T) {
	var n yaml.Node
	// yaml.v3 rejects duplicate keys itself when decoding into Go values but
	// keeps them in the node tree.
	require.NoError(t, yaml.Unmarshal([]byte("a: 1\nb: 2\n"), &n))
	n.Content[0].Content = append(n.Content[0].Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "a", Tag: "!!str"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: "3", Tag: "!!int"},
	)
	_, err := FromNode(&n)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := Array(String("foo"))
	b := Array(String("foo"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(String("foo")))
	assert.True(t, Unset().Equal(Value{}))
}
