package urlencoded

import (
	"strings"
	"testing"

	"github.com/indigo-web/tinyweb/http/status"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("no escaping", func(t *testing.T) {
		decoded, _, err := Decode([]byte("hello"), nil)
		require.NoError(t, err)
		require.Equal(t, "hello", string(decoded))
	})

	t.Run("corners", func(t *testing.T) {
		decoded, _, err := Decode([]byte("%2fhello%2f"), nil)
		require.NoError(t, err)
		require.Equal(t, "/hello/", string(decoded))
	})

	t.Run("plus and percent", func(t *testing.T) {
		decoded, _, err := Decode([]byte("a+b%41"), nil)
		require.NoError(t, err)
		require.Equal(t, "a bA", string(decoded))
	})

	t.Run("multiple consecutive", func(t *testing.T) {
		decoded, _, err := Decode([]byte("%2f%20hello++"), nil)
		require.NoError(t, err)
		require.Equal(t, "/ hello  ", string(decoded))
	})

	t.Run("incomplete sequence", func(t *testing.T) {
		_, _, err := Decode([]byte("%2"), nil)
		require.EqualError(t, err, status.ErrURLDecoding.Error())
	})

	t.Run("invalid code", func(t *testing.T) {
		_, _, err := Decode([]byte("%2j"), nil)
		require.EqualError(t, err, status.ErrURLDecoding.Error())
	})

	t.Run("long", func(t *testing.T) {
		src := strings.Repeat("%5faaaaaaaaaa", 300)
		decoded, _, err := Decode([]byte(src), nil)
		require.NoError(t, err)
		require.Equal(t, strings.Repeat("_aaaaaaaaaa", 300), string(decoded))
	})
}

func parse(t *testing.T, body string) map[string]string {
	into := make(map[string]string)
	require.NoError(t, ParseForm(body, into))

	return into
}

func TestParseForm(t *testing.T) {
	t.Run("simple pairs", func(t *testing.T) {
		form := parse(t, "key=value&a=b")
		require.Equal(t, map[string]string{"key": "value", "a": "b"}, form)
		require.Empty(t, form["missing"])
	})

	t.Run("decoded value", func(t *testing.T) {
		require.Equal(t, map[string]string{"q": "a bA"}, parse(t, "q=a+b%41"))
	})

	t.Run("decoded key", func(t *testing.T) {
		require.Equal(t, map[string]string{"user name": "x=y"}, parse(t, "user+name=x%3Dy"))
	})

	t.Run("escaped delimiters are data", func(t *testing.T) {
		require.Equal(t, map[string]string{"a": "1&b=2"}, parse(t, "a=1%26b%3D2"))
	})

	t.Run("only the first equals sign delimits", func(t *testing.T) {
		require.Equal(t, map[string]string{"a": "b=c"}, parse(t, "a=b=c"))
	})

	t.Run("empty and valueless pairs", func(t *testing.T) {
		require.Equal(t, map[string]string{"flag": "", "a": "", "b": "2"}, parse(t, "flag&&a=&b=2&"))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.Equal(t, map[string]string{"a": "2"}, parse(t, "a=1&a=2"))
	})

	t.Run("empty body", func(t *testing.T) {
		require.Empty(t, parse(t, ""))
	})

	t.Run("bad escape", func(t *testing.T) {
		err := ParseForm("a=%4", map[string]string{})
		require.ErrorIs(t, err, status.ErrURLDecoding)
	})
}
