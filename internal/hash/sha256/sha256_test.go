package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHasherHashJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		URL   string         `json:"url"`
		Delay int            `json:"delay"`
		Extra map[string]int `json:"extra"`
	}
	h := New()

	first, err := h.HashJSON(payload{URL: "https://a.com/", Delay: 3, Extra: map[string]int{"b": 2, "a": 1}})
	require.NoError(t, err)
	second, err := h.HashJSON(payload{URL: "https://a.com/", Delay: 3, Extra: map[string]int{"a": 1, "b": 2}})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	other, err := h.HashJSON(payload{URL: "https://a.com/", Delay: 4})
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	direct, err := h.Hash([]byte(`{"url":"https://a.com/","delay":4,"extra":null}`))
	require.NoError(t, err)
	require.Equal(t, direct, other)

	_, err = h.HashJSON(func() {})
	require.Error(t, err)
}
