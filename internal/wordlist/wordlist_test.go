package wordlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionaryMembership(t *testing.T) {
	ctx := context.Background()
	d := NewDictionary()

	ok, err := d.IsValidWord(ctx, "crane")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.IsValidWord(ctx, "ZZZZZ")
	require.NoError(t, err)
	assert.False(t, ok)

	d.Add("zzzzz")
	ok, err = d.IsValidWord(ctx, "ZZZZZ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProviderDecoysExcludeAnswer(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(1)

	answer, err := p.PickAnswer(ctx)
	require.NoError(t, err)
	require.Len(t, answer, 5)

	decoys, err := p.Decoys(ctx, answer, 8)
	require.NoError(t, err)
	require.Len(t, decoys, 8)

	seen := make(map[string]struct{}, len(decoys))
	for _, w := range decoys {
		assert.NotEqual(t, answer, w)
		_, dup := seen[w]
		assert.False(t, dup, "duplicate decoy %s", w)
		seen[w] = struct{}{}
	}
}
