package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustGet_registeredLocales(t *testing.T) {
	is := MustGet("is_IS")
	assert.Equal(t, "is", is.Language)
	assert.Equal(t, RackSize, 7)

	en := MustGet("en_US")
	assert.Equal(t, "en", en.Language)
}

func TestMustGet_unregisteredPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustGet("xx_XX")
	})
}

func TestTileSet_bagSizeMatchesCounts(t *testing.T) {
	l := MustGet("is_IS")
	sum := 0
	for _, tile := range l.TileSet.Tiles {
		sum += tile.Count
	}
	assert.Equal(t, l.TileSet.BagSize, sum)
}

func TestTileSet_RackScore(t *testing.T) {
	l := MustGet("en_US")
	// "cat" = c(3) + a(1) + t(1) = 5
	assert.Equal(t, 5, l.TileSet.RackScore("cat"))
	// blanks score 0
	assert.Equal(t, 0, l.TileSet.RackScore("??"))
}

func TestWithLocale_roundTrip(t *testing.T) {
	ctx := WithLocale(t.Context(), "en_US")
	assert.Equal(t, "en_US", FromContext(ctx))
}

func TestFromContext_defaultsWhenUnset(t *testing.T) {
	assert.Equal(t, DefaultLocaleID, FromContext(t.Context()))
}

func TestAlphabet_SortKey_ordersByLocaleAlphabet(t *testing.T) {
	l := MustGet("is_IS")
	// 'þ' sorts after 'y' in the Icelandic order used here.
	a := l.Alphabet.SortKey("þ")
	b := l.Alphabet.SortKey("y")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Greater(t, a[0], b[0])
}
