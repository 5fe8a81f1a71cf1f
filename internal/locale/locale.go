// Package locale implements the per-locale registry of spec §4.9: the
// alphabet, tile set, vocabulary, and board type that scope game rules
// for a given region. Grounded on original_source/src/languages.py's
// Alphabet/TileSet classes and current_locale ContextVar, translated to
// an explicit-context Go registry (the corpus's idiom for scoped values
// is context.Context, not a goroutine-local ContextVar equivalent).
package locale

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tile holds the point value and bag composition count of one letter.
type Tile struct {
	Letter string
	Score  int
	Count  int
}

// TileSet is the point values, bag composition, and bag size for a locale.
type TileSet struct {
	Tiles   []Tile
	BagSize int
}

// ScoreOf returns the point value of a single letter, or 0 if unknown
// (blanks score 0).
func (t TileSet) ScoreOf(letter string) int {
	for _, tile := range t.Tiles {
		if tile.Letter == letter {
			return tile.Score
		}
	}
	return 0
}

// RackScore returns the sum of point values of every tile in rack,
// treating '?' (blank) as 0, per spec §4.5 finalization rack-leave rule.
func (t TileSet) RackScore(rack string) int {
	sum := 0
	for _, r := range rack {
		sum += t.ScoreOf(string(r))
	}
	return sum
}

// Alphabet is the ordered letter set and sort order for a locale.
type Alphabet struct {
	Order string // canonical letter order, lowercase
	Upper string // matching uppercase order
}

// SortKey returns a value suitable for sorting words in alphabet order;
// unknown runes sort after all known letters.
func (a Alphabet) SortKey(s string) []int {
	index := make(map[rune]int, len(a.Order))
	for i, r := range a.Order {
		index[r] = i
	}
	key := make([]int, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if v, ok := index[r]; ok {
			key = append(key, v)
		} else {
			key = append(key, len(a.Order)+int(r))
		}
	}
	return key
}

// Locale is the tuple of (language, alphabet, tile set, vocabulary, board
// type) controlling game rules for a region (spec GLOSSARY "Locale").
type Locale struct {
	ID            string // e.g. "is_IS"
	Language      string // e.g. "is"
	Alphabet      Alphabet
	TileSet       TileSet
	VocabularyMain string
	VocabularySubsets map[string]string
	BoardType     string
}

// RackSize is the number of tiles a player's rack holds, per spec GLOSSARY.
const RackSize = 7

type registry struct {
	locales map[string]Locale
}

var global = &registry{locales: map[string]Locale{}}

// Register adds a locale to the global registry. Intended to be called
// from package init only; the registry is read-only after startup (spec §5).
func Register(l Locale) {
	global.locales[l.ID] = l
}

// MustRegister is Register but panics on a duplicate id, catching a
// startup wiring mistake immediately.
func MustRegister(l Locale) {
	if _, exists := global.locales[l.ID]; exists {
		panic(fmt.Sprintf("locale: duplicate registration for %q", l.ID))
	}
	Register(l)
}

// Get returns the registered locale by id.
func Get(id string) (Locale, bool) {
	l, ok := global.locales[id]
	return l, ok
}

// MustGet is Get but panics if the locale is unregistered.
func MustGet(id string) Locale {
	l, ok := Get(id)
	if !ok {
		panic(fmt.Sprintf("locale: unregistered locale %q", id))
	}
	return l
}

// DefaultLocaleID is the fallback locale, matching original_source's
// DEFAULT_LOCALE = "is_IS".
const DefaultLocaleID = "is_IS"

type contextKey struct{}

// WithLocale returns a context carrying the current locale id, the Go
// translation of languages.py's current_locale ContextVar.
func WithLocale(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the locale id carried by ctx, or DefaultLocaleID if
// none was set.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultLocaleID
}

func init() {
	MustRegister(icelandic())
	MustRegister(english())
}

func icelandic() Locale {
	// Grounded on original_source/src/languages.py _IcelandicAlphabet /
	// NewTileSet (the "new" tile set is the one in active use).
	order := "aábdðeéfghiíjklmnoóprstuúvxyýþæö"
	upper := "AÁBDÐEÉFGHIÍJKLMNOÓPRSTUÚVXYÝÞÆÖ"
	tiles := []Tile{
		{"a", 1, 10}, {"á", 4, 2}, {"b", 6, 1}, {"d", 4, 2}, {"ð", 2, 5},
		{"e", 1, 6}, {"é", 6, 1}, {"f", 3, 3}, {"g", 2, 4}, {"h", 3, 2},
		{"i", 1, 8}, {"í", 4, 2}, {"j", 5, 1}, {"k", 2, 3}, {"l", 2, 3},
		{"m", 2, 3}, {"n", 1, 8}, {"o", 3, 3}, {"ó", 6, 1}, {"p", 4, 1},
		{"r", 1, 7}, {"s", 1, 6}, {"t", 1, 5}, {"u", 1, 6}, {"ú", 8, 1},
		{"v", 3, 2}, {"x", 10, 1}, {"y", 7, 1}, {"ý", 9, 1}, {"þ", 4, 1},
		{"æ", 5, 1}, {"ö", 7, 1}, {"?", 0, 2},
	}
	return Locale{
		ID:             "is_IS",
		Language:       "is",
		Alphabet:       Alphabet{Order: order, Upper: upper},
		TileSet:        TileSet{Tiles: tiles, BagSize: sumCounts(tiles)},
		VocabularyMain: "ordalisti",
		BoardType:      "explo",
	}
}

func english() Locale {
	// Grounded on original_source/src/languages.py EnglishTileSet (the
	// standard Scrabble-equivalent distribution), registered to exercise
	// the registry's pluggability (see DESIGN.md Open Question decision).
	order := "abcdefghijklmnopqrstuvwxyz"
	upper := strings.ToUpper(order)
	tiles := []Tile{
		{"e", 1, 12}, {"a", 1, 9}, {"i", 1, 9}, {"o", 1, 8}, {"n", 1, 6},
		{"r", 1, 6}, {"t", 1, 6}, {"l", 1, 4}, {"s", 1, 4}, {"u", 1, 4},
		{"d", 2, 4}, {"g", 2, 3}, {"b", 3, 2}, {"c", 3, 2}, {"m", 3, 2},
		{"p", 3, 2}, {"f", 4, 2}, {"h", 4, 2}, {"v", 4, 2}, {"w", 4, 2},
		{"y", 4, 2}, {"k", 5, 1}, {"j", 8, 1}, {"x", 8, 1}, {"q", 10, 1},
		{"z", 10, 1}, {"?", 0, 2},
	}
	return Locale{
		ID:             "en_US",
		Language:       "en",
		Alphabet:       Alphabet{Order: order, Upper: upper},
		TileSet:        TileSet{Tiles: tiles, BagSize: sumCounts(tiles)},
		VocabularyMain: "twl",
		BoardType:      "standard",
	}
}

func sumCounts(tiles []Tile) int {
	n := 0
	for _, t := range tiles {
		n += t.Count
	}
	return n
}

// SortLocales returns the registered locale ids in a stable, sorted order.
func SortLocales() []string {
	ids := make([]string, 0, len(global.locales))
	for id := range global.locales {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
