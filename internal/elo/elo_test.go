package elo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mideind/explo/internal/store/model"
)

func TestAdjustment_equalRatingsWinnerGainsLoserLoses(t *testing.T) {
	adjA, adjB := Adjustment(1200, 1200, 400, 300, true, true)
	assert.Positive(t, adjA)
	assert.Negative(t, adjB)
	assert.Equal(t, adjA, -adjB)
}

func TestAdjustment_drawIsZeroSumAtEqualRating(t *testing.T) {
	adjA, adjB := Adjustment(1200, 1200, 300, 300, true, true)
	assert.Equal(t, 0, adjA)
	assert.Equal(t, 0, adjB)
}

func TestAdjustment_tiedScoreButZeroTotalIsNonCounting(t *testing.T) {
	adjA, adjB := Adjustment(1200, 1200, 0, 0, true, true)
	assert.Equal(t, 0, adjA)
	assert.Equal(t, 0, adjB)
}

func TestAdjustment_beginnerUsesLargerK(t *testing.T) {
	// A beginner losing to an established player of equal rating loses
	// more than K=20 would produce, since the beginner's K=32 applies to
	// its own adjustment.
	_, adjBeginnerLoss := Adjustment(1200, 1200, 400, 100, true, false)
	assert.InDelta(t, -16, adjBeginnerLoss, 0.5)
}

func TestAdjustment_establishedBeatsBeginnerForcedZero(t *testing.T) {
	adjEstablished, adjBeginner := Adjustment(1200, 1200, 400, 100, true, false)
	assert.Equal(t, 0, adjEstablished)
	assert.NotEqual(t, 0, adjBeginner)
}

func TestAdjustment_neverDrivesRatingNegative(t *testing.T) {
	adjA, _ := Adjustment(5, 1200, 0, 400, true, true)
	assert.GreaterOrEqual(t, adjA+5, 0)
}

func TestIsEstablished(t *testing.T) {
	assert.False(t, IsEstablished(EstablishedMark))
	assert.True(t, IsEstablished(EstablishedMark+1))
}

func TestNonCounting_zeroScoreGame(t *testing.T) {
	g := model.Game{Score0: 0, Score1: 0}
	assert.True(t, NonCounting(g))
}

func TestNonCounting_firstMoveResignation(t *testing.T) {
	g := model.Game{
		Score0: 0, Score1: 50,
		Moves: []model.Move{{Tiles: model.ResignTiles}},
	}
	assert.True(t, NonCounting(g))
}

func TestNonCounting_secondMoveResignation(t *testing.T) {
	g := model.Game{
		Score0: 20, Score1: 50,
		Moves: []model.Move{
			{Tiles: "abc", Coord: "8H", Score: 20},
			{Tiles: model.ResignTiles},
		},
	}
	assert.True(t, NonCounting(g))
}

func TestNonCounting_normalGameCounts(t *testing.T) {
	g := model.Game{
		Score0: 200, Score1: 180,
		Moves: []model.Move{
			{Tiles: "abc", Coord: "8H", Score: 20},
			{Tiles: "def", Coord: "9H", Score: 18},
			{Tiles: model.PassTiles},
		},
	}
	assert.False(t, NonCounting(g))
}
