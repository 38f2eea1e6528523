package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

func trailingState(symbol string) models.TrailingState {
	return models.TrailingState{
		Symbol:       symbol,
		Status:       models.StatusTrailing,
		HighestPrice: decimal.NewFromInt(48_000_000),
		ActiveStop:   decimal.NewFromInt(46_500_000),
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	_, ok := s.Get("KRW-BTC")
	assert.False(t, ok, "fresh store must report absence so the symbol arms anew")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := Open(path)
	require.NoError(t, err)
	want := trailingState("KRW-BTC")
	s.Put(want)
	s.Put(models.TrailingState{Symbol: "KRW-ETH", Status: models.StatusArmed, UpdatedAt: want.UpdatedAt})
	require.NoError(t, s.Save())

	s2, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s2.Len())

	got, ok := s2.Get("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, models.StatusTrailing, got.Status)
	assert.True(t, got.ActiveStop.Equal(want.ActiveStop))
	assert.True(t, got.HighestPrice.Equal(want.HighestPrice))
}

func TestPutOverwrites(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	s.Put(models.TrailingState{Symbol: "KRW-BTC", Status: models.StatusArmed})
	s.Put(trailingState("KRW-BTC"))

	got, ok := s.Get("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, models.StatusTrailing, got.Status)
	assert.Equal(t, 1, s.Len())
}

func TestPruneDropsSymbolsWithoutBalance(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	s.Put(trailingState("KRW-BTC"))
	s.Put(trailingState("KRW-ETH"))
	s.Put(models.TrailingState{Symbol: "KRW-XRP", Status: models.StatusExited})

	pruned := s.Prune(map[string]bool{"KRW-BTC": true})
	assert.ElementsMatch(t, []string{"KRW-ETH", "KRW-XRP"}, pruned)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Get("KRW-XRP")
	assert.False(t, ok, "a pruned EXITED symbol re-arms if it ever comes back")
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
