package blindspot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/models"
	ts "options-signals/internal/testsupport"
)

// gappedBook has call gamma at 90-97 and 107-110 and none at 98-106.
func gappedBook(t *testing.T, withPuts bool) []models.ContractObservation {
	d := ts.Date(t, "2024-05-01")
	exp := ts.Date(t, "2024-05-17")
	var rows []models.ContractObservation
	for k := 90; k <= 110; k++ {
		g := 0.0
		if k <= 97 || k >= 107 {
			g = 0.05
		}
		rows = append(rows, ts.Obs("IWM", exp, d, models.OptionCall, float64(k), 100, 0, ts.WithGamma(g), ts.WithUnderlying(100)))
		if withPuts {
			rows = append(rows, ts.Obs("IWM", exp, d, models.OptionPut, float64(k), 100, 0, ts.WithGamma(g), ts.WithUnderlying(100)))
		}
	}
	return rows
}

func TestCorridorsFindGap(t *testing.T) {
	corridors := NewDetector(DefaultConfig()).Corridors(gappedBook(t, false), 100)
	require.Len(t, corridors, 1)

	c := corridors[0]
	assert.Equal(t, 98.0, c.From)
	assert.Equal(t, 106.0, c.To)
	assert.Equal(t, 9, c.WidthN)
	// threshold = 27500, smoothed |v| over the run sums to 60000
	assert.InDelta(t, 1-60000.0/27500/9, c.Strength, 1e-9)
}

func TestCorridorsNetVersusGross(t *testing.T) {
	rows := gappedBook(t, true)

	assert.Empty(t, NewDetector(DefaultConfig()).Corridors(rows, 100))

	cfg := DefaultConfig()
	cfg.Mode = ModeGross
	corridors := NewDetector(cfg).Corridors(rows, 100)
	require.Len(t, corridors, 1)
	assert.Equal(t, 98.0, corridors[0].From)
	assert.Equal(t, 106.0, corridors[0].To)
}

func TestCorridorsRejectNarrowRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinWidth = 10
	assert.Empty(t, NewDetector(cfg).Corridors(gappedBook(t, false), 100))
}

func TestMergeCorridors(t *testing.T) {
	in := []models.Corridor{
		{From: 97, To: 99, WidthN: 3, Strength: 0.3},
		{From: 90, To: 92, WidthN: 3, Strength: 0.5},
		{From: 92.4, To: 95, WidthN: 4, Strength: 0.7},
	}
	out := MergeCorridors(in, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, models.Corridor{From: 90, To: 95, WidthN: 7, Strength: 0.7}, out[0])
	assert.Equal(t, models.Corridor{From: 97, To: 99, WidthN: 3, Strength: 0.3}, out[1])
}

func TestComputeSkipsWithoutSpot(t *testing.T) {
	d := ts.Date(t, "2024-05-01")
	rows := []models.ContractObservation{
		ts.Obs("IWM", d.Add(14*24*time.Hour), d, models.OptionCall, 100, 0, 0),
	}
	c, err := chain.Aggregate("IWM", rows)
	require.NoError(t, err)
	assert.Nil(t, NewDetector(DefaultConfig()).Compute(c))
}

func TestCompute(t *testing.T) {
	c, err := chain.Aggregate("IWM", gappedBook(t, false))
	require.NoError(t, err)

	records := NewDetector(DefaultConfig()).Compute(c)
	require.Len(t, records, 1)
	assert.Equal(t, "IWM", records[0].Symbol)
	assert.Len(t, records[0].Corridors, 1)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("gross")
	require.NoError(t, err)
	assert.Equal(t, ModeGross, m)

	_, err = ParseMode("sideways")
	assert.Error(t, err)
}
