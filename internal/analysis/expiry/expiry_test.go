package expiry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/calendar"
	"options-signals/internal/models"
	ts "options-signals/internal/testsupport"
)

func strikeAgg(k float64, callOI, putOI int64) chain.StrikeAggregate {
	return chain.StrikeAggregate{Strike: models.NewStrike(k), CallOI: callOI, PutOI: putOI}
}

func TestMaxPainToyBook(t *testing.T) {
	book := []chain.StrikeAggregate{
		strikeAgg(95, 100, 0),
		strikeAgg(100, 50, 50),
		strikeAgg(105, 0, 100),
	}

	// cost(95)  = 0 + (100-95)*50*100 + (105-95)*100*100          = 125000
	// cost(100) = (100-95)*100*100 + (105-100)*100*100             = 100000
	// cost(105) = (105-95)*100*100 + (105-100)*50*100 + 0          = 125000
	assert.InDelta(t, 125000, PayoutAt(95, book), 1e-9)
	assert.InDelta(t, 100000, PayoutAt(100, book), 1e-9)
	assert.InDelta(t, 125000, PayoutAt(105, book), 1e-9)

	candidates := []models.Strike{models.NewStrike(105), models.NewStrike(95), models.NewStrike(100)}
	got := MaxPain(candidates, book)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)

	assert.Nil(t, MaxPain(nil, book))
}

func TestMaxPainTieTakesLowestStrike(t *testing.T) {
	book := []chain.StrikeAggregate{strikeAgg(95, 0, 0), strikeAgg(100, 0, 0)}
	got := MaxPain([]models.Strike{models.NewStrike(100), models.NewStrike(95)}, book)
	require.NotNil(t, got)
	assert.Equal(t, 95.0, *got)
}

func TestSmoothingWindow(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 3}, {5, 3}, {36, 3}, {48, 5}, {60, 5}, {100, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SmoothingWindow(tt.n), "n=%d", tt.n)
	}
}

func TestClusters(t *testing.T) {
	book := []chain.StrikeAggregate{
		strikeAgg(98, 10, 0),
		strikeAgg(99, 10, 10),
		strikeAgg(100, 50, 50),
		strikeAgg(101, 10, 10),
		strikeAgg(102, 0, 10),
	}

	clusters := Clusters(book, 100, 0.005, 6)
	require.Len(t, clusters, 5)
	assert.Equal(t, 100.0, clusters[0].Strike.Float64())
	assert.InDelta(t, 140, clusters[0].Density, 1e-9)
	assert.InDelta(t, 1.0, clusters[0].Score, 1e-12)
	assert.Equal(t, 99.0, clusters[1].Strike.Float64())
	assert.InDelta(t, 0.01, clusters[1].DistanceFromSpot, 1e-12)
	assert.Equal(t, 100, PinScore(clusters))

	for i := 1; i < len(clusters); i++ {
		assert.GreaterOrEqual(t, clusters[i-1].Score, clusters[i].Score)
	}
}

func TestClustersSuppressNearbyStrikes(t *testing.T) {
	book := []chain.StrikeAggregate{
		strikeAgg(499.5, 100, 0),
		strikeAgg(500, 100, 0),
		strikeAgg(500.5, 100, 0),
		strikeAgg(510, 100, 0),
	}
	// gap is max(0.2, 0.002*500) = 1.0
	clusters := Clusters(book, 500, 0.005, 6)
	require.Len(t, clusters, 2)
	assert.Equal(t, 500.0, clusters[0].Strike.Float64())
	assert.Equal(t, 510.0, clusters[1].Strike.Float64())
}

func TestClustersWithoutOpenInterest(t *testing.T) {
	assert.Nil(t, Clusters([]chain.StrikeAggregate{strikeAgg(100, 0, 0)}, 100, 0.005, 6))
	assert.Equal(t, 0, PinScore(nil))
}

func TestComputeSelectsNearExpirations(t *testing.T) {
	d := ts.Date(t, "2024-03-13")
	rows := []models.ContractObservation{
		ts.Obs("QQQ", ts.Date(t, "2024-03-12"), ts.Date(t, "2024-03-12"), models.OptionCall, 100, 10, 0),
		ts.Obs("QQQ", ts.Date(t, "2024-03-15"), d, models.OptionCall, 100, 500, 0, ts.WithUnderlying(100.2)),
		ts.Obs("QQQ", ts.Date(t, "2024-03-15"), d, models.OptionPut, 95, 300, 0, ts.WithUnderlying(100.2)),
		ts.Obs("QQQ", ts.Date(t, "2024-03-15"), d, models.OptionCall, 90, 200, 0, ts.WithUnderlying(100.2)),
		ts.Obs("QQQ", ts.Date(t, "2024-03-22"), d, models.OptionCall, 100, 10, 0, ts.WithUnderlying(100.2)),
	}
	c, err := chain.Aggregate("QQQ", rows)
	require.NoError(t, err)

	records := NewEngine(DefaultConfig(), calendar.Default()).Compute(c)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, ts.Date(t, "2024-03-15"), r.Expiration)
	assert.InDelta(t, 100.2, r.Spot, 1e-9)
	assert.Equal(t, 100.0, r.Clusters[0].Strike.Float64())
	assert.GreaterOrEqual(t, r.PinScore, 0)
	assert.LessOrEqual(t, r.PinScore, 100)
	require.NotNil(t, r.MaxPain)
	// the 90 call is outside the band: it adds cost but is not a candidate
	assert.Equal(t, 95.0, *r.MaxPain)
}

// Property: pin score is an integer in [0, 100] for any OI distribution.
func TestProperty_PinScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("0 <= pin_score <= 100", prop.ForAll(
		func(ois []int64, spot, step float64) bool {
			book := make([]chain.StrikeAggregate, len(ois))
			for i, oi := range ois {
				book[i] = strikeAgg(50+float64(i)*step, oi, oi/2)
			}
			score := PinScore(Clusters(book, spot, 0.005, 6))
			return score >= 0 && score <= 100
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
		gen.Float64Range(0, 200),
		gen.Float64Range(0.5, 10),
	))

	properties.TestingRun(t)
}
