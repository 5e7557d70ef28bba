package rating

import (
	"math"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// forecastSteps is how many key buckets one Scale spans. Ratings inside a
	// bucket share a forecast.
	forecastSteps = 1000

	forecastTTL     = 30 * time.Minute
	forecastCleanup = 10 * time.Minute
)

// Forecaster predicts win probabilities. Results are memoized per rating
// bucket and expire, so the memo stays bounded as ratings drift. It is safe
// for concurrent use.
type Forecaster struct {
	params  Params
	quantum float64
	cache   *gocache.Cache
}

// NewForecaster creates a forecaster sharing the engine's params for a domain
func NewForecaster(params Params) *Forecaster {
	return &Forecaster{
		params:  params,
		quantum: params.Scale / forecastSteps,
		cache:   gocache.New(forecastTTL, forecastCleanup),
	}
}

// Forecast returns the probability that the side averaging avgA beats the side
// averaging avgB.
func (f *Forecaster) Forecast(avgA, avgB float64) float64 {
	qa, qb := f.bucket(avgA), f.bucket(avgB)
	key := strconv.FormatInt(qa, 10) + ":" + strconv.FormatInt(qb, 10)
	if v, ok := f.cache.Get(key); ok {
		return v.(float64)
	}
	p := f.params.Expectancy(float64(qa)*f.quantum, float64(qb)*f.quantum)
	f.cache.SetDefault(key, p)
	return p
}

// Cached reports how many forecasts are memoized
func (f *Forecaster) Cached() int { return f.cache.ItemCount() }

func (f *Forecaster) bucket(rating float64) int64 {
	return int64(math.Round(rating / f.quantum))
}
