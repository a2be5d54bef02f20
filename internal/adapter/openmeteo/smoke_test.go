//go:build openmeteo

package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/observability"
)

// These tests hit the real Open-Meteo API and need network access.
// Run with: go test -tags=openmeteo ./internal/adapter/openmeteo/ -v -count=1

func smokeClient() *Client {
	return NewClient(Options{
		Latitude:  0.5417,
		Longitude: 123.0568,
		Timezone:  "Asia/Jakarta",
		Timeout:   10 * time.Second,
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ForecastToday(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	today := time.Now().In(loc)

	fv, err := smokeClient().Forecast(context.Background(), today)
	require.NoError(t, err)

	for _, f := range []string{domain.FeatureTMin, domain.FeatureTMax, domain.FeatureTAvg, domain.FeatureWind, domain.FeatureHumidity} {
		assert.Contains(t, fv, f)
	}
	assert.GreaterOrEqual(t, fv[domain.FeatureTMax], fv[domain.FeatureTMin])
}

func TestSmoke_ForecastFarFuture(t *testing.T) {
	_, err := smokeClient().Forecast(context.Background(), time.Now().AddDate(5, 0, 0))
	require.ErrorIs(t, err, domain.ErrDateUnavailable)
}

func TestSmoke_CachedForecaster(t *testing.T) {
	cached := NewCachedForecaster(smokeClient(), 4, time.Minute, observability.NewMetricsForTesting())
	d := time.Now().AddDate(0, 0, 1)

	r1, err := cached.Forecast(context.Background(), d)
	require.NoError(t, err)
	r2, err := cached.Forecast(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
