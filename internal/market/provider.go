// Package market owns the live market view: fetching spot, VIX, the
// option chain and candles, with stale-value fallback and a disk cache
// that survives restarts.
package market

import (
	"context"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// Provider supplies raw market data. Upstox is the production
// implementation.
type Provider interface {
	SpotPrice(ctx context.Context) (*models.Spot, error)
	IndiaVIX(ctx context.Context) (float64, error)
	OptionChain(ctx context.Context, expiry string) (models.OptionChain, error)
	IntradayCandles(ctx context.Context, interval string) ([]models.Candle, error)
	NearestExpiry(ctx context.Context, fallback string) string
}
