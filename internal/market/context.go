package market

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

const (
	historyDepth     = 40
	fetchConcurrency = 3
)

// Context is the engine's view of the market. It is an explicit
// instance owned by the engine; refreshes replace values only on
// success so a flaky feed degrades to stale data instead of gaps.
type Context struct {
	provider  Provider
	cachePath string
	log       zerolog.Logger

	mu           sync.RWMutex
	spot         *models.Spot
	vix          float64
	chain        models.OptionChain
	candles      []models.Candle
	atmStrike    int
	expiry       string
	chainAt      time.Time
	priceHistory []float64
	pcrHistory   []float64
	prevATMCE    float64
	prevATMPE    float64
}

// NewContext creates a market context. A non-empty cachePath enables
// the disk cache.
func NewContext(p Provider, cachePath string, log zerolog.Logger) *Context {
	return &Context{
		provider:  p,
		cachePath: cachePath,
		vix:       15.0,
		log:       log.With().Str("component", "market").Logger(),
	}
}

// DetectExpiry resolves the working expiry, preferring the provider's
// nearest contract over the configured fallback.
func (c *Context) DetectExpiry(ctx context.Context, fallback string) string {
	expiry := c.provider.NearestExpiry(ctx, fallback)
	if expiry == "" {
		expiry = utils.WeeklyExpiry(time.Now()).Format("2006-01-02")
	}
	c.mu.Lock()
	c.expiry = expiry
	c.mu.Unlock()
	c.log.Info().Str("expiry", expiry).Msg("Working expiry set")
	return expiry
}

// Refresh pulls spot, VIX and the option chain concurrently. Each
// fetch that fails leaves the previous value in place. Refresh only
// errors when nothing has ever been fetched and nothing could be.
func (c *Context) Refresh(ctx context.Context) error {
	c.mu.RLock()
	expiry := c.expiry
	c.mu.RUnlock()

	sem := make(chan struct{}, fetchConcurrency)
	var wg sync.WaitGroup

	run := func(fn func()) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn()
		}()
	}

	run(func() {
		spot, err := c.provider.SpotPrice(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("Spot fetch failed, keeping cached")
			return
		}
		c.mu.Lock()
		c.spot = spot
		c.atmStrike = utils.ATMStrike(spot.Price, 50)
		c.priceHistory = appendBounded(c.priceHistory, spot.Price, historyDepth)
		c.mu.Unlock()
	})

	run(func() {
		vix, err := c.provider.IndiaVIX(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("VIX fetch failed, keeping cached")
			return
		}
		c.mu.Lock()
		c.vix = vix
		c.mu.Unlock()
	})

	if expiry != "" {
		run(func() {
			chain, err := c.provider.OptionChain(ctx, expiry)
			if err != nil {
				c.log.Debug().Err(err).Msg("Chain fetch failed, keeping cached")
				return
			}
			c.mu.Lock()
			c.rotateATMPremiums()
			c.chain = chain
			c.chainAt = time.Now()
			c.pcrHistory = appendBounded(c.pcrHistory, chainPCR(chain), historyDepth)
			c.mu.Unlock()
		})
	}

	wg.Wait()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.spot == nil && c.chain == nil {
		return apperrors.NewDataError("market", "NIFTY", "no market data available", apperrors.ErrDataNotFound)
	}
	return nil
}

// RefreshCandles pulls intraday candles for indicator computation.
func (c *Context) RefreshCandles(ctx context.Context, interval string) error {
	candles, err := c.provider.IntradayCandles(ctx, interval)
	if err != nil {
		c.log.Debug().Err(err).Msg("Candle fetch failed, keeping cached")
		return err
	}
	c.mu.Lock()
	c.candles = candles
	c.mu.Unlock()
	return nil
}

// rotateATMPremiums saves the outgoing chain's ATM premiums so OI flow
// direction can compare against them. Caller holds the lock.
func (c *Context) rotateATMPremiums() {
	if c.chain == nil || c.atmStrike == 0 {
		return
	}
	if sq, ok := c.chain[c.atmStrike]; ok {
		if sq.CE != nil {
			c.prevATMCE = sq.CE.LTP
		}
		if sq.PE != nil {
			c.prevATMPE = sq.PE.LTP
		}
	}
}

// Snapshot is an immutable copy of the market view.
type Snapshot struct {
	Spot         *models.Spot
	VIX          float64
	Chain        models.OptionChain
	Candles      []models.Candle
	ATMStrike    int
	Expiry       string
	ChainAt      time.Time
	PriceHistory []float64
	PCRHistory   []float64
	PrevATMCE    float64
	PrevATMPE    float64
}

// Snapshot copies the current market view for lock-free consumption.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		VIX:       c.vix,
		Chain:     c.chain,
		Candles:   c.candles,
		ATMStrike: c.atmStrike,
		Expiry:    c.expiry,
		ChainAt:   c.chainAt,
		PrevATMCE: c.prevATMCE,
		PrevATMPE: c.prevATMPE,
	}
	if c.spot != nil {
		spot := *c.spot
		snap.Spot = &spot
	}
	snap.PriceHistory = append([]float64(nil), c.priceHistory...)
	snap.PCRHistory = append([]float64(nil), c.pcrHistory...)
	return snap
}

// LTP returns the last traded premium for a strike and side, or false
// when the chain has no quote for it.
func (c *Context) LTP(strike int, side models.OptionSide) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chain == nil {
		return 0, false
	}
	q := c.chain.Quote(strike, side)
	if q == nil || q.LTP <= 0 {
		return 0, false
	}
	return q.LTP, true
}

type diskCache struct {
	SpotPrice    float64   `json:"last_spot_price"`
	SpotChange   float64   `json:"last_spot_change"`
	SpotAt       time.Time `json:"last_spot_timestamp"`
	VIX          float64   `json:"last_vix"`
	ATMStrike    int       `json:"last_atm_strike"`
	Expiry       string    `json:"current_expiry"`
	PCRHistory   []float64 `json:"pcr_history"`
	PriceHistory []float64 `json:"price_history"`
}

// SaveCache persists the essentials across restarts.
func (c *Context) SaveCache() error {
	if c.cachePath == "" {
		return nil
	}

	c.mu.RLock()
	dc := diskCache{
		VIX:          c.vix,
		ATMStrike:    c.atmStrike,
		Expiry:       c.expiry,
		PCRHistory:   tail(c.pcrHistory, 10),
		PriceHistory: tail(c.priceHistory, 20),
	}
	if c.spot != nil {
		dc.SpotPrice = c.spot.Price
		dc.SpotChange = c.spot.Change
		dc.SpotAt = c.spot.FetchedAt
	}
	c.mu.RUnlock()

	raw, err := json.MarshalIndent(dc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0755); err != nil {
		return err
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.cachePath)
}

// LoadCache primes the context from disk on startup. Missing or
// corrupt cache files are ignored.
func (c *Context) LoadCache() {
	if c.cachePath == "" {
		return
	}
	raw, err := os.ReadFile(c.cachePath)
	if err != nil {
		return
	}
	var dc diskCache
	if err := json.Unmarshal(raw, &dc); err != nil {
		c.log.Warn().Err(err).Msg("Market cache corrupt, ignoring")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dc.SpotPrice > 0 {
		c.spot = &models.Spot{Price: dc.SpotPrice, Change: dc.SpotChange, FetchedAt: dc.SpotAt}
	}
	if dc.VIX > 0 {
		c.vix = dc.VIX
	}
	c.atmStrike = dc.ATMStrike
	if c.expiry == "" {
		c.expiry = dc.Expiry
	}
	c.pcrHistory = dc.PCRHistory
	c.priceHistory = dc.PriceHistory
	c.log.Info().Float64("spot", dc.SpotPrice).Float64("vix", dc.VIX).Msg("Market cache loaded")
}

func chainPCR(chain models.OptionChain) float64 {
	var ceOI, peOI float64
	for _, sq := range chain {
		if sq.CE != nil {
			ceOI += float64(sq.CE.OI)
		}
		if sq.PE != nil {
			peOI += float64(sq.PE.OI)
		}
	}
	if ceOI == 0 {
		return 1.0
	}
	return peOI / ceOI
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

func tail(s []float64, n int) []float64 {
	if len(s) <= n {
		return append([]float64(nil), s...)
	}
	return append([]float64(nil), s[len(s)-n:]...)
}
