package trading

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// The stop must never move down, whatever premium path the market
// takes, and the trailing latch must never disarm once set.
func TestProperty_StopOnlyRatchetsUp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	walkGen := gen.SliceOfN(50, gen.Float64Range(1, 500))

	properties.Property("stop monotone and latch one-way over any walk", prop.ForAll(
		func(walk []float64) bool {
			tr := Open(OpenParams{
				TradeID: 1,
				Side:    models.SideCall,
				Strike:  24500,
				LTP:     100,
				Qty:     65,
				Expiry:  "2026-09-01",
				Regime:  normalRegime(),
				Now:     time.Now(),
			})

			prevStop := tr.CurrentStop
			armed := false
			for _, ltp := range walk {
				Advance(tr, ltp)
				if tr.CurrentStop < prevStop {
					return false
				}
				if armed && !tr.TrailingActive {
					return false
				}
				armed = tr.TrailingActive
				prevStop = tr.CurrentStop
			}
			return true
		},
		walkGen,
	))

	properties.Property("peak premium never below any observed mark", prop.ForAll(
		func(walk []float64) bool {
			tr := Open(OpenParams{
				TradeID: 1,
				Side:    models.SidePut,
				Strike:  24400,
				LTP:     100,
				Qty:     65,
				Expiry:  "2026-09-01",
				Regime:  normalRegime(),
				Now:     time.Now(),
			})

			maxSeen := tr.EntryPrice
			for _, ltp := range walk {
				Advance(tr, ltp)
				if ltp > maxSeen {
					maxSeen = ltp
				}
				if tr.HighestPremium < maxSeen {
					return false
				}
			}
			return true
		},
		walkGen,
	))

	properties.TestingRun(t)
}
