package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

func testRules(t *testing.T) *ExitRules {
	t.Helper()
	rules, err := NewExitRules(config.ExitConfig{
		ProfitTargetPct:   20,
		TimeExit:          "15:15",
		MTMMaxLoss:        -5000,
		MTMProtectTrigger: 5000,
		MTMProtectPct:     0.5,
		MinHoldSeconds:    30,
	})
	require.NoError(t, err)
	return rules
}

func istTime(t *testing.T, clock string) time.Time {
	t.Helper()
	c, err := utils.ParseClock(clock)
	require.NoError(t, err)
	return c.On(time.Date(2026, 8, 28, 0, 0, 0, 0, utils.IndiaLocation))
}

// One trade shape per case: entry 100, qty 65, latch and mark as given.
func ladderTrade(ltp, stop float64, trailing bool) *models.Trade {
	tr := Open(OpenParams{
		TradeID: 1,
		Side:    models.SideCall,
		Strike:  24500,
		LTP:     100,
		Qty:     65,
		Expiry:  "2026-09-01",
		Regime:  normalRegime(),
		Now:     time.Date(2026, 8, 28, 10, 0, 0, 0, utils.IndiaLocation),
	})
	tr.CurrentLTP = ltp
	tr.CurrentStop = stop
	tr.TrailingActive = trailing
	return tr
}

func TestEvaluateLadder(t *testing.T) {
	rules := testRules(t)

	tests := []struct {
		name       string
		clock      string
		trade      *models.Trade
		sessionMTM float64
		peakMTM    float64
		wantExit   bool
		wantReason models.ExitReason
	}{
		{
			name:       "time exit beats everything",
			clock:      "15:20",
			trade:      ladderTrade(60, 75, false), // stop is also breached
			sessionMTM: -9000,
			peakMTM:    0,
			wantExit:   true,
			wantReason: models.ExitTimeExit,
		},
		{
			name:       "time exit fires exactly at the boundary",
			clock:      "15:15",
			trade:      ladderTrade(110, 75, false),
			sessionMTM: 650,
			peakMTM:    650,
			wantExit:   true,
			wantReason: models.ExitTimeExit,
		},
		{
			name:       "mtm max loss beats the premium stop",
			clock:      "11:00",
			trade:      ladderTrade(60, 75, false),
			sessionMTM: -5000,
			peakMTM:    0,
			wantExit:   true,
			wantReason: models.ExitMTMMaxLoss,
		},
		{
			name:       "profit protection after the trigger peak",
			clock:      "11:00",
			trade:      ladderTrade(101, 75, false),
			sessionMTM: 2900,
			peakMTM:    6000, // floor at 3000
			wantExit:   true,
			wantReason: models.ExitMTMProfitProtection,
		},
		{
			name:       "no protection below the trigger peak",
			clock:      "11:00",
			trade:      ladderTrade(101, 75, false),
			sessionMTM: 100,
			peakMTM:    4000,
			wantExit:   false,
		},
		{
			name:       "profit target",
			clock:      "11:00",
			trade:      ladderTrade(125, 75, false),
			sessionMTM: 1625,
			peakMTM:    1625,
			wantExit:   true,
			wantReason: models.ExitProfitTarget,
		},
		{
			name:       "initial stop while latch disarmed",
			clock:      "11:00",
			trade:      ladderTrade(74, 75, false),
			sessionMTM: -1690,
			peakMTM:    0,
			wantExit:   true,
			wantReason: models.ExitInitialStop,
		},
		{
			name:       "trailing stop once the latch is armed",
			clock:      "11:00",
			trade:      ladderTrade(93, 93.6, true),
			sessionMTM: -455,
			peakMTM:    0,
			wantExit:   true,
			wantReason: models.ExitTrailingStop,
		},
		{
			name:       "healthy trade holds",
			clock:      "11:00",
			trade:      ladderTrade(110, 75, false),
			sessionMTM: 650,
			peakMTM:    650,
			wantExit:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, reason := rules.Evaluate(tt.trade, istTime(t, tt.clock), tt.sessionMTM, tt.peakMTM)
			assert.Equal(t, tt.wantExit, exit)
			if tt.wantExit {
				assert.Equal(t, tt.wantReason, reason)
			}
		})
	}
}

func TestWithinMinHold(t *testing.T) {
	rules := testRules(t)
	tr := ladderTrade(100, 75, false)

	assert.True(t, rules.WithinMinHold(tr, tr.EntryTime.Add(10*time.Second)))
	assert.False(t, rules.WithinMinHold(tr, tr.EntryTime.Add(31*time.Second)))
}

func TestNewExitRulesRejectsBadClock(t *testing.T) {
	_, err := NewExitRules(config.ExitConfig{TimeExit: "quarter past three"})
	require.Error(t, err)
}
