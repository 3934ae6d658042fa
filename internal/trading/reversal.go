package trading

import (
	"fmt"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// DetectReversal scans the current indicator snapshot for signs that
// the move backing an open trade is fading. Two or more warnings count
// as a reversal.
func DetectReversal(in models.Indicators, t *models.Trade) (bool, []string) {
	var warnings []string

	if t.Side == models.SideCall {
		if in.RSI > 70 {
			warnings = append(warnings, fmt.Sprintf("RSI overbought (%.1f > 70)", in.RSI))
		}
		if in.CEOIChange > 5000 && in.PEOIChange < 0 {
			warnings = append(warnings, "OI flow reversing")
		}
		if in.Resistance > 0 && in.Spot >= in.Resistance*0.995 {
			warnings = append(warnings, fmt.Sprintf("near resistance (%.0f vs %.0f)", in.Spot, in.Resistance))
		}
		if in.Alpha1Call < t.Metrics.Alpha1*0.75 {
			warnings = append(warnings, fmt.Sprintf("alpha deteriorating (%.2f vs %.2f)", in.Alpha1Call, t.Metrics.Alpha1))
		}
		if in.VWAP == models.VWAPBelow {
			warnings = append(warnings, "crossed below VWAP")
		}
	} else {
		if in.RSI < 30 {
			warnings = append(warnings, fmt.Sprintf("RSI oversold (%.1f < 30)", in.RSI))
		}
		if in.PEOIChange > 5000 && in.CEOIChange < 0 {
			warnings = append(warnings, "OI flow reversing")
		}
		if in.Support > 0 && in.Spot <= in.Support*1.005 {
			warnings = append(warnings, fmt.Sprintf("near support (%.0f vs %.0f)", in.Spot, in.Support))
		}
		if in.Alpha1Put < t.Metrics.Alpha1*0.75 {
			warnings = append(warnings, "alpha deteriorating")
		}
		if in.VWAP == models.VWAPAbove {
			warnings = append(warnings, "crossed above VWAP")
		}
	}

	return len(warnings) >= 2, warnings
}
