// Package trading implements the position lifecycle: regime-adaptive
// risk parameters, the premium trailing stop and the exit ladder.
package trading

import (
	"sort"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// defaultRegime covers a missing band table.
var defaultRegime = models.RegimeParams{
	Name:                "normal",
	InitialStopFrac:     0.25,
	TrailActivationFrac: 0.22,
	TrailDistanceFrac:   0.28,
}

// SelectRegime classifies a VIX reading against the configured bands.
// Bands are scanned by ascending ceiling and the first band whose
// ceiling covers the reading wins. A reading above every ceiling falls
// into the widest band; no bands at all yield the normal defaults.
func SelectRegime(vix float64, bands map[string]config.RegimeBand) models.RegimeParams {
	if len(bands) == 0 {
		return defaultRegime
	}

	type namedBand struct {
		name string
		band config.RegimeBand
	}
	ordered := make([]namedBand, 0, len(bands))
	for name, band := range bands {
		ordered = append(ordered, namedBand{name, band})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].band.MaxVIX < ordered[j].band.MaxVIX
	})

	for _, nb := range ordered {
		if vix <= nb.band.MaxVIX {
			return toParams(nb.name, nb.band)
		}
	}
	last := ordered[len(ordered)-1]
	return toParams(last.name, last.band)
}

func toParams(name string, b config.RegimeBand) models.RegimeParams {
	return models.RegimeParams{
		Name:                name,
		InitialStopFrac:     b.InitialSLPct,
		TrailActivationFrac: b.TrailActivation,
		TrailDistanceFrac:   b.TrailDistance,
	}
}
