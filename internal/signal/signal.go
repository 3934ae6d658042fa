// Package signal turns indicator snapshots into entry decisions.
package signal

import (
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// Decision is a concrete entry recommendation. A nil Decision means no
// entry this cycle.
type Decision struct {
	Side       models.OptionSide
	Strike     int
	PriceHint  float64
	Confidence float64
	Path       string // BUYING or WRITING
}

// Input is everything a generator may consult for one cycle.
type Input struct {
	Indicators models.Indicators
	Chain      models.OptionChain
	ATMStrike  int
	VIX        float64
	DTE        int
}

// Generator evaluates one cycle of market data. Implementations must
// be side-effect free; the engine owns all state changes.
type Generator interface {
	Generate(in Input) *Decision
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(in Input) *Decision

// Generate calls f.
func (f GeneratorFunc) Generate(in Input) *Decision {
	return f(in)
}

// None never signals. It is the default when the engine runs purely as
// a trade manager.
var None Generator = GeneratorFunc(func(Input) *Decision { return nil })
