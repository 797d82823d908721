package values

import (
	"fmt"
	"math"
)

const (
	// MinProfitPercent and MaxProfitPercent bound the signed percentage a
	// Profit value may carry; they are wider than any single validator's
	// acceptance window, which is enforced separately by the validation chain.
	MinProfitPercent = -100.0
	MaxProfitPercent = 100.0
)

// Profit is a signed decimal percentage in [-100, 100]. It carries no unit
// beyond "percent" and is not itself a currency amount.
type Profit struct {
	percent float64
}

// NewProfit validates and constructs a Profit value.
func NewProfit(percent float64) (Profit, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return Profit{}, newConstructionError("profit", "not a finite number")
	}
	if percent < MinProfitPercent || percent > MaxProfitPercent {
		return Profit{}, newConstructionError("profit", fmt.Sprintf("%.4f outside [%.1f, %.1f]", percent, MinProfitPercent, MaxProfitPercent))
	}
	return Profit{percent: percent}, nil
}

// Percent returns the signed percentage value.
func (p Profit) Percent() float64 {
	return p.percent
}

func (p Profit) String() string {
	return fmt.Sprintf("%.2f%%", p.percent)
}
