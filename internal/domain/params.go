package domain

// StrategyParams is the operator-controlled strategy parameter record,
// kept in the live key-value state so it can be tuned without a redeploy.
type StrategyParams struct {
	Window       int     `json:"window"`        // rolling regression / band window, in bars
	BandStd      float64 `json:"std"`           // band width multiplier k
	TotalCapital float64 `json:"total_capital"` // deployable capital
	PositionVal  float64 `json:"pos_val"`       // number of concurrent position slots
}

// FundPerTrade returns the notional allocated to each leg of a new trade.
func (p StrategyParams) FundPerTrade() float64 {
	if p.PositionVal == 0 {
		return 0
	}
	return p.TotalCapital / p.PositionVal
}
