package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeProgress returns 100 * paid / total clamped to [0, 100]. The value
// is not rounded; a request reports 100 only when every unit is paid. A
// request with no total reports 0.
func ComputeProgress(req *SplitRequest) float64 {
	if req == nil || req.TotalAmount <= 0 {
		return 0
	}

	pct := decimal.NewFromInt(req.PaidAmount()).
		Mul(hundred).
		Div(decimal.NewFromInt(req.TotalAmount))

	if pct.IsNegative() {
		return 0
	}
	if pct.GreaterThan(hundred) {
		return 100
	}
	f, _ := pct.Float64()
	return f
}

// NextStatus derives the status implied by the line states: fulfilled when
// every line is paid, partially_fulfilled when some are, otherwise the
// current status. Rejected requests never move.
func NextStatus(req *SplitRequest) Status {
	if req.Status == StatusRejected || len(req.Lines) == 0 {
		return req.Status
	}

	paid := 0
	for _, l := range req.Lines {
		if l.State == LinePaid {
			paid++
		}
	}

	switch {
	case paid == len(req.Lines):
		return StatusFulfilled
	case paid > 0:
		return StatusPartiallyFulfilled
	default:
		return req.Status
	}
}

// Progress builds the derived progress view of req.
func Progress(req *SplitRequest) ProgressView {
	paidLines := 0
	for _, l := range req.Lines {
		if l.State == LinePaid {
			paidLines++
		}
	}
	return ProgressView{
		RequestID:   req.ID,
		Status:      req.Status,
		Percent:     ComputeProgress(req),
		PaidAmount:  req.PaidAmount(),
		TotalAmount: req.TotalAmount,
		PaidLines:   paidLines,
		TotalLines:  len(req.Lines),
	}
}
