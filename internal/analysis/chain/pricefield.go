package chain

import "options-signals/internal/models"

// PriceExtractor reads one candidate price from a contract observation.
type PriceExtractor func(models.ContractObservation) (float64, bool)

// FirstOf evaluates extractors in order and returns the first present value.
func FirstOf(extractors ...PriceExtractor) PriceExtractor {
	return func(o models.ContractObservation) (float64, bool) {
		for _, extract := range extractors {
			if v, ok := extract(o); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// field adapts an optional quote field. Non-positive prices count as absent.
func field(get func(models.Quote) *float64) PriceExtractor {
	return func(o models.ContractObservation) (float64, bool) {
		p := get(o.Quote)
		if p == nil || *p <= 0 {
			return 0, false
		}
		return *p, true
	}
}

func bidAskMidpoint(o models.ContractObservation) (float64, bool) {
	if o.Quote.Bid == nil || o.Quote.Ask == nil || *o.Quote.Bid <= 0 || *o.Quote.Ask <= 0 {
		return 0, false
	}
	return (*o.Quote.Bid + *o.Quote.Ask) / 2, true
}

// PremiumPrice picks the per-contract price used for premium estimates:
// mid, mark, last, close, bid/ask midpoint, bid, ask.
var PremiumPrice = FirstOf(
	field(func(q models.Quote) *float64 { return q.Mid }),
	field(func(q models.Quote) *float64 { return q.Mark }),
	field(func(q models.Quote) *float64 { return q.Last }),
	field(func(q models.Quote) *float64 { return q.Close }),
	bidAskMidpoint,
	field(func(q models.Quote) *float64 { return q.Bid }),
	field(func(q models.Quote) *float64 { return q.Ask }),
)

// Premium estimates traded premium as price * volume * multiplier.
func Premium(o models.ContractObservation) (float64, bool) {
	price, ok := PremiumPrice(o)
	if !ok {
		return 0, false
	}
	return price * float64(o.Volume) * models.ContractMultiplier, true
}
