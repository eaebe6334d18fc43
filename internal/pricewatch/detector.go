package pricewatch

import "github.com/shopspring/decimal"

// Kind labels one detected catalog transition.
type Kind string

const (
	KindPriceDrop          Kind = "price_drop"
	KindPriceIncrease      Kind = "price_increase"
	KindTargetPriceReached Kind = "target_price_reached"
	KindBackInStock        Kind = "back_in_stock"
)

// Observation is the before/after state the detector compares.
type Observation struct {
	OldPriceCents    int
	NewPriceCents    int
	OldAvailability  bool
	NewAvailability  bool
	TargetPriceCents *int
}

// Event is one classified transition. Amount fields are populated for
// price movements only.
type Event struct {
	Kind               Kind
	DiscountCents      int
	DiscountPercentage int
}

// Detect classifies the transitions between two price/availability
// observations. The comparison is pure: identical observations always
// yield no events, so re-running a sweep over unchanged state never
// re-fires.
func Detect(obs Observation) []Event {
	var events []Event

	switch {
	case obs.NewPriceCents < obs.OldPriceCents:
		discount := obs.OldPriceCents - obs.NewPriceCents
		events = append(events, Event{
			Kind:               KindPriceDrop,
			DiscountCents:      discount,
			DiscountPercentage: percentOf(discount, obs.OldPriceCents),
		})
	case obs.NewPriceCents > obs.OldPriceCents:
		events = append(events, Event{Kind: KindPriceIncrease})
	}

	if obs.TargetPriceCents != nil && obs.NewPriceCents <= *obs.TargetPriceCents && obs.NewPriceCents != obs.OldPriceCents {
		events = append(events, Event{Kind: KindTargetPriceReached})
	}

	if !obs.OldAvailability && obs.NewAvailability {
		events = append(events, Event{Kind: KindBackInStock})
	}

	return events
}

// DiscountPercentage computes round((original-current)/original*100),
// clamped to zero so a price at or above the original never reports a
// negative discount.
func DiscountPercentage(originalCents, currentCents int) int {
	if originalCents <= 0 || currentCents >= originalCents {
		return 0
	}
	return percentOf(originalCents-currentCents, originalCents)
}

func percentOf(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(part)).
		Div(decimal.NewFromInt(int64(whole))).
		Mul(decimal.NewFromInt(100)).
		Round(0)
	return int(pct.IntPart())
}
