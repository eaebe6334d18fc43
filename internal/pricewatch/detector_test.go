package pricewatch

import "testing"

func kinds(events []Event) []Kind {
	out := make([]Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func hasKind(events []Event, kind Kind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func TestDetect_PriceDrop(t *testing.T) {
	events := Detect(Observation{
		OldPriceCents:   2000,
		NewPriceCents:   1500,
		OldAvailability: true,
		NewAvailability: true,
	})

	if len(events) != 1 || events[0].Kind != KindPriceDrop {
		t.Fatalf("expected single price_drop, got %v", kinds(events))
	}
	if events[0].DiscountCents != 500 {
		t.Fatalf("expected discount 500 cents, got %d", events[0].DiscountCents)
	}
	if events[0].DiscountPercentage != 25 {
		t.Fatalf("expected 25%%, got %d", events[0].DiscountPercentage)
	}
}

func TestDetect_PriceIncrease(t *testing.T) {
	events := Detect(Observation{
		OldPriceCents:   1500,
		NewPriceCents:   2000,
		OldAvailability: true,
		NewAvailability: true,
	})

	if len(events) != 1 || events[0].Kind != KindPriceIncrease {
		t.Fatalf("expected single price_increase, got %v", kinds(events))
	}
}

func TestDetect_TargetPriceReached(t *testing.T) {
	target := 1600
	events := Detect(Observation{
		OldPriceCents:    2000,
		NewPriceCents:    1500,
		OldAvailability:  true,
		NewAvailability:  true,
		TargetPriceCents: &target,
	})

	if !hasKind(events, KindPriceDrop) || !hasKind(events, KindTargetPriceReached) {
		t.Fatalf("expected price_drop and target_price_reached, got %v", kinds(events))
	}
}

func TestDetect_TargetNotRefiredWithoutMovement(t *testing.T) {
	// Price already at target and unchanged: a second sweep over the
	// same state must not re-fire.
	target := 1600
	events := Detect(Observation{
		OldPriceCents:    1500,
		NewPriceCents:    1500,
		OldAvailability:  true,
		NewAvailability:  true,
		TargetPriceCents: &target,
	})

	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", kinds(events))
	}
}

func TestDetect_BackInStock(t *testing.T) {
	events := Detect(Observation{
		OldPriceCents:   1500,
		NewPriceCents:   1500,
		OldAvailability: false,
		NewAvailability: true,
	})

	if len(events) != 1 || events[0].Kind != KindBackInStock {
		t.Fatalf("expected single back_in_stock, got %v", kinds(events))
	}
}

func TestDetect_WentOutOfStockIsSilent(t *testing.T) {
	events := Detect(Observation{
		OldPriceCents:   1500,
		NewPriceCents:   1500,
		OldAvailability: true,
		NewAvailability: false,
	})

	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", kinds(events))
	}
}

func TestDetect_NoChangeIsIdempotent(t *testing.T) {
	obs := Observation{
		OldPriceCents:   1500,
		NewPriceCents:   1500,
		OldAvailability: true,
		NewAvailability: true,
	}
	for i := 0; i < 3; i++ {
		if events := Detect(obs); len(events) != 0 {
			t.Fatalf("run %d: expected no events, got %v", i, kinds(events))
		}
	}
}

func TestDiscountPercentage(t *testing.T) {
	cases := []struct {
		name     string
		original int
		current  int
		want     int
	}{
		{"half off", 2000, 1000, 50},
		{"rounds to nearest", 2999, 2000, 33},
		{"no original price", 0, 1000, 0},
		{"price above original clamps to zero", 1000, 1200, 0},
		{"price equals original", 1000, 1000, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DiscountPercentage(tc.original, tc.current); got != tc.want {
				t.Fatalf("DiscountPercentage(%d, %d) = %d, want %d", tc.original, tc.current, got, tc.want)
			}
		})
	}
}
