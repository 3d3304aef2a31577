package services

import (
	"bytes"
	"strings"
	"testing"

	"liquorbot/models"
	"liquorbot/utils"
)

func sampleListings() []*models.Listing {
	return []*models.Listing{
		{SKU: 1, Name: "London Dry", Category: "spirits", Price: 20, Value: 1.5, AdjValue: 67, Inventory: map[int]int{101: 2}},
		{SKU: 2, Name: "Lager 24pk", Category: "beer", Price: 45, Value: 2.4, AdjValue: 95.2, Inventory: map[int]int{101: 0}},
		{SKU: 3, Name: "Vodka", Category: "spirits", Price: 30, Value: 1.3, AdjValue: 50.1, Inventory: map[int]int{}},
		{SKU: 4, Name: "Red Blend", Category: "wine", Price: 15, Value: 1.2, AdjValue: 48, Inventory: map[int]int{102: 5}},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 4 {
		t.Errorf("TotalListings: got %d, want 4", r.TotalListings)
	}
	if r.InStockListings != 2 {
		t.Errorf("InStockListings: got %d, want 2", r.InStockListings)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	r := svc.Generate(sampleListings())
	if r.AveragePrice != 27.5 {
		t.Errorf("AveragePrice: got %.2f, want 27.50", r.AveragePrice)
	}
	if r.MinPrice != 15 {
		t.Errorf("MinPrice: got %.2f, want 15", r.MinPrice)
	}
	if r.MaxPrice != 45 {
		t.Errorf("MaxPrice: got %.2f, want 45", r.MaxPrice)
	}
}

func TestInsightBestValueAndTopScored(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	r := svc.Generate(sampleListings())
	if r.BestValue == nil || r.BestValue.SKU != 2 {
		t.Fatalf("BestValue: got %+v, want sku 2", r.BestValue)
	}
	if len(r.TopScored) != 4 {
		t.Fatalf("TopScored len: got %d, want 4", len(r.TopScored))
	}
	if r.TopScored[0].SKU != 2 || r.TopScored[3].SKU != 4 {
		t.Errorf("TopScored order: got %d..%d", r.TopScored[0].SKU, r.TopScored[3].SKU)
	}
}

func TestInsightCategoryGrouping(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	r := svc.Generate(sampleListings())
	if r.ListingsByCategory["spirits"] != 2 {
		t.Errorf("spirits count: got %d, want 2", r.ListingsByCategory["spirits"])
	}
	if r.ListingsByCategory["wine"] != 1 {
		t.Errorf("wine count: got %d, want 1", r.ListingsByCategory["wine"])
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	r := svc.Generate(nil)
	if r.TotalListings != 0 || r.BestValue != nil {
		t.Errorf("expected an empty report for empty input")
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(utils.Nop())
	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(sampleListings()))

	out := buf.String()
	for _, want := range []string{"Lager 24pk", "spirits", "$27.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
