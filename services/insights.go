package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"liquorbot/models"
	"liquorbot/utils"
)

const topScoredCount = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByCategory: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var total float64
	report.MinPrice = listings[0].Price
	report.MaxPrice = listings[0].Price

	for _, l := range listings {
		total += l.Price
		if l.Price < report.MinPrice {
			report.MinPrice = l.Price
		}
		if l.Price > report.MaxPrice {
			report.MaxPrice = l.Price
		}
		if report.BestValue == nil || l.Value > report.BestValue.Value {
			report.BestValue = l
		}
		if inStockAnywhere(l) {
			report.InStockListings++
		}
		if l.Category != "" {
			report.ListingsByCategory[l.Category]++
		}
	}

	report.AveragePrice = round2(total / float64(len(listings)))
	report.MinPrice = round2(report.MinPrice)
	report.MaxPrice = round2(report.MaxPrice)

	// Top 5 by composite score
	scored := append([]*models.Listing(nil), listings...)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].AdjValue > scored[j].AdjValue
	})
	if len(scored) > topScoredCount {
		scored = scored[:topScoredCount]
	}
	report.TopScored = scored

	s.logger.Debug("[insights] %d listings, %d in stock", report.TotalListings, report.InStockListings)
	return report
}

func inStockAnywhere(l *models.Listing) bool {
	for _, stock := range l.Inventory {
		if stock > 0 {
			return true
		}
	}
	return false
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 CATALOG CACHE INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Cached listings   : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  In stock anywhere : \033[1m%d\033[0m\n", r.InStockListings)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (before tax)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.TotalListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m$%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m$%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m$%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.BestValue != nil {
		fmt.Fprintf(w, "\033[1;33m  Best Value\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.BestValue.Name, 50))
		fmt.Fprintf(w, "  Price : $%.2f\n", r.BestValue.Price)
		fmt.Fprintf(w, "  Value : \033[1;32m%.1f\033[0m\n", r.BestValue.Value)
		fmt.Fprintln(w)
	}

	// ── TOP 5 BY SCORE ───────────────────────────────────────────────────
	fmt.Fprintf(w, "\033[1;33m  Top %d by Score\033[0m\n", topScoredCount)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopScored) == 0 {
		fmt.Fprintf(w, "  No listings cached\n")
	} else {
		for i, l := range r.TopScored {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%.1f\033[0m\n",
				i+1, truncate(l.Name, 38), l.AdjValue)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByCategory) == 0 {
		fmt.Fprintf(w, "  No category data\n")
	} else {
		type catCount struct {
			cat   string
			count int
		}
		var cats []catCount
		for cat, cnt := range r.ListingsByCategory {
			cats = append(cats, catCount{cat, cnt})
		}
		sort.Slice(cats, func(i, j int) bool {
			if cats[i].count != cats[j].count {
				return cats[i].count > cats[j].count
			}
			return cats[i].cat < cats[j].cat
		})
		for _, cc := range cats {
			bar := strings.Repeat("█", min(cc.count, 40))
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(cc.cat, 28), bar, cc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
