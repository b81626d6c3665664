// Package demo produces a synthetic product dataset shaped like the real
// sheets: per-day ad funnel metrics, total sales, and eligibility state per
// item. Useful for local stacks and demos without fetching the live CSVs.
package demo

import (
	"math"
	"math/rand"
	"time"
)

type Config struct {
	Seed      int64
	Items     int
	Days      int
	StartDate time.Time
}

type EligibilityRow struct {
	CheckedAtUTC string
	ItemID       int
	Eligible     bool
	Message      string
}

type TotalSalesRow struct {
	Date              string
	ItemID            int
	TotalSales        float64
	TotalUnitsOrdered int
}

type AdSalesRow struct {
	Date        string
	ItemID      int
	AdSales     float64
	Impressions int
	AdSpend     float64
	Clicks      int
	UnitsSold   int
}

type Dataset struct {
	Eligibility []EligibilityRow
	TotalSales  []TotalSalesRow
	AdSales     []AdSalesRow
}

// itemTraits pins each item's behavior so a seed always yields the same
// dataset.
type itemTraits struct {
	popularity float64
	price      float64
	ctr        float64
	cvr        float64
	cpc        float64
}

type Generator struct {
	rnd *rand.Rand
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	if cfg.Items <= 0 {
		cfg.Items = 30
	}
	if cfg.Days <= 0 {
		cfg.Days = 14
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Generator{rnd: rand.New(rand.NewSource(cfg.Seed)), cfg: cfg}
}

// Dataset builds the full synthetic dataset. Two generators with the same
// config produce identical output.
func (g *Generator) Dataset() Dataset {
	traits := make([]itemTraits, g.cfg.Items)
	for i := range traits {
		traits[i] = itemTraits{
			popularity: 0.5 + g.rnd.Float64()*1.5,
			price:      round2(8 + g.rnd.Float64()*80),
			ctr:        0.01 + g.rnd.Float64()*0.04,
			cvr:        0.05 + g.rnd.Float64()*0.15,
			cpc:        0.2 + g.rnd.Float64()*1.3,
		}
	}

	var ds Dataset
	for day := 0; day < g.cfg.Days; day++ {
		date := g.cfg.StartDate.AddDate(0, 0, day)
		dateText := date.Format("2006-01-02")
		season := weekdayFactor(date.Weekday())
		for item := 0; item < g.cfg.Items; item++ {
			tr := traits[item]
			impressions := int(tr.popularity * season * (800 + g.rnd.Float64()*400))
			clicks := int(float64(impressions) * tr.ctr)
			unitsSold := int(float64(clicks) * tr.cvr)
			adSales := round2(float64(unitsSold) * tr.price)
			adSpend := round2(float64(clicks) * tr.cpc)

			organic := int(float64(unitsSold) * (0.5 + g.rnd.Float64()))
			totalUnits := unitsSold + organic
			totalSales := round2(float64(totalUnits) * tr.price)

			ds.AdSales = append(ds.AdSales, AdSalesRow{
				Date:        dateText,
				ItemID:      item,
				AdSales:     adSales,
				Impressions: impressions,
				AdSpend:     adSpend,
				Clicks:      clicks,
				UnitsSold:   unitsSold,
			})
			ds.TotalSales = append(ds.TotalSales, TotalSalesRow{
				Date:              dateText,
				ItemID:            item,
				TotalSales:        totalSales,
				TotalUnitsOrdered: totalUnits,
			})
		}
	}

	checkedAt := g.cfg.StartDate.AddDate(0, 0, g.cfg.Days-1).Add(23 * time.Hour)
	checkedText := checkedAt.Format("2006-01-02 15:04:05")
	for item := 0; item < g.cfg.Items; item++ {
		eligible := g.rnd.Float64() < 0.9
		row := EligibilityRow{CheckedAtUTC: checkedText, ItemID: item, Eligible: eligible}
		if !eligible {
			row.Message = pickOne(g.rnd, ineligibleMessages)
		}
		ds.Eligibility = append(ds.Eligibility, row)
	}
	return ds
}

var ineligibleMessages = []string{
	"Listing is missing a product description.",
	"Item suppressed pending policy review.",
	"Pricing error detected for this SKU.",
	"Main image does not meet requirements.",
}

// weekdayFactor bumps weekend traffic and softens the midweek dip.
func weekdayFactor(day time.Weekday) float64 {
	switch day {
	case time.Saturday, time.Sunday:
		return 1.3
	case time.Wednesday:
		return 0.85
	default:
		return 1.0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
