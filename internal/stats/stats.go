package stats

import (
	"math"
	"sort"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Aggregate computes a rolling stats snapshot from up to 30 days of sales.
// Averages and extremes are kept in decimal; standard deviation and
// velocity are analytics, not money, and stay float64. Returns a snapshot
// with VelocityKnown=false when there are no sales in the window.
func Aggregate(itemName string, sales []models.Sale, now time.Time) *models.MarketStats {
	cutoff30 := now.AddDate(0, 0, -30)
	cutoff7 := now.AddDate(0, 0, -7)

	m := &models.MarketStats{
		ItemName:  itemName,
		UpdatedAt: now,
	}

	var window []models.Sale
	for _, s := range sales {
		if s.SoldAt.Before(cutoff30) {
			continue
		}
		window = append(window, s)
	}
	if len(window) == 0 {
		return m
	}

	sort.Slice(window, func(i, j int) bool {
		return window[i].SoldAt.Before(window[j].SoldAt)
	})

	sum30 := decimal.Zero
	sum7 := decimal.Zero
	m.Min30d = window[0].Price
	m.Max30d = window[0].Price
	for _, s := range window {
		price := s.Price.Round(2)
		sum30 = sum30.Add(price)
		if price.LessThan(m.Min30d) {
			m.Min30d = price
		}
		if price.GreaterThan(m.Max30d) {
			m.Max30d = price
		}
		if !s.SoldAt.Before(cutoff7) {
			sum7 = sum7.Add(price)
			m.SalesCount7d++
		}
	}
	m.SalesCount30d = len(window)
	m.Avg30d = sum30.Div(decimal.NewFromInt(int64(m.SalesCount30d))).Round(2)
	if m.SalesCount7d > 0 {
		m.Avg7d = sum7.Div(decimal.NewFromInt(int64(m.SalesCount7d))).Round(2)
	} else {
		// Quiet week: fall back to the 30-day average rather than reporting
		// a zero the discount gate would misread as "no stats".
		m.Avg7d = m.Avg30d
	}

	m.Median30d = median(window)
	m.StdDev = stdDev(window, m.Avg30d)
	m.AvgSalesPerDay = float64(m.SalesCount30d) / 30.0
	m.VelocityKnown = true

	last := window[len(window)-1]
	m.LastSalePrice = last.Price.Round(2)
	m.LastSaleAt = last.SoldAt
	return m
}

func median(sorted []models.Sale) decimal.Decimal {
	prices := make([]decimal.Decimal, len(sorted))
	for i, s := range sorted {
		prices[i] = s.Price.Round(2)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	n := len(prices)
	if n%2 == 1 {
		return prices[n/2]
	}
	return prices[n/2-1].Add(prices[n/2]).Div(decimal.NewFromInt(2)).Round(2)
}

// stdDev is the population standard deviation of the sale prices.
func stdDev(sales []models.Sale, mean decimal.Decimal) float64 {
	if len(sales) < 2 {
		return 0
	}
	meanF, _ := mean.Float64()
	var sumSq float64
	for _, s := range sales {
		p, _ := s.Price.Float64()
		d := p - meanF
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(sales)))
}
