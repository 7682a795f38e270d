// Package adstats derives per-ad performance metrics from insights and
// aggregates them across an import.
package adstats

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YannKr/adimport/internal/model"
)

// PurchaseActions are the action types counted as a purchase. A pixel
// purchase can also be reported under omni_purchase, so accounts that emit
// both see the same conversion counted twice.
var PurchaseActions = map[string]bool{
	"purchase":                             true,
	"omni_purchase":                        true,
	"offsite_conversion.fb_pixel_purchase": true,
	"onsite_web_purchase":                  true,
	"onsite_web_app_purchase":              true,
	"web_in_store_purchase":                true,
	"app_custom_event.fb_mobile_purchase":  true,
}

const threeSecondView = "video_view"

// Compute derives the metrics for one ad. Ratios with a zero denominator are 0.
func Compute(in model.Insights) model.AdMetrics {
	spend := in.Spend.Float()
	impressions := in.Impressions.Float()
	purchases := sumActions(in.Actions, PurchaseActions)
	revenue := sumActions(in.ActionValues, PurchaseActions)

	plays3s := actionValue(in.Actions, threeSecondView)
	if plays3s == 0 {
		plays3s = total(in.VideoPlayActions)
	}
	p50 := total(in.VideoP50Watched)

	cpa := spend
	if purchases > 0 {
		cpa = spend / purchases
	}
	var roas float64
	if revenue > 0 && spend > 0 {
		roas = revenue / spend
	}

	return model.AdMetrics{
		Spend:        round2(spend),
		Impressions:  int64(impressions),
		Clicks:       int64(in.Clicks.Float()),
		CTR:          round2(in.CTR.Float()),
		CPM:          round2(in.CPM.Float()),
		Purchases:    round2(purchases),
		Revenue:      round2(revenue),
		CPA:          round2(cpa),
		ROAS:         round2(roas),
		HookRate:     round2(percent(plays3s, impressions)),
		HoldRate:     round2(percent(p50, plays3s)),
		VideoViews3s: int64(plays3s),
		VideoP25:     int64(total(in.VideoP25Watched)),
		VideoP50:     int64(p50),
		VideoP75:     int64(total(in.VideoP75Watched)),
		VideoP95:     int64(total(in.VideoP95Watched)),
		VideoP100:    int64(total(in.VideoP100Watched)),
		ThruPlays:    int64(total(in.VideoThruPlays)),
		AvgWatchTime: round2(total(in.VideoAvgTimeWatch)),
	}
}

// Summarize aggregates rows. Average CPA covers rows with purchases, average
// ROAS rows with spend, hook rate rows with impressions and hold rate rows
// with 3-second views.
func Summarize(rows []model.ProcessedAdRow) model.Summary {
	s := model.Summary{TotalAds: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var spends, cpas, roases, hooks, holds []float64
	var revenue, purchases float64
	for _, r := range rows {
		if r.Status == model.RowSuccess {
			s.SuccessfulAds++
		} else {
			s.FailedAds++
		}
		spends = append(spends, r.Spend)
		revenue += r.Revenue
		purchases += r.Purchases
		s.TotalImpressions += r.Impressions
		if r.Purchases > 0 {
			cpas = append(cpas, r.CPA)
		}
		if r.Spend > 0 {
			roases = append(roases, r.ROAS)
		}
		if r.Impressions > 0 {
			hooks = append(hooks, r.HookRate)
		}
		if r.VideoViews3s > 0 {
			holds = append(holds, r.HoldRate)
		}
	}

	s.TotalSpend = round2(floats.Sum(spends))
	s.TotalRevenue = round2(revenue)
	s.TotalPurchases = round2(purchases)
	s.AvgCPA = mean(cpas)
	s.AvgROAS = mean(roases)
	s.AvgHookRate = mean(hooks)
	s.AvgHoldRate = mean(holds)
	s.MaxSpend = round2(floats.Max(spends))
	s.MinSpend = round2(floats.Min(spends))
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return round2(stat.Mean(xs, nil))
}

func percent(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den * 100
}

func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

func sumActions(actions []model.Action, types map[string]bool) float64 {
	var sum float64
	for _, a := range actions {
		if types[a.ActionType] {
			sum += a.Value.Float()
		}
	}
	return sum
}

func actionValue(actions []model.Action, actionType string) float64 {
	for _, a := range actions {
		if a.ActionType == actionType {
			return a.Value.Float()
		}
	}
	return 0
}

func total(actions []model.Action) float64 {
	var sum float64
	for _, a := range actions {
		sum += a.Value.Float()
	}
	return sum
}
