package adstats

import (
	"math"
	"testing"

	"github.com/YannKr/adimport/internal/model"
)

func TestComputeScenarios(t *testing.T) {
	noPurchases := Compute(model.Insights{Spend: 100, Impressions: 5000})
	if noPurchases.CPA != 100 || noPurchases.ROAS != 0 {
		t.Errorf("cpa, roas = %v, %v; want 100, 0", noPurchases.CPA, noPurchases.ROAS)
	}

	converted := Compute(model.Insights{
		Spend:        100,
		Impressions:  5000,
		Actions:      []model.Action{{ActionType: "purchase", Value: 2}, {ActionType: "link_click", Value: 40}},
		ActionValues: []model.Action{{ActionType: "purchase", Value: 400}},
	})
	if converted.CPA != 50 || converted.ROAS != 4 {
		t.Errorf("cpa, roas = %v, %v; want 50, 4", converted.CPA, converted.ROAS)
	}
	if converted.Purchases != 2 || converted.Revenue != 400 {
		t.Errorf("purchases, revenue = %v, %v", converted.Purchases, converted.Revenue)
	}

	video := Compute(model.Insights{
		Impressions:     1000,
		Actions:         []model.Action{{ActionType: "video_view", Value: 200}},
		VideoP50Watched: []model.Action{{ActionType: "video_view", Value: 50}},
	})
	if video.HookRate != 20 {
		t.Errorf("HookRate = %v, want 20", video.HookRate)
	}
	if video.HoldRate != 25 {
		t.Errorf("HoldRate = %v, want 25", video.HoldRate)
	}
}

func TestComputeGuardsZeroDenominators(t *testing.T) {
	inputs := []model.Insights{
		{},
		{Spend: 0, Impressions: 0, ActionValues: []model.Action{{ActionType: "purchase", Value: 50}}},
		{Spend: 10, Impressions: 0, Actions: []model.Action{{ActionType: "video_view", Value: 5}}},
		{Spend: 10, Impressions: 100, VideoP50Watched: []model.Action{{Value: 10}}},
	}
	for i, in := range inputs {
		m := Compute(in)
		for name, v := range map[string]float64{"cpa": m.CPA, "roas": m.ROAS, "hook": m.HookRate, "hold": m.HoldRate} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("input %d: %s = %v", i, name, v)
			}
		}
	}
}

func TestComputeRoundsToCents(t *testing.T) {
	m := Compute(model.Insights{
		Spend:   100,
		Actions: []model.Action{{ActionType: "omni_purchase", Value: 3}},
	})
	if m.CPA != 33.33 {
		t.Errorf("CPA = %v, want 33.33", m.CPA)
	}
}

func TestSummarize(t *testing.T) {
	rows := []model.ProcessedAdRow{
		{Status: model.RowSuccess, AdMetrics: model.AdMetrics{Spend: 300, Revenue: 900, Purchases: 3, CPA: 100, ROAS: 3, Impressions: 1000, HookRate: 30, VideoViews3s: 300, HoldRate: 50}},
		{Status: model.RowSuccess, AdMetrics: model.AdMetrics{Spend: 100, CPA: 100, Impressions: 1000, HookRate: 10}},
		{Status: model.RowError, AdMetrics: model.AdMetrics{Spend: 50.5, CPA: 50.5, ROAS: 0}},
	}
	s := Summarize(rows)

	if s.TotalAds != 3 || s.SuccessfulAds != 2 || s.FailedAds != 1 {
		t.Errorf("counts = %d/%d/%d", s.TotalAds, s.SuccessfulAds, s.FailedAds)
	}
	if s.TotalSpend != 450.5 || s.TotalRevenue != 900 || s.TotalImpressions != 2000 || s.TotalPurchases != 3 {
		t.Errorf("totals = %+v", s)
	}
	if s.AvgCPA != 100 {
		t.Errorf("AvgCPA = %v, want 100", s.AvgCPA)
	}
	if s.AvgROAS != 1 {
		t.Errorf("AvgROAS = %v, want 1", s.AvgROAS)
	}
	if s.AvgHookRate != 20 || s.AvgHoldRate != 50 {
		t.Errorf("hook, hold = %v, %v; want 20, 50", s.AvgHookRate, s.AvgHoldRate)
	}
	if s.MaxSpend != 300 || s.MinSpend != 50.5 {
		t.Errorf("max, min = %v, %v", s.MaxSpend, s.MinSpend)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s != (model.Summary{}) {
		t.Errorf("empty summary = %+v", s)
	}
}
