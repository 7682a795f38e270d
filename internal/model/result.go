package model

import "time"

const (
	RowSuccess = "success"
	RowError   = "error"
)

// AdMetrics are the derived performance numbers for one ad.
type AdMetrics struct {
	Spend        float64 `json:"spend"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	CTR          float64 `json:"ctr"`
	CPM          float64 `json:"cpm"`
	Purchases    float64 `json:"purchases"`
	Revenue      float64 `json:"revenue"`
	CPA          float64 `json:"cpa"`
	ROAS         float64 `json:"roas"`
	HookRate     float64 `json:"hook_rate"`
	HoldRate     float64 `json:"hold_rate"`
	VideoViews3s int64   `json:"video_views_3s"`
	VideoP25     int64   `json:"video_p25"`
	VideoP50     int64   `json:"video_p50"`
	VideoP75     int64   `json:"video_p75"`
	VideoP95     int64   `json:"video_p95"`
	VideoP100    int64   `json:"video_p100"`
	ThruPlays    int64   `json:"thruplays"`
	AvgWatchTime float64 `json:"avg_watch_time"`
}

// ProcessedAdRow is one ad in an import result. Rows with Status "error"
// carry whatever fields could be recovered.
type ProcessedAdRow struct {
	ID              string    `json:"id"`
	AdID            string    `json:"ad_id"`
	AdName          string    `json:"ad_name"`
	AdStatus        string    `json:"ad_status"`
	AdsetID         string    `json:"adset_id"`
	AdsetName       string    `json:"adset_name"`
	CampaignID      string    `json:"campaign_id"`
	CampaignName    string    `json:"campaign_name"`
	CreativeID      string    `json:"creative_id"`
	CreativeTitle   string    `json:"creative_title"`
	CreativeBody    string    `json:"creative_body"`
	AssetType       AssetKind `json:"asset_type"`
	AssetID         string    `json:"asset_id"`
	VideoID         string    `json:"video_id"`
	Placement       string    `json:"placement"`
	AssetURL        string    `json:"asset_url"`
	RemoteAssetURL  string    `json:"remote_asset_url"`
	AssetURLGuessed bool      `json:"asset_url_guessed"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	AdMetrics

	// Filled by a later enrichment stage.
	Angle             string   `json:"angle"`
	Format            string   `json:"format"`
	Emotion           string   `json:"emotion"`
	Framework         string   `json:"framework"`
	Transcription     string   `json:"transcription"`
	VisualDescription string   `json:"visual_description"`
	AdDuration        *float64 `json:"ad_duration"`

	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Summary struct {
	TotalAds         int     `json:"total_ads"`
	SuccessfulAds    int     `json:"successful_ads"`
	FailedAds        int     `json:"failed_ads"`
	TotalSpend       float64 `json:"total_spend"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalImpressions int64   `json:"total_impressions"`
	TotalPurchases   float64 `json:"total_purchases"`
	AvgCPA           float64 `json:"avg_cpa"`
	AvgROAS          float64 `json:"avg_roas"`
	AvgHookRate      float64 `json:"avg_hook_rate"`
	AvgHoldRate      float64 `json:"avg_hold_rate"`
	MaxSpend         float64 `json:"max_spend"`
	MinSpend         float64 `json:"min_spend"`
}

type DateRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

type ImportMeta struct {
	Method       string    `json:"method"`
	ImportedAt   time.Time `json:"imported_at"`
	DateRange    DateRange `json:"date_range"`
	MaxAds       int       `json:"max_ads"`
	FetchedAds   int       `json:"fetched_ads"`
	CircuitOpen  bool      `json:"circuit_open"`
	DurationSecs float64   `json:"duration_secs"`
}

// ImportResult is written back to the collection record.
type ImportResult struct {
	Ads     []ProcessedAdRow `json:"ads"`
	Summary Summary          `json:"summary"`
	Import  ImportMeta       `json:"import"`
}

// ImportCounts is the short form of an import returned to API callers.
type ImportCounts struct {
	Imported int     `json:"imported"`
	Failed   int     `json:"failed"`
	Total    int     `json:"total"`
	Summary  Summary `json:"summary"`
}

func (r *ImportResult) Counts() ImportCounts {
	return ImportCounts{
		Imported: r.Summary.SuccessfulAds,
		Failed:   r.Summary.FailedAds,
		Total:    len(r.Ads),
		Summary:  r.Summary,
	}
}
