package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Number is a float that decodes from either a JSON number or a numeric
// string; the ads graph returns most insight values as strings.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*n = Number(f)
	return nil
}

func (n Number) Float() float64 { return float64(n) }

type Action struct {
	ActionType string `json:"action_type"`
	Value      Number `json:"value"`
}

type Insights struct {
	Spend             Number   `json:"spend"`
	Impressions       Number   `json:"impressions"`
	Clicks            Number   `json:"clicks"`
	CTR               Number   `json:"ctr"`
	CPM               Number   `json:"cpm"`
	Reach             Number   `json:"reach"`
	Actions           []Action `json:"actions"`
	ActionValues      []Action `json:"action_values"`
	VideoPlayActions  []Action `json:"video_play_actions"`
	VideoP25Watched   []Action `json:"video_p25_watched_actions"`
	VideoP50Watched   []Action `json:"video_p50_watched_actions"`
	VideoP75Watched   []Action `json:"video_p75_watched_actions"`
	VideoP95Watched   []Action `json:"video_p95_watched_actions"`
	VideoP100Watched  []Action `json:"video_p100_watched_actions"`
	VideoThruPlays    []Action `json:"video_thruplay_watched_actions"`
	VideoAvgTimeWatch []Action `json:"video_avg_time_watched_actions"`
	DateStart         string   `json:"date_start"`
	DateStop          string   `json:"date_stop"`
}

type InsightsEnvelope struct {
	Data []Insights `json:"data"`
}

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CampaignRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Objective string `json:"objective"`
}

// AdRecord is one ad as returned by the ads list endpoint.
type AdRecord struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Status          string            `json:"status"`
	EffectiveStatus string            `json:"effective_status"`
	Creative        *Creative         `json:"creative"`
	Insights        *InsightsEnvelope `json:"insights"`
	AdSet           *Ref              `json:"adset"`
	Campaign        *CampaignRef      `json:"campaign"`
}

// Stats returns the first insights row, or a zero value when none was returned.
func (a AdRecord) Stats() Insights {
	if a.Insights == nil || len(a.Insights.Data) == 0 {
		return Insights{}
	}
	return a.Insights.Data[0]
}

func (a AdRecord) Spend() float64 { return a.Stats().Spend.Float() }

type Creative struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name,omitempty"`
	Title                  string           `json:"title,omitempty"`
	Body                   string           `json:"body,omitempty"`
	ThumbnailURL           string           `json:"thumbnail_url,omitempty"`
	ImageURL               string           `json:"image_url,omitempty"`
	ImageHash              string           `json:"image_hash,omitempty"`
	VideoID                string           `json:"video_id,omitempty"`
	ObjectType             string           `json:"object_type,omitempty"`
	EffectiveObjectStoryID string           `json:"effective_object_story_id,omitempty"`
	ObjectStorySpec        *ObjectStorySpec `json:"object_story_spec,omitempty"`
	AssetFeedSpec          *AssetFeedSpec   `json:"asset_feed_spec,omitempty"`
}

type ObjectStorySpec struct {
	PageID           string     `json:"page_id,omitempty"`
	InstagramActorID string     `json:"instagram_actor_id,omitempty"`
	VideoData        *VideoData `json:"video_data,omitempty"`
	LinkData         *LinkData  `json:"link_data,omitempty"`
	PhotoData        *PhotoData `json:"photo_data,omitempty"`
}

type VideoData struct {
	VideoID   string `json:"video_id,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageHash string `json:"image_hash,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
}

type LinkData struct {
	ImageHash string `json:"image_hash,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Link      string `json:"link,omitempty"`
	Message   string `json:"message,omitempty"`
	Name      string `json:"name,omitempty"`
}

type PhotoData struct {
	ImageHash string `json:"image_hash,omitempty"`
	URL       string `json:"url,omitempty"`
}

// AssetFeedSpec lists per-placement creative variants.
type AssetFeedSpec struct {
	Videos                  []FeedVideo         `json:"videos,omitempty"`
	Images                  []FeedImage         `json:"images,omitempty"`
	AssetCustomizationRules []CustomizationRule `json:"asset_customization_rules,omitempty"`
}

type AdLabel struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type FeedVideo struct {
	VideoID      string    `json:"video_id"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	AdLabels     []AdLabel `json:"adlabels,omitempty"`
}

type FeedImage struct {
	Hash     string    `json:"hash"`
	URL      string    `json:"url,omitempty"`
	AdLabels []AdLabel `json:"adlabels,omitempty"`
}

type CustomizationRule struct {
	CustomizationSpec CustomizationSpec `json:"customization_spec"`
	VideoLabel        *AdLabel          `json:"video_label,omitempty"`
	ImageLabel        *AdLabel          `json:"image_label,omitempty"`
	Priority          int               `json:"priority,omitempty"`
}

type CustomizationSpec struct {
	PublisherPlatforms []string `json:"publisher_platforms,omitempty"`
	FacebookPositions  []string `json:"facebook_positions,omitempty"`
	InstagramPositions []string `json:"instagram_positions,omitempty"`
}

type AssetKind string

const (
	AssetVideo AssetKind = "video"
	AssetImage AssetKind = "image"
)

// AssetReference points at a media asset before its URL is known.
// For images AssetID is the image hash.
type AssetReference struct {
	AssetID   string    `json:"asset_id"`
	Kind      AssetKind `json:"kind"`
	Placement string    `json:"placement"`
}

type ResolvedAsset struct {
	RemoteURL string    `json:"remote_url"`
	Kind      AssetKind `json:"kind"`
	LocalURL  string    `json:"local_url,omitempty"`
	Placement string    `json:"placement"`
	Guessed   bool      `json:"guessed,omitempty"`
}
