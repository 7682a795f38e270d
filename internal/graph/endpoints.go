package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/YannKr/adimport/internal/model"
)

const (
	creativeFields = "id,name,title,body,thumbnail_url,image_url,image_hash,video_id,object_type," +
		"effective_object_story_id,object_story_spec,asset_feed_spec"
	insightsFields = "spend,impressions,clicks,ctr,cpm,reach,actions,action_values,video_play_actions," +
		"video_p25_watched_actions,video_p50_watched_actions,video_p75_watched_actions," +
		"video_p95_watched_actions,video_p100_watched_actions,video_thruplay_watched_actions," +
		"video_avg_time_watched_actions"
)

type Paging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type AdsPage struct {
	Data   []model.AdRecord `json:"data"`
	Paging *Paging          `json:"paging"`
}

// NextCursor returns the cursor for the following page, or "" on the last page.
func (p *AdsPage) NextCursor() string {
	if p.Paging == nil || p.Paging.Next == "" {
		return ""
	}
	return p.Paging.Cursors.After
}

type AdsQuery struct {
	AccountID string
	MinSpend  float64
	DateRange model.DateRange
	Limit     int
	After     string
}

// ListAds returns one page of ads with spend >= MinSpend and impressions > 0
// in the date range, with creative and insights expanded.
func (c *Client) ListAds(ctx context.Context, q AdsQuery) (*AdsPage, error) {
	timeRange, err := json.Marshal(q.DateRange)
	if err != nil {
		return nil, err
	}
	filtering, err := json.Marshal([]map[string]interface{}{
		{"field": "spend", "operator": "GREATER_THAN_OR_EQUAL", "value": q.MinSpend},
		{"field": "impressions", "operator": "GREATER_THAN", "value": 0},
	})
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fields", fmt.Sprintf(
		"id,name,status,effective_status,adset{id,name},campaign{id,name,objective},creative{%s},insights.time_range(%s){%s}",
		creativeFields, timeRange, insightsFields))
	params.Set("filtering", string(filtering))
	params.Set("time_range", string(timeRange))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.After != "" {
		params.Set("after", q.After)
	}

	var page AdsPage
	if err := c.get(ctx, "ads", AccountPath(q.AccountID)+"/ads", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AdCreative returns the creative summary attached to an ad, or nil.
func (c *Client) AdCreative(ctx context.Context, adID string) (*model.Creative, error) {
	var out struct {
		Creative *model.Creative `json:"creative"`
	}
	params := url.Values{"fields": {"creative{" + creativeFields + "}"}}
	if err := c.get(ctx, "ad_creative", adID, params, &out); err != nil {
		return nil, err
	}
	return out.Creative, nil
}

func (c *Client) Creative(ctx context.Context, creativeID string) (*model.Creative, error) {
	var out model.Creative
	params := url.Values{"fields": {creativeFields}}
	if err := c.get(ctx, "creative", creativeID, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Preview struct {
	Body string `json:"body"`
}

func (c *Client) AdPreviews(ctx context.Context, adID, format string) ([]Preview, error) {
	var out struct {
		Data []Preview `json:"data"`
	}
	params := url.Values{"ad_format": {format}}
	if err := c.get(ctx, "ad_previews", adID+"/previews", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type Video struct {
	ID      string       `json:"id"`
	Source  string       `json:"source"`
	Picture string       `json:"picture"`
	Length  model.Number `json:"length"`
	From    *model.Ref   `json:"from"`
}

// Video fetches the given fields ("source", "from", ...) of a video node.
func (c *Client) Video(ctx context.Context, videoID string, fields ...string) (*Video, error) {
	var out Video
	params := url.Values{"fields": {strings.Join(fields, ",")}}
	if err := c.get(ctx, "video", videoID, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Image struct {
	Hash         string `json:"hash"`
	URL          string `json:"url"`
	PermalinkURL string `json:"permalink_url"`
}

// AdImages looks images up by hash within an ad account.
func (c *Client) AdImages(ctx context.Context, accountID string, hashes []string) ([]Image, error) {
	hashJSON, err := json.Marshal(hashes)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Image `json:"data"`
	}
	params := url.Values{
		"hashes": {string(hashJSON)},
		"fields": {"hash,url,permalink_url"},
	}
	if err := c.get(ctx, "adimages", AccountPath(accountID)+"/adimages", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Image reads an ad image node directly by its "<account>:<hash>" id.
func (c *Client) Image(ctx context.Context, accountID, hash string) (*Image, error) {
	var out Image
	id := strings.TrimPrefix(AccountPath(accountID), "act_") + ":" + hash
	params := url.Values{"fields": {"hash,url,permalink_url"}}
	if err := c.get(ctx, "adimage", id, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
