package creative

import "github.com/YannKr/adimport/internal/model"

const (
	PlacementDefault = "default"
	PlacementLegacy  = "legacy"
)

type placement struct {
	name     string
	platform string
	position string
}

// Vertical placements first: they carry the full-screen cut of a creative.
var placementOrder = []placement{
	{"instagram_story", "instagram", "story"},
	{"facebook_story", "facebook", "story"},
	{"instagram_reels", "instagram", "reels"},
	{"facebook_reels", "facebook", "facebook_reels"},
	{"instagram_feed", "instagram", "stream"},
	{"facebook_feed", "facebook", "feed"},
}

// PickBestAsset chooses one asset from a dynamic creative's feed spec,
// preferring placement-specific variants in placementOrder. It returns nil when
// the feed has no assets.
func PickBestAsset(spec *model.AssetFeedSpec) *model.AssetReference {
	if spec == nil {
		return nil
	}
	for _, p := range placementOrder {
		for _, rule := range spec.AssetCustomizationRules {
			if !covers(rule.CustomizationSpec, p) {
				continue
			}
			if id := videoForLabel(spec.Videos, rule.VideoLabel); id != "" {
				return &model.AssetReference{AssetID: id, Kind: model.AssetVideo, Placement: p.name}
			}
			if hash := imageForLabel(spec.Images, rule.ImageLabel); hash != "" {
				return &model.AssetReference{AssetID: hash, Kind: model.AssetImage, Placement: p.name}
			}
		}
	}
	for _, v := range spec.Videos {
		if v.VideoID != "" {
			return &model.AssetReference{AssetID: v.VideoID, Kind: model.AssetVideo, Placement: PlacementDefault}
		}
	}
	for _, img := range spec.Images {
		if img.Hash != "" {
			return &model.AssetReference{AssetID: img.Hash, Kind: model.AssetImage, Placement: PlacementDefault}
		}
	}
	return nil
}

func covers(s model.CustomizationSpec, p placement) bool {
	if !contains(s.PublisherPlatforms, p.platform) {
		return false
	}
	switch p.platform {
	case "instagram":
		return contains(s.InstagramPositions, p.position)
	case "facebook":
		return contains(s.FacebookPositions, p.position)
	}
	return false
}

func videoForLabel(videos []model.FeedVideo, label *model.AdLabel) string {
	if label == nil {
		return ""
	}
	for _, v := range videos {
		if v.VideoID != "" && hasLabel(v.AdLabels, label) {
			return v.VideoID
		}
	}
	return ""
}

func imageForLabel(images []model.FeedImage, label *model.AdLabel) string {
	if label == nil {
		return ""
	}
	for _, img := range images {
		if img.Hash != "" && hasLabel(img.AdLabels, label) {
			return img.Hash
		}
	}
	return ""
}

func hasLabel(labels []model.AdLabel, want *model.AdLabel) bool {
	for _, l := range labels {
		if (want.Name != "" && l.Name == want.Name) || (want.ID != "" && l.ID == want.ID) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// LegacyAsset derives an asset from a non-dynamic creative. It returns either
// a reference to resolve or, when only a URL is known, that direct image URL.
func LegacyAsset(c model.Creative) (*model.AssetReference, string) {
	oss := c.ObjectStorySpec
	video := func(id string) *model.AssetReference {
		return &model.AssetReference{AssetID: id, Kind: model.AssetVideo, Placement: PlacementLegacy}
	}
	image := func(hash string) *model.AssetReference {
		return &model.AssetReference{AssetID: hash, Kind: model.AssetImage, Placement: PlacementLegacy}
	}

	switch {
	case c.VideoID != "":
		return video(c.VideoID), ""
	case oss != nil && oss.VideoData != nil && oss.VideoData.VideoID != "":
		return video(oss.VideoData.VideoID), ""
	case c.ImageHash != "":
		return image(c.ImageHash), ""
	case oss != nil && oss.LinkData != nil && oss.LinkData.ImageHash != "":
		return image(oss.LinkData.ImageHash), ""
	case oss != nil && oss.PhotoData != nil && oss.PhotoData.ImageHash != "":
		return image(oss.PhotoData.ImageHash), ""
	case c.ImageURL != "":
		return nil, c.ImageURL
	case oss != nil && oss.LinkData != nil && oss.LinkData.Picture != "":
		return nil, oss.LinkData.Picture
	case oss != nil && oss.PhotoData != nil && oss.PhotoData.URL != "":
		return nil, oss.PhotoData.URL
	}
	return nil, ""
}

// Thumbnail returns the best known preview image for a creative.
func Thumbnail(c *model.Creative) string {
	if c == nil {
		return ""
	}
	if c.ThumbnailURL != "" {
		return c.ThumbnailURL
	}
	if c.ObjectStorySpec != nil && c.ObjectStorySpec.VideoData != nil {
		return c.ObjectStorySpec.VideoData.ImageURL
	}
	return ""
}
