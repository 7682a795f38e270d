package model

import "time"

type Brand struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// BrandIntegration is the stored form of a brand's ad-platform connection.
// AccessTokenEnc is never handed to the pipeline; see MetaCredentials.
type BrandIntegration struct {
	BrandID        string
	Provider       string
	AccessTokenEnc string
	AdAccountID    string
	DefaultPageID  string
	PageID         string
	Pages          []string
	ManualPages    []string
	UpdatedAt      time.Time
}

// MetaCredentials is what the credential provider hands to the importer,
// with the token already decrypted.
type MetaCredentials struct {
	AccessToken   string
	AdAccountID   string
	DefaultPageID string
	PageID        string
	Pages         []string
	ManualPages   []string
}

// PageIDs returns every page associated with the brand, in priority order
// (default, explicit, pages array, manually labeled), without duplicates.
func (c MetaCredentials) PageIDs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(c.DefaultPageID)
	add(c.PageID)
	for _, p := range c.Pages {
		add(p)
	}
	for _, p := range c.ManualPages {
		add(p)
	}
	return out
}

type Collection struct {
	ID           string
	BrandID      string
	Name         string
	AdImportJSON string
	AdImportedAt *time.Time
	CreatedAt    time.Time
}

// AdAsset is the persisted copy of one ad's media, unique per
// (CollectionID, AdID, AssetID).
type AdAsset struct {
	ID           string
	CollectionID string
	AdID         string
	AssetID      string
	AssetType    AssetKind
	OriginalURL  string
	StoragePath  string
	PublicURL    string
	FileSize     int64
	MimeType     string
	CreatedAt    time.Time
}

type Job struct {
	ID           string
	JobType      string
	CollectionID string
	State        string
	Progress     int
	InputData    string
	ResultData   string
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type WebhookDelivery struct {
	ID                  string
	URL                 string
	EventType           string
	EventID             string
	PayloadJSON         string
	AttemptNumber       int
	ResponseStatus      *int
	ResponseBodyPreview string
	ErrorMessage        string
	State               string
	NextRetryAt         *time.Time
	DeliveredAt         *time.Time
	CreatedAt           time.Time
}
