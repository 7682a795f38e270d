// Package download fetches remote ad media and persists it to the object
// store, recording one metadata row per (collection, ad, asset).
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/YannKr/adimport/internal/metric"
	"github.com/YannKr/adimport/internal/model"
)

const maxAssetBytes = 1 << 30

var ErrUndersized = errors.New("downloaded body below minimum asset size")

var errAbandoned = errors.New("shared download abandoned")

type Store interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	PublicURL(objectPath string) string
}

type Metadata interface {
	FindAsset(ctx context.Context, collectionID, adID, assetID string) (*model.AdAsset, error)
	UpsertAsset(ctx context.Context, a *model.AdAsset) error
}

type Downloader struct {
	HTTPClient *http.Client
	Store      Store
	Meta       Metadata
	Retries    int
	BaseDelay  time.Duration
	Timeout    time.Duration
	MinBytes   int64
	Metrics    *metric.Metrics

	group singleflight.Group
}

// DownloadAndStore returns the public URL of the stored copy of remoteURL.
// An asset already recorded for the key is returned without any network call.
func (d *Downloader) DownloadAndStore(ctx context.Context, remoteURL, assetID string, kind model.AssetKind, collectionID, adID string) (string, error) {
	existing, err := d.Meta.FindAsset(ctx, collectionID, adID, assetID)
	if err != nil {
		slog.Warn("asset metadata lookup failed", "asset_id", assetID, "error", err)
	} else if existing != nil && existing.PublicURL != "" {
		d.Metrics.Download("existing")
		return existing.PublicURL, nil
	}

	key := collectionID + "/" + adID + "/" + assetID
	for {
		v, err, _ := d.group.Do(key, func() (interface{}, error) {
			u, err := d.fetchAndStore(ctx, remoteURL, assetID, kind, collectionID, adID)
			if err != nil && ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", errAbandoned, ctx.Err())
			}
			return u, err
		})
		if err == nil {
			return v.(string), nil
		}
		if !errors.Is(err, errAbandoned) {
			return "", err
		}
		// The shared fetch was run by a caller whose context ended.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

func (d *Downloader) fetchAndStore(ctx context.Context, remoteURL, assetID string, kind model.AssetKind, collectionID, adID string) (string, error) {
	body, contentType, err := d.fetchWithRetry(ctx, remoteURL)
	if err != nil {
		return "", err
	}

	contentType = mimeFor(contentType, kind)
	objectPath := path.Join("ad-assets", collectionID, adID, assetID+extensionFor(contentType, kind))
	if err := d.Store.Upload(ctx, objectPath, body, contentType); err != nil {
		d.Metrics.Download("upload_error")
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	publicURL := d.Store.PublicURL(objectPath)

	err = d.Meta.UpsertAsset(ctx, &model.AdAsset{
		CollectionID: collectionID,
		AdID:         adID,
		AssetID:      assetID,
		AssetType:    kind,
		OriginalURL:  remoteURL,
		StoragePath:  objectPath,
		PublicURL:    publicURL,
		FileSize:     int64(len(body)),
		MimeType:     contentType,
	})
	if err != nil {
		slog.Warn("asset metadata write failed", "asset_id", assetID, "path", objectPath, "error", err)
	}
	d.Metrics.Download("stored")
	return publicURL, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, remoteURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.BaseDelay*time.Duration(attempt)); err != nil {
				return nil, "", err
			}
		}
		body, contentType, err := d.fetch(ctx, remoteURL)
		if err == nil {
			if int64(len(body)) < d.MinBytes {
				d.Metrics.Download("undersized")
				return nil, "", fmt.Errorf("%w: %d bytes", ErrUndersized, len(body))
			}
			return body, contentType, nil
		}
		lastErr = err
		slog.Debug("asset download attempt failed", "url", remoteURL, "attempt", attempt+1, "error", err)
	}
	d.Metrics.Download("failed")
	return nil, "", fmt.Errorf("download after %d attempts: %w", d.Retries+1, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, remoteURL string) ([]byte, string, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, "", err
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func mimeFor(contentType string, kind model.AssetKind) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if kind == model.AssetVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

var extensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
}

func extensionFor(contentType string, kind model.AssetKind) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	if kind == model.AssetVideo {
		return ".mp4"
	}
	return ".jpg"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
