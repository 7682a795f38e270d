package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/YannKr/adimport/internal/model"
)

const adAssetColumns = `id, collection_id, ad_id, asset_id, asset_type, original_url,
	storage_path, public_url, file_size, mime_type, created_at`

func scanAdAsset(row interface{ Scan(...any) error }) (*model.AdAsset, error) {
	a := &model.AdAsset{}
	var createdAt SQLiteTime
	var kind string
	err := row.Scan(&a.ID, &a.CollectionID, &a.AdID, &a.AssetID, &kind, &a.OriginalURL,
		&a.StoragePath, &a.PublicURL, &a.FileSize, &a.MimeType, &createdAt)
	if err != nil {
		return nil, err
	}
	a.AssetType = model.AssetKind(kind)
	a.CreatedAt = createdAt.Time
	return a, nil
}

// FindAdAsset returns the stored asset for the natural key, or nil.
func FindAdAsset(ctx context.Context, database *sql.DB, collectionID, adID, assetID string) (*model.AdAsset, error) {
	row := database.QueryRowContext(ctx,
		`SELECT `+adAssetColumns+` FROM ad_assets
		 WHERE collection_id = ? AND ad_id = ? AND asset_id = ?`,
		collectionID, adID, assetID,
	)
	a, err := scanAdAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// UpsertAdAsset inserts or refreshes the row for (collection_id, ad_id, asset_id).
func UpsertAdAsset(ctx context.Context, database *sql.DB, a *model.AdAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := database.ExecContext(ctx,
		`INSERT INTO ad_assets (id, collection_id, ad_id, asset_id, asset_type, original_url,
		  storage_path, public_url, file_size, mime_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection_id, ad_id, asset_id) DO UPDATE SET
		  asset_type = excluded.asset_type,
		  original_url = excluded.original_url,
		  storage_path = excluded.storage_path,
		  public_url = excluded.public_url,
		  file_size = excluded.file_size,
		  mime_type = excluded.mime_type`,
		a.ID, a.CollectionID, a.AdID, a.AssetID, string(a.AssetType), a.OriginalURL,
		a.StoragePath, a.PublicURL, a.FileSize, a.MimeType,
	)
	return err
}

func ListAdAssets(ctx context.Context, database *sql.DB, collectionID string) ([]model.AdAsset, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+adAssetColumns+` FROM ad_assets WHERE collection_id = ? ORDER BY created_at ASC`,
		collectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.AdAsset
	for rows.Next() {
		a, err := scanAdAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// AdAssets adapts the ad_assets queries to the downloader's metadata store.
type AdAssets struct {
	DB *sql.DB
}

func (s AdAssets) FindAsset(ctx context.Context, collectionID, adID, assetID string) (*model.AdAsset, error) {
	return FindAdAsset(ctx, s.DB, collectionID, adID, assetID)
}

func (s AdAssets) UpsertAsset(ctx context.Context, a *model.AdAsset) error {
	return UpsertAdAsset(ctx, s.DB, a)
}
