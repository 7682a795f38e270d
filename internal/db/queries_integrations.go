package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/YannKr/adimport/internal/model"
)

func UpsertBrandIntegration(ctx context.Context, database *sql.DB, bi *model.BrandIntegration) error {
	pages, err := json.Marshal(nonNil(bi.Pages))
	if err != nil {
		return err
	}
	manual, err := json.Marshal(nonNil(bi.ManualPages))
	if err != nil {
		return err
	}
	_, err = database.ExecContext(ctx,
		`INSERT INTO brand_integrations (brand_id, provider, access_token_enc, ad_account_id,
		  default_page_id, page_id, pages_json, manual_pages_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_id, provider) DO UPDATE SET
		  access_token_enc = excluded.access_token_enc,
		  ad_account_id = excluded.ad_account_id,
		  default_page_id = excluded.default_page_id,
		  page_id = excluded.page_id,
		  pages_json = excluded.pages_json,
		  manual_pages_json = excluded.manual_pages_json,
		  updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		bi.BrandID, bi.Provider, bi.AccessTokenEnc, bi.AdAccountID,
		bi.DefaultPageID, bi.PageID, string(pages), string(manual),
	)
	return err
}

// GetBrandIntegration returns nil when the brand has no integration for provider.
func GetBrandIntegration(ctx context.Context, database *sql.DB, brandID, provider string) (*model.BrandIntegration, error) {
	bi := &model.BrandIntegration{}
	var pagesJSON, manualJSON string
	var updatedAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT brand_id, provider, access_token_enc, ad_account_id, default_page_id, page_id,
		  pages_json, manual_pages_json, updated_at
		 FROM brand_integrations WHERE brand_id = ? AND provider = ?`, brandID, provider,
	).Scan(&bi.BrandID, &bi.Provider, &bi.AccessTokenEnc, &bi.AdAccountID, &bi.DefaultPageID,
		&bi.PageID, &pagesJSON, &manualJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pagesJSON), &bi.Pages); err != nil {
		return nil, fmt.Errorf("decode pages_json: %w", err)
	}
	if err := json.Unmarshal([]byte(manualJSON), &bi.ManualPages); err != nil {
		return nil, fmt.Errorf("decode manual_pages_json: %w", err)
	}
	bi.UpdatedAt = updatedAt.Time
	return bi, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
