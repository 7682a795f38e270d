package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/YannKr/adimport/internal/model"
)

func CreateBrand(ctx context.Context, database *sql.DB, b *model.Brand) error {
	_, err := database.ExecContext(ctx, `INSERT INTO brands (id, name) VALUES (?, ?)`, b.ID, b.Name)
	return err
}

func CreateCollection(ctx context.Context, database *sql.DB, c *model.Collection) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO collections (id, brand_id, name) VALUES (?, ?, ?)`,
		c.ID, c.BrandID, c.Name,
	)
	return err
}

func GetCollection(ctx context.Context, database *sql.DB, id string) (*model.Collection, error) {
	c := &model.Collection{}
	var importJSON sql.NullString
	var importedAt, createdAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT id, brand_id, name, ad_import_json, ad_imported_at, created_at
		 FROM collections WHERE id = ?`, id,
	).Scan(&c.ID, &c.BrandID, &c.Name, &importJSON, &importedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.AdImportJSON = importJSON.String
	c.AdImportedAt = importedAt.Ptr()
	c.CreatedAt = createdAt.Time
	return c, nil
}

// SaveAdImport stores a serialized import result on the collection record.
func SaveAdImport(ctx context.Context, database *sql.DB, collectionID, resultJSON string, at time.Time) error {
	res, err := database.ExecContext(ctx,
		`UPDATE collections SET ad_import_json = ?, ad_imported_at = ? WHERE id = ?`,
		resultJSON, formatTime(at), collectionID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
