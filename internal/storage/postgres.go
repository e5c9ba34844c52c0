package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/webscout/deal-weaver/internal/models"
)

// DealArchive is an optional append-only Postgres sink mirroring every
// confirmed deal for downstream analytics. Inserts are idempotent on
// (website_id, product_id, sku_id).
type DealArchive struct {
	pool *pgxpool.Pool
}

// NewDealArchive connects to Postgres and ensures the archive table
func NewDealArchive(ctx context.Context, dsn string) (*DealArchive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	ddl := `
	CREATE TABLE IF NOT EXISTS deal_archive (
		website_id BIGINT NOT NULL,
		product_id TEXT NOT NULL,
		sku_id TEXT NOT NULL DEFAULT '',
		display_name TEXT,
		list_price DOUBLE PRECISION,
		best_price DOUBLE PRECISION,
		discount DOUBLE PRECISION,
		product_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (website_id, product_id, sku_id)
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure deal_archive table: %w", err)
	}

	return &DealArchive{pool: pool}, nil
}

// ArchiveDeal appends a deal record; conflicts are ignored so re-runs
// are safe
func (a *DealArchive) ArchiveDeal(ctx context.Context, websiteID int64, v models.Variant) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO deal_archive (website_id, product_id, sku_id, display_name,
			list_price, best_price, discount, product_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (website_id, product_id, sku_id) DO NOTHING
	`, websiteID, v.ProductID, v.SKUID, v.DisplayName,
		v.ListPrice, v.BestPrice, v.DiscountPercentage, v.ProductURL)
	if err != nil {
		return fmt.Errorf("failed to archive deal %s: %w", v.ProductID, err)
	}
	return nil
}

// Close releases the connection pool
func (a *DealArchive) Close() {
	a.pool.Close()
	logrus.Debug("deal archive pool closed")
}
