package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/webscout/deal-weaver/internal/models"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS websites (
		website_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		base_url TEXT NOT NULL,
		product_schema TEXT,
		auth_token TEXT,
		active BOOLEAN DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS urls (
		url_id INTEGER PRIMARY KEY AUTOINCREMENT,
		website_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		status TEXT DEFAULT '',
		last_error TEXT DEFAULT '',
		product_count INTEGER DEFAULT 0,
		scraped_at TIMESTAMP,
		FOREIGN KEY (website_id) REFERENCES websites(website_id),
		UNIQUE(website_id, url)
	);

	CREATE TABLE IF NOT EXISTS filters (
		filter_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		criteria TEXT NOT NULL,
		active BOOLEAN DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS seen_items (
		composite_id TEXT PRIMARY KEY,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deals (
		deal_id INTEGER PRIMARY KEY AUTOINCREMENT,
		website_id INTEGER NOT NULL,
		filter_id INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		sku_id TEXT DEFAULT '',
		display_name TEXT,
		list_price REAL,
		best_price REAL,
		discount REAL,
		product_url TEXT,
		image_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (website_id) REFERENCES websites(website_id),
		FOREIGN KEY (filter_id) REFERENCES filters(filter_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
		deal_id INTEGER NOT NULL,
		sent_at TIMESTAMP,
		FOREIGN KEY (deal_id) REFERENCES deals(deal_id)
	);

	CREATE INDEX IF NOT EXISTS idx_urls_website ON urls(website_id);
	CREATE INDEX IF NOT EXISTS idx_seen_expires ON seen_items(expires_at);
	CREATE INDEX IF NOT EXISTS idx_deals_product ON deals(product_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AddWebsite inserts a website record and returns its id
func (s *Storage) AddWebsite(w models.Website) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO websites (name, base_url, product_schema, auth_token, active)
		VALUES (?, ?, ?, ?, ?)
	`, w.Name, w.BaseURL, w.ProductSchema, w.AuthToken, w.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to insert website: %w", err)
	}
	return result.LastInsertId()
}

// AddURL registers a URL under a website and returns its id
func (s *Storage) AddURL(websiteID int64, url string) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO urls (website_id, url) VALUES (?, ?)
	`, websiteID, url)
	if err != nil {
		return 0, fmt.Errorf("failed to insert url: %w", err)
	}
	return result.LastInsertId()
}

// AddFilter inserts a filter with its criteria serialized as JSON
func (s *Storage) AddFilter(f models.Filter) (int64, error) {
	criteria, err := json.Marshal(f.Criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to encode filter criteria: %w", err)
	}
	result, err := s.db.Exec(`
		INSERT INTO filters (name, criteria, active) VALUES (?, ?, ?)
	`, f.Name, string(criteria), f.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to insert filter: %w", err)
	}
	return result.LastInsertId()
}

// GetActiveWebsites returns all websites with active = 1
func (s *Storage) GetActiveWebsites() ([]models.Website, error) {
	return s.queryWebsites("WHERE active = 1")
}

// GetWebsite returns one website by id, nil if not found
func (s *Storage) GetWebsite(id int64) (*models.Website, error) {
	websites, err := s.queryWebsites("WHERE website_id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(websites) == 0 {
		return nil, nil
	}
	return &websites[0], nil
}

func (s *Storage) queryWebsites(where string, args ...any) ([]models.Website, error) {
	rows, err := s.db.Query(`
		SELECT website_id, name, base_url, COALESCE(product_schema, ''), COALESCE(auth_token, ''), active
		FROM websites `+where+` ORDER BY website_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query websites: %w", err)
	}
	defer rows.Close()

	var websites []models.Website
	for rows.Next() {
		var w models.Website
		if err := rows.Scan(&w.ID, &w.Name, &w.BaseURL, &w.ProductSchema, &w.AuthToken, &w.Active); err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, w)
	}
	return websites, rows.Err()
}

// GetURLs returns the URL list of a website
func (s *Storage) GetURLs(websiteID int64) ([]models.ScrapeURL, error) {
	rows, err := s.db.Query(`
		SELECT url_id, website_id, url, status, last_error, product_count
		FROM urls WHERE website_id = ? ORDER BY url_id ASC
	`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}
	defer rows.Close()

	var urls []models.ScrapeURL
	for rows.Next() {
		var u models.ScrapeURL
		if err := rows.Scan(&u.ID, &u.WebsiteID, &u.URL, &u.Status, &u.LastError, &u.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// GetActiveFilters returns all active filters in creation order
func (s *Storage) GetActiveFilters() ([]models.Filter, error) {
	rows, err := s.db.Query(`
		SELECT filter_id, name, criteria, active
		FROM filters WHERE active = 1 ORDER BY filter_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer rows.Close()

	var filters []models.Filter
	for rows.Next() {
		var f models.Filter
		var criteria string
		if err := rows.Scan(&f.ID, &f.Name, &criteria, &f.Active); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		if err := json.Unmarshal([]byte(criteria), &f.Criteria); err != nil {
			return nil, fmt.Errorf("filter %d has bad criteria JSON: %w", f.ID, err)
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// UpdateURLStatus records the outcome of one processed URL
func (s *Storage) UpdateURLStatus(urlID int64, result models.URLResult) error {
	_, err := s.db.Exec(`
		UPDATE urls SET status = ?, last_error = ?, product_count = ?, scraped_at = ?
		WHERE url_id = ?
	`, result.Status, result.Error, result.Count, result.ScrapedAt, urlID)
	if err != nil {
		return fmt.Errorf("failed to update url status: %w", err)
	}
	return nil
}

// InsertDeal persists a confirmed new deal and returns its id
func (s *Storage) InsertDeal(websiteID, filterID int64, v models.Variant) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO deals (website_id, filter_id, product_id, sku_id, display_name,
			list_price, best_price, discount, product_url, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, websiteID, filterID, v.ProductID, v.SKUID, v.DisplayName,
		v.ListPrice, v.BestPrice, v.DiscountPercentage, v.ProductURL, v.ImageURL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deal: %w", err)
	}
	return result.LastInsertId()
}

// CreateNotification records a pending notification for a deal
func (s *Storage) CreateNotification(dealID int64) (int64, error) {
	result, err := s.db.Exec(`INSERT INTO notifications (deal_id) VALUES (?)`, dealID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}
	return result.LastInsertId()
}

// MarkNotificationSent stamps a notification as delivered
func (s *Storage) MarkNotificationSent(notificationID int64) error {
	_, err := s.db.Exec(`UPDATE notifications SET sent_at = ? WHERE notification_id = ?`,
		time.Now().UTC(), notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// GetSeen returns the expiry of a seen record, reporting whether one exists
func (s *Storage) GetSeen(compositeID string) (time.Time, bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRow(`
		SELECT expires_at FROM seen_items WHERE composite_id = ?
	`, compositeID).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get seen record: %w", err)
	}
	return expiresAt, true, nil
}

// UpsertSeen inserts or refreshes a seen record's expiry
func (s *Storage) UpsertSeen(compositeID string, expiresAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO seen_items (composite_id, expires_at)
		VALUES (?, ?)
		ON CONFLICT(composite_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, compositeID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert seen record: %w", err)
	}
	return nil
}

// PurgeExpiredSeen deletes seen records past their expiry and returns
// how many were removed
func (s *Storage) PurgeExpiredSeen(now time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM seen_items WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge seen records: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
