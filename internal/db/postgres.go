package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq" // postgres driver
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/models"
)

// Postgres wraps the violation and scan-history store.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS violations (
    id SERIAL PRIMARY KEY,
    ad_id VARCHAR(64) NOT NULL,
    company_slug VARCHAR(128) NOT NULL,
    severity INT NOT NULL,
    ai_score INT NOT NULL,
    details TEXT,
    suggested_action VARCHAR(32),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    resolved_at TIMESTAMP NULL,
    resolved_by VARCHAR(128),
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS scan_history (
    id SERIAL PRIMARY KEY,
    run_id VARCHAR(64) NOT NULL,
    scan_type VARCHAR(20) NOT NULL,
    total_scanned INT NOT NULL,
    clean_count INT NOT NULL,
    flagged_count INT NOT NULL,
    severity_low INT NOT NULL DEFAULT 0,
    severity_medium INT NOT NULL DEFAULT 0,
    severity_high INT NOT NULL DEFAULT 0,
    severity_critical INT NOT NULL DEFAULT 0,
    processing_ms BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_violations_status ON violations (status);
CREATE INDEX IF NOT EXISTS idx_violations_company_slug ON violations (company_slug);
CREATE INDEX IF NOT EXISTS idx_violations_ad_id ON violations (ad_id);
CREATE INDEX IF NOT EXISTS idx_scan_history_created_at ON scan_history (created_at);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveViolation inserts a violation record and returns its assigned ID.
func (p *Postgres) SaveViolation(ctx context.Context, v *models.ViolationRecord) (int64, error) {
	var id int64
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO violations (ad_id, company_slug, severity, ai_score, details, suggested_action, created_at, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		v.AdID, v.CompanySlug, v.Severity, v.AIScore, v.Details, v.SuggestedAction, v.CreatedAt, v.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert violation: %w", err)
	}
	return id, nil
}

// GetViolationByAdID returns the most recent violation recorded for an ad.
func (p *Postgres) GetViolationByAdID(ctx context.Context, adID string) (*models.ViolationRecord, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT id, ad_id, company_slug, severity, ai_score, details, suggested_action, created_at, resolved_at, resolved_by, status
		 FROM violations WHERE ad_id = $1 ORDER BY created_at DESC LIMIT 1`, adID)
	return scanViolation(row)
}

// ListViolationsByStatus returns violations in the given status, newest first.
func (p *Postgres) ListViolationsByStatus(ctx context.Context, status string, limit int) ([]models.ViolationRecord, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, ad_id, company_slug, severity, ai_score, details, suggested_action, created_at, resolved_at, resolved_by, status
		 FROM violations WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query violations by status: %w", err)
	}
	return collectViolations(rows)
}

// ListViolationsByCompany returns a company's violations, newest first.
func (p *Postgres) ListViolationsByCompany(ctx context.Context, companySlug string, limit int) ([]models.ViolationRecord, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, ad_id, company_slug, severity, ai_score, details, suggested_action, created_at, resolved_at, resolved_by, status
		 FROM violations WHERE company_slug = $1 ORDER BY created_at DESC LIMIT $2`, companySlug, limit)
	if err != nil {
		return nil, fmt.Errorf("query violations by company: %w", err)
	}
	return collectViolations(rows)
}

// UpdateViolationStatus transitions a pending violation to resolved or
// dismissed. Records are never deleted.
func (p *Postgres) UpdateViolationStatus(ctx context.Context, id int64, status, resolvedBy string) error {
	if status != models.ViolationStatusResolved && status != models.ViolationStatusDismissed {
		return fmt.Errorf("invalid target status %q", status)
	}
	res, err := p.DB.ExecContext(ctx,
		`UPDATE violations SET status = $1, resolved_at = NOW(), resolved_by = $2
		 WHERE id = $3 AND status = $4`,
		status, resolvedBy, id, models.ViolationStatusPending)
	if err != nil {
		return fmt.Errorf("update violation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update violation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("violation %d not pending", id)
	}
	return nil
}

// SaveScanHistory records a completed scan run's aggregate counters.
func (p *Postgres) SaveScanHistory(ctx context.Context, r *models.ScanResult) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO scan_history (run_id, scan_type, total_scanned, clean_count, flagged_count,
		   severity_low, severity_medium, severity_high, severity_critical, processing_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.RunID, r.ScanType, r.TotalScanned, r.CleanCount, len(r.FlaggedAds),
		r.SeverityCounts[1], r.SeverityCounts[2], r.SeverityCounts[3], r.SeverityCounts[4],
		r.ProcessingTime.Milliseconds(), r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert scan history: %w", err)
	}
	return nil
}

// ScanHistoryEntry is one persisted scan_history row.
type ScanHistoryEntry struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	ScanType     string    `json:"scan_type"`
	TotalScanned int       `json:"total_scanned"`
	CleanCount   int       `json:"clean_count"`
	FlaggedCount int       `json:"flagged_count"`
	ProcessingMs int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecentScanHistory returns the latest scan runs, newest first.
func (p *Postgres) RecentScanHistory(ctx context.Context, limit int) ([]ScanHistoryEntry, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, run_id, scan_type, total_scanned, clean_count, flagged_count, processing_ms, created_at
		 FROM scan_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []ScanHistoryEntry
	for rows.Next() {
		var e ScanHistoryEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.ScanType, &e.TotalScanned, &e.CleanCount, &e.FlaggedCount, &e.ProcessingMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViolation(row rowScanner) (*models.ViolationRecord, error) {
	var v models.ViolationRecord
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	if err := row.Scan(&v.ID, &v.AdID, &v.CompanySlug, &v.Severity, &v.AIScore, &v.Details,
		&v.SuggestedAction, &v.CreatedAt, &resolvedAt, &resolvedBy, &v.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan violation: %w", err)
	}
	if resolvedAt.Valid {
		v.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		v.ResolvedBy = resolvedBy.String
	}
	return &v, nil
}

func collectViolations(rows *sql.Rows) ([]models.ViolationRecord, error) {
	defer func() {
		_ = rows.Close()
	}()
	var out []models.ViolationRecord
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
