// Package analytics streams per-ad moderation events to ClickHouse for
// offline reporting. Unavailability never fails a scan.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// ScanEvent is one per-ad moderation event row.
type ScanEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	ScanType    string    `json:"scan_type"`
	AdID        string    `json:"ad_id"`
	CompanySlug string    `json:"company_slug"`
	Source      string    `json:"source"` // external_ai or local_rules
	Score       int       `json:"score"`
	RiskLevel   string    `json:"risk_level"`
	Flagged     bool      `json:"flagged"`
	DurationMs  int64     `json:"duration_ms"`
}

// ScanEventLogger records per-ad moderation events. Implementations must
// tolerate backend unavailability by returning ErrUnavailable.
type ScanEventLogger interface {
	RecordScanEvent(ctx context.Context, ev ScanEvent) error
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the scan_events table
// exists.
func InitClickHouse(dsn string) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS scan_events (
       timestamp    DateTime,
       run_id       String,
       scan_type    String,
       ad_id        String,
       company_slug String,
       source       String,
       score        Int32,
       risk_level   String,
       flagged      UInt8,
       duration_ms  Int64
   ) ENGINE=MergeTree() ORDER BY (scan_type, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// RecordScanEvent inserts a single scan event row.
func (a *Analytics) RecordScanEvent(ctx context.Context, ev ScanEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	flagged := uint8(0)
	if ev.Flagged {
		flagged = 1
	}
	stmt := `INSERT INTO scan_events (timestamp, run_id, scan_type, ad_id, company_slug, source, score, risk_level, flagged, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.RunID, ev.ScanType, ev.AdID, ev.CompanySlug, ev.Source, int32(ev.Score), ev.RiskLevel, flagged, ev.DurationMs); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("ad_id", ev.AdID))
		return fmt.Errorf("insert scan event: %w", err)
	}
	return nil
}

// Close shuts down the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
