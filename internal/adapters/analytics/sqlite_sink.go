// Package analytics persists classification outcomes for reporting. Sinks
// are insert-only; the duplicate cache never reads from them.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// SQLiteSink is a SQLite implementation of the AnalyticsSink interface.
type SQLiteSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteSink creates a new SQLite analytics sink
func NewSQLiteSink(dbPath string, logger *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec(createTableSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_processed_at ON classification_history(processed_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteSink{db: db, logger: logger}, nil
}

const createTableSQLite = `
	CREATE TABLE IF NOT EXISTS classification_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT,
		subject TEXT,
		request_type TEXT,
		sub_request_type TEXT,
		confidence REAL,
		support_group TEXT,
		is_duplicate BOOLEAN,
		duplicate_confidence REAL,
		extracted_fields TEXT,
		error TEXT,
		processing_time_ms REAL,
		processed_at TIMESTAMP
	)
`

// Record stores one classification outcome.
func (s *SQLiteSink) Record(ctx context.Context, email *core.InboundEmail, result *core.ClassificationResult) error {
	requestType, subRequestType, confidence := primaryColumns(result)
	fieldsJSON, err := json.Marshal(result.ExtractedFields)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classification_history
			(sender, subject, request_type, sub_request_type, confidence, support_group,
			 is_duplicate, duplicate_confidence, extracted_fields, error, processing_time_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, email.Sender, email.Subject, requestType, subRequestType, confidence, result.SupportGroup,
		result.IsDuplicate, result.DuplicateConfidence, string(fieldsJSON), errColumn(result),
		result.ProcessingTimeMs, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert classification record: %w", err)
	}
	return nil
}

// Stop closes the database connection.
func (s *SQLiteSink) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}

func primaryColumns(result *core.ClassificationResult) (string, string, float64) {
	if p := result.Primary(); p != nil {
		return p.RequestType, p.SubRequestType, p.Confidence
	}
	return "", "", 0
}

func errColumn(result *core.ClassificationResult) string {
	if result.Error != nil {
		return *result.Error
	}
	return ""
}
